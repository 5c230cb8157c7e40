package auth

import (
	"context"
	"net/http/httptest"
	"testing"
)

func TestParseScheme(t *testing.T) {
	tests := []struct {
		in      string
		want    Scheme
		wantErr bool
	}{
		{"", SchemeCookie, false},
		{"Cookie", SchemeCookie, false},
		{" bearer ", SchemeBearer, false},
		{"basic", "", true},
	}
	for _, tt := range tests {
		got, err := ParseScheme(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseScheme(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseScheme(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFactoryInjectsPerScheme(t *testing.T) {
	tests := []struct {
		name   string
		scheme Scheme
		cookie string
		header string
		want   string
	}{
		{"default cookie", SchemeCookie, "", "Cookie", "_BEAMER=secret"},
		{"custom cookie", SchemeCookie, "session", "Cookie", "session=secret"},
		{"bearer", SchemeBearer, "", "Authorization", "Bearer secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory, err := NewFactory(tt.scheme, tt.cookie)
			if err != nil {
				t.Fatalf("NewFactory() error = %v", err)
			}
			provider, err := factory("secret")
			if err != nil {
				t.Fatalf("factory() error = %v", err)
			}
			defer provider.Close()

			req := httptest.NewRequest("POST", "http://example.com", nil)
			if err := provider.InjectHeader(context.Background(), req); err != nil {
				t.Fatalf("InjectHeader() error = %v", err)
			}
			if got := req.Header.Get(tt.header); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestFactoryRejectsHeaderInjection(t *testing.T) {
	factory, err := NewFactory(SchemeCookie, "")
	if err != nil {
		t.Fatalf("NewFactory() error = %v", err)
	}
	if _, err := factory("abc\r\nX-Evil: 1"); err == nil {
		t.Error("expected credential with CRLF to be rejected")
	}

	if _, err := NewFactory(SchemeCookie, "bad name"); err == nil {
		t.Error("expected invalid cookie name to be rejected")
	}
	if _, err := NewFactory(Scheme("digest"), ""); err == nil {
		t.Error("expected unknown scheme to be rejected")
	}
}

func TestEmptyCredentialIsSentAsIs(t *testing.T) {
	factory, _ := NewFactory(SchemeCookie, "")
	provider, err := factory("")
	if err != nil {
		t.Fatalf("factory(\"\") error = %v", err)
	}
	req := httptest.NewRequest("POST", "http://example.com", nil)
	_ = provider.InjectHeader(context.Background(), req)
	if got := req.Header.Get("Cookie"); got != "_BEAMER=" {
		t.Errorf("Cookie header = %q, want %q", got, "_BEAMER=")
	}
}
