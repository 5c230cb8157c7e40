package httpclient

import (
	"io"
	"testing"
)

func TestNewBodySource(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    string
		wantErr bool
	}{
		{name: "nil is empty", in: nil, want: ""},
		{name: "payload", in: Payload{System: "s", RuleID: "r", GameID: "g"}, want: `{"system":"s","ruleId":"r","gameId":"g"}`},
		{name: "unencodable", in: make(chan int), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewBodySource(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewBodySource() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			for i := 0; i < 2; i++ {
				r, err := src.NewReader()
				if err != nil {
					t.Fatalf("NewReader() error = %v", err)
				}
				data, _ := io.ReadAll(r)
				r.Close()
				if string(data) != tt.want {
					t.Fatalf("read %d = %q, want %q", i, data, tt.want)
				}
			}
			n, ok := src.ContentLength()
			if !ok || n != int64(len(tt.want)) {
				t.Fatalf("ContentLength() = %d, %v", n, ok)
			}
		})
	}
}
