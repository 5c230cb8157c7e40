// Package httpclient builds and sends rule trigger requests.
//
// A [RequestBuilder] is created once per run from configuration and turns
// every parsed row into a JSON POST against the trigger endpoint:
//
//	builder, err := httpclient.NewRequestBuilder(cfg)
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx, item, provider)
//
// The credential is attached by an [AuthProvider], normally one of the
// providers from [github.com/torosent/rulefire/internal/auth].
//
// [NewClient] returns the client used for every call. Its timeout bounds
// the whole exchange, so a call that never answers is reported as a
// transport failure once it elapses:
//
//	client := httpclient.NewClient(10 * time.Second)
//	resp, err := client.Do(req)
package httpclient
