package binder

import "net/http"

// Query binds URL query parameters into fields tagged `query:"name"`.
// Slices accept repeated or comma-separated values.
//
//	type ListRequest struct {
//		RecipientID string `query:"recipientId"`
//		Page        int    `query:"page"`
//	}
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		values := r.URL.Query()
		if len(values) == 0 {
			return ErrBinderNotApplicable
		}
		return bindToStruct(v, "query", func(name string) []string { return values[name] }, ErrFailedToParseQuery)
	}
}
