package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Detail extracts the server's error message, or "" when the body has none.
func (r *Response) Detail() string {
	if len(r.Body) == 0 || !gjson.ValidBytes(r.Body) {
		return ""
	}

	detail := gjson.GetBytes(r.Body, "detail")
	switch {
	case detail.Type == gjson.String:
		return detail.String()
	case detail.IsArray():
		// validation errors: [{"loc": [...], "msg": "...", "type": "..."}]
		if msg := detail.Get("0.msg"); msg.Exists() {
			return msg.String()
		}
	}

	for _, path := range []string{"error", "message"} {
		if v := gjson.GetBytes(r.Body, path); v.Type == gjson.String {
			return v.String()
		}
	}
	return ""
}

// Err returns nil for 2xx and a *StatusError otherwise.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	return &StatusError{StatusCode: r.StatusCode, Detail: r.Detail()}
}

// Result decodes a successful response into T, turning a failed call or a
// non-2xx status into an error.
func Result[T any](resp *Response, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	var out T
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
