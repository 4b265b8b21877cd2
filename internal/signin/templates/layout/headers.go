package layout

import "encoding/json"

// csrfHeaders is the hx-headers value echoing the token on every htmx request.
func csrfHeaders(token string) string {
	b, err := json.Marshal(map[string]string{"X-CSRF-Token": token})
	if err != nil {
		return "{}"
	}
	return string(b)
}
