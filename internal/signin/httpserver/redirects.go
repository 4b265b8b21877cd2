package httpserver

import (
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	custommw "finitefield.org/hanko-signin/internal/signin/httpserver/middleware"
)

type authCookies struct {
	secure bool
}

// set stores the token issued by the auth service. The cookie lives as long
// as the session does.
func (c authCookies) set(w http.ResponseWriter, r *http.Request, token string) {
	if strings.TrimSpace(token) == "" {
		c.clear(w)
		return
	}
	cookie := &http.Cookie{
		Name:     custommw.AuthCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	if sess, ok := custommw.SessionFromContext(r.Context()); ok {
		if expiry := sess.ExpiresAt(); !expiry.IsZero() {
			cookie.Expires = expiry.UTC()
			if remaining := time.Until(expiry); remaining > 0 {
				cookie.MaxAge = int(remaining.Round(time.Second).Seconds())
			}
		}
	}
	http.SetCookie(w, cookie)
}

func (c authCookies) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     custommw.AuthCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// redirectTarget returns the sanitised next target or the home page.
func redirectTarget(raw string) string {
	if next := normalizeNext(raw); next != "" {
		return next
	}
	return "/"
}

// normalizeNext accepts same-origin paths only and never the auth screen itself.
func normalizeNext(raw string) string {
	sanitized := sanitizeNextTarget(raw)
	if sanitized == "" {
		return ""
	}
	if p := pathOnly(sanitized); p == loginPath || strings.HasPrefix(p, loginPath+"/") {
		return ""
	}
	return sanitized
}

func sanitizeNextTarget(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "" || parsed.Host != "" {
		return ""
	}

	pathValue := parsed.Path
	if pathValue == "" {
		pathValue = "/"
	}
	unescaped, err := url.PathUnescape(pathValue)
	if err != nil {
		return ""
	}
	if strings.Contains(unescaped, "\\") {
		return ""
	}

	cleaned := path.Clean(unescaped)
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	if strings.HasPrefix(cleaned, "//") {
		return ""
	}

	target := cleaned
	if parsed.RawQuery != "" {
		target += "?" + parsed.RawQuery
	}
	if parsed.Fragment != "" {
		target += "#" + parsed.Fragment
	}
	return target
}

func pathOnly(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return parsed.Path
}

func loginURLWithParams(params map[string]string) string {
	q := url.Values{}
	for key, val := range params {
		if strings.TrimSpace(val) == "" {
			continue
		}
		q.Set(key, val)
	}
	if len(q) == 0 {
		return loginPath
	}
	return loginPath + "?" + q.Encode()
}
