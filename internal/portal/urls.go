package portal

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

func withQuery(base string, kv ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" {
		return "", fmt.Errorf("invalid portal url %q", base)
	}
	q := u.Query()
	for i := 0; i+1 < len(kv); i += 2 {
		q.Set(kv[i], kv[i+1])
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func detailURL(base, poNumber string) (string, error) {
	return withQuery(base, "po_id", poNumber)
}

func itemURL(base, requestID, itemSuffixID string) (string, error) {
	return withQuery(base, "request_id", requestID, "item_suffix_id", itemSuffixID)
}

// echoesPO reports whether the detail page URL still names poNumber.
func echoesPO(pageURL, poNumber string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	for k, vs := range u.Query() {
		if !strings.EqualFold(k, "po_id") {
			continue
		}
		for _, v := range vs {
			if v == poNumber {
				return true
			}
		}
	}
	return false
}

// isLoginURL reports whether current is still the login page.
func isLoginURL(current, loginURL string) bool {
	cur, err := url.Parse(current)
	if err != nil {
		return true
	}
	login, err := url.Parse(loginURL)
	if err != nil || login.Path == "" || login.Path == "/" {
		return strings.Contains(strings.ToLower(cur.Path), "login")
	}
	return strings.EqualFold(cur.Host, login.Host) && strings.EqualFold(cur.Path, login.Path)
}

// ResolveURL resolves ref against base. Absolute references are returned as is.
func ResolveURL(base, ref string) (string, error) {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", ref, err)
	}
	if r.IsAbs() {
		return r.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return "", fmt.Errorf("cannot resolve %q without an absolute base url", ref)
	}
	return b.ResolveReference(r).String(), nil
}

func httpCookies(in []playwright.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HttpOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, hc)
	}
	return out
}
