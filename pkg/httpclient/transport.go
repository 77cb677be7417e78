package httpclient

import (
	"net/http"
	"sync"
)

// authTransport decorates outgoing requests with the client's identity
// headers before handing them to the base transport.
type authTransport struct {
	base      http.RoundTripper
	userAgent string
	headers   map[string]string

	mu    sync.RWMutex
	token string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	r := req.Clone(req.Context())
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", t.userAgent)
	}
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	if tok := t.currentToken(); tok != "" {
		r.Header.Set("Authorization", "Bearer "+tok)
	}
	return t.base.RoundTrip(r)
}

func (t *authTransport) currentToken() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}

func (t *authTransport) clearToken() {
	t.mu.Lock()
	t.token = ""
	t.mu.Unlock()
}
