package gateway

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
)

// hopByHopHeaders are stripped before proxying, matching RFC 7230 §6.1's
// connection-scoped header list.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// newAppProxy builds a reverse proxy for the /app/* tail, forwarding
// method, query, body, and headers (minus hop-by-hop ones) to upstream.
func newAppProxy(upstream string) (http.Handler, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, err
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	baseDirector := proxy.Director
	proxy.Director = func(r *http.Request) {
		r.URL.Path = strings.TrimPrefix(r.URL.Path, "/app")
		baseDirector(r)
		for _, h := range hopByHopHeaders {
			r.Header.Del(h)
		}
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		serviceUnavailable(w, CorrIDFrom(r.Context()), "upstream unreachable", 1)
	}
	return proxy, nil
}
