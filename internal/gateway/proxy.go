package gateway

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// newProxy forwards everything that is not a gateway route to upstream
// through transport. Referer and Origin are re-pointed at upstream; the path
// and query they carry are what the interceptor reads the conversation from.
func newProxy(upstream string, transport http.RoundTripper) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("upstream %q must be an absolute URL", upstream)
	}

	return &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.Out.Host = target.Host
			for _, h := range []string{"Referer", "Origin"} {
				if v := r.In.Header.Get(h); v != "" {
					r.Out.Header.Set(h, retarget(v, target))
				}
			}
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Warn("upstream request failed", "path", r.URL.Path, "error", err)
			w.WriteHeader(http.StatusBadGateway)
		},
	}, nil
}

func retarget(raw string, target *url.URL) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = target.Scheme
	u.Host = target.Host
	return u.String()
}
