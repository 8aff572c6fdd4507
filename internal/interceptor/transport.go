package interceptor

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
)

// Transport is the pair of primitives a client uses to start a request and to
// transmit its body.
type Transport interface {
	Open(method, target string, rest ...any)
	Send(body any) error
}

// Navigator is implemented by transports that know the navigation target of
// the page that issued them. Others fall back to Options.Location.
type Navigator interface {
	Navigation() string
}

type patched struct {
	ic     *Interceptor
	next   Transport
	target string
}

// Wrap returns t with interception installed. Open only records the target;
// Send rewrites string bodies bound for candidate targets. Both always
// delegate to t exactly once.
func (ic *Interceptor) Wrap(t Transport) Transport {
	return &patched{ic: ic, next: t}
}

func (p *patched) Open(method, target string, rest ...any) {
	p.target = target
	p.next.Open(method, target, rest...)
}

func (p *patched) Send(body any) error {
	s, ok := body.(string)
	if !ok {
		p.ic.passthrough.Add(1)
		return p.next.Send(body)
	}
	out, _ := p.ic.Transmit(p.target, p.navigation(), s)
	return p.next.Send(out)
}

func (p *patched) navigation() string {
	if n, ok := p.next.(Navigator); ok {
		return n.Navigation()
	}
	return p.ic.location()
}

// exchange adapts one *http.Request to Transport.
type exchange struct {
	base      http.RoundTripper
	req       *http.Request
	navHeader string
	resp      *http.Response
}

// Open is a no-op: the method and URL already live on the request.
func (x *exchange) Open(string, string, ...any) {}

func (x *exchange) Navigation() string {
	return x.req.Header.Get(x.navHeader)
}

func (x *exchange) Send(body any) error {
	req := x.req
	if s, ok := body.(string); ok {
		req = req.Clone(req.Context())
		req.Body = io.NopCloser(strings.NewReader(s))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(s)), nil
		}
		req.ContentLength = int64(len(s))
		if req.Header.Get("Content-Length") != "" {
			req.Header.Set("Content-Length", strconv.Itoa(len(s)))
		}
	}
	resp, err := x.base.RoundTrip(req)
	x.resp = resp
	return err
}

type roundTripper struct {
	ic   *Interceptor
	base http.RoundTripper
}

// RoundTripper returns an http.RoundTripper that runs every request through
// the interceptor before handing it to base. Only form-encoded bodies are
// read; everything else is forwarded as is.
func (ic *Interceptor) RoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &roundTripper{ic: ic, base: base}
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	x := &exchange{base: rt.base, req: req, navHeader: rt.ic.navHeader}
	t := rt.ic.Wrap(x)
	t.Open(req.Method, req.URL.String())

	var body any = req.Body
	if isForm(req) {
		data, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		body = string(data)
	}

	if err := t.Send(body); err != nil {
		return nil, err
	}
	return x.resp, nil
}

func isForm(req *http.Request) bool {
	if req.Body == nil || req.Body == http.NoBody {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}

// Install wraps base once. The first installed RoundTripper is returned on
// every later call; the patch cannot be replaced for the life of the interceptor.
func (ic *Interceptor) Install(base http.RoundTripper) http.RoundTripper {
	fresh := false
	ic.installOnce.Do(func() {
		ic.installed = ic.RoundTripper(base)
		fresh = true
	})
	if !fresh {
		slog.Warn("interceptor already installed, keeping the first transport")
	}
	return ic.installed
}
