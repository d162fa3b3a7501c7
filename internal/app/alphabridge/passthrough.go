package alphabridge

import (
	"io"
	"net/http"

	"go.uber.org/zap"
)

// Hop-by-hop headers are meaningful only for a single transport link and
// must not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Passthrough forwards proxy-style requests verbatim to their target URL
// and streams the response back. It carries no state of its own.
type Passthrough struct {
	Client *http.Client
	Logger *zap.Logger
}

func (p Passthrough) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !r.URL.IsAbs() {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	out, err := http.NewRequestWithContext(r.Context(), r.Method, r.URL.String(), r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	out.Header = r.Header.Clone()
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}

	resp, err := p.client().Do(out)
	if err != nil {
		p.logger().Debug("passthrough request failed",
			zap.Error(err),
			zap.String("url", r.URL.String()),
		)
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	for key, values := range resp.Header {
		for _, v := range values {
			header.Add(key, v)
		}
	}
	for _, h := range hopHeaders {
		header.Del(h)
	}

	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func (p Passthrough) client() *http.Client {
	if p.Client == nil {
		return http.DefaultClient
	}
	return p.Client
}

func (p Passthrough) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}
