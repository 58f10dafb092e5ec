package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ggoodman/drafts-mcp-go/internal/httpwire"
	"github.com/ggoodman/drafts-mcp-go/internal/logctx"
	"github.com/google/uuid"
)

// Handler returns the router. It is what the HTTP server serves and can be
// mounted elsewhere, for instance under httptest.
func (g *Gateway) Handler() http.Handler {
	return http.HandlerFunc(g.route)
}

func (g *Gateway) route(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
	r = r.WithContext(ctx)
	start := time.Now()
	defer func() {
		g.log.DebugContext(ctx, "gateway.request.done", slog.Duration("dur", time.Since(start)))
	}()

	switch r.URL.Path {
	case g.streamPath:
		switch r.Method {
		case http.MethodGet, http.MethodPost, http.MethodDelete:
			g.stream.ServeHTTP(w, r)
		default:
			methodNotAllowed(w, "GET, POST, DELETE")
		}
	case g.ssePath:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		g.legacy.ServeStream(w, r)
	case g.messagePath:
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		g.legacy.ServeMessage(w, r)
	default:
		httpwire.WriteServerError(w, http.StatusNotFound, "Not Found")
		g.log.InfoContext(ctx, "gateway.route.not_found")
	}
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	httpwire.WriteServerError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
}
