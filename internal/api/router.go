package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dwkim-hr/intervox/internal/websocket"
)

// Router builds the HTTP surface of the service
type Router struct {
	handler  *Handler
	wsServer *websocket.Server
}

// NewRouter creates a router over the given handler
func NewRouter(handler *Handler, wsServer *websocket.Server) *Router {
	return &Router{
		handler:  handler,
		wsServer: wsServer,
	}
}

// Routes returns the assembled chi router
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/ws", rt.wsServer.HandleConnection)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", rt.handler.Health)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/start", rt.handler.StartSession)
			r.Post("/stop", rt.handler.StopSession)
			r.Get("/current", rt.handler.SessionState)
			r.Post("/retry-upload", rt.handler.RetryUpload)
			r.Delete("/pending-upload", rt.handler.DiscardUpload)
			r.Get("/", rt.handler.GetSessions)
			r.Get("/{id}", rt.handler.GetSession)
			r.Post("/{id}/summary", rt.handler.SummarizeTranscript)
		})

		r.Route("/transcripts", func(r chi.Router) {
			r.Get("/", rt.handler.GetLiveTranscripts)
			r.Delete("/", rt.handler.ClearLiveTranscripts)
			r.Delete("/{id}", rt.handler.RemoveLiveTranscript)
			r.Get("/history", rt.handler.GetTranscriptHistory)
		})

		r.Get("/applications/{id}/similarity", rt.handler.CheckSimilarity)
	})

	return r
}
