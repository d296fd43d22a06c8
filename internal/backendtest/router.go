package backendtest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(requestLogger)
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Get("/health", h.HealthHandler)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.ListSessionsHandler)
		r.Post("/", h.CreateSessionHandler)
		r.Delete("/{sessionID}", h.DeleteSessionHandler)
		r.Get("/{sessionID}/messages", h.ListMessagesHandler)
	})

	r.Post("/chat", h.ChatHandler)
	r.Post("/upload", h.UploadHandler)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("backendtest request")
	})
}
