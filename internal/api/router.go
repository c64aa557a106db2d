package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/ping", PingHandler)

	r.Route("/objects", func(r chi.Router) {
		r.Get("/", s.ListObjectsHandler)
		r.Get("/class/{name}", s.ObjectsByClassHandler)
		r.Get("/{id}", s.ObjectHandler)
	})
	r.Get("/frames/{n}", s.FrameHandler)

	r.Route("/lost", func(r chi.Router) {
		r.Get("/", s.ListLostHandler)
		r.Get("/{id}", s.LostByIdentityHandler)
	})

	r.Route("/artifacts", func(r chi.Router) {
		r.Get("/", s.ListArtifactsHandler)
		r.Get("/{name}", s.ArtifactHandler)
	})
	r.Get("/ignored-classes", s.IgnoredClassesHandler)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"requestID", middleware.GetReqID(r.Context()),
		)
	})
}
