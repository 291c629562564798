// SPDX-License-Identifier: MIT

// Package api is the dashboard HTTP surface: pairing, QR serving, message
// sends, history and session status.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/digimedia-pe/wagate/internal/log"
	"github.com/digimedia-pe/wagate/internal/session"
)

// Server exposes a session over HTTP.
type Server struct {
	session *session.Session
	logger  zerolog.Logger
}

// NewServer wraps a session.
func NewServer(s *session.Session) *Server {
	return &Server{
		session: s,
		logger:  log.WithComponent("api"),
	}
}

// Routes builds the router with the full middleware stack.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(Recoverer)
	r.Use(RequestID)
	r.Use(Logging)
	r.Use(httprate.LimitByIP(120, time.Minute))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/reconnect", s.handleReconnect)

		r.Route("/qr", func(r chi.Router) {
			r.Post("/request", s.handleQRRequest)
			r.Get("/status", s.handleQRStatus)
			r.Get("/image", s.handleQRImage)
			r.Get("/formats", s.handleQRFormats)
			r.Post("/expire", s.handleQRExpire)
			r.Post("/format", s.handleQRFormat)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Post("/send", s.handleSendTemplate)
			r.Post("/image", s.handleSendImage)
			r.Post("/image-raw", s.handleSendRawImage)
			r.Post("/simple", s.handleSendSimple)
			r.Get("/history", s.handleHistory)
			r.Delete("/history", s.handleClearHistory)
		})
	})

	return r
}

// NewHTTPServer wraps the router in an http.Server with sane timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.session.ForceReconnect(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "reconnection started"})
}
