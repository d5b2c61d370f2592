// Package api exposes the notification pipeline over HTTP: signal ingestion,
// direct enqueue, hook/template/suppression administration, read-only queue
// and event views, and the provider webhook endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/doron007/realtechee-notify/internal/events"
	"github.com/doron007/realtechee-notify/internal/hooks"
	"github.com/doron007/realtechee-notify/internal/queue"
	"github.com/doron007/realtechee-notify/internal/reputation"
	"github.com/doron007/realtechee-notify/internal/suppression"
	"github.com/doron007/realtechee-notify/internal/template"
)

// Server is the HTTP API server.
type Server struct {
	handlers *Handlers
	server   *http.Server
}

// NewServer wires the API handlers and router.
func NewServer(
	matcher *hooks.Matcher,
	hookRepo hooks.Repository,
	queueSvc *queue.Service,
	templates *template.Store,
	suppressions *suppression.Service,
	eventSvc *events.Service,
	monitor *reputation.Monitor,
) *Server {
	h := &Handlers{
		matcher:      matcher,
		hookRepo:     hookRepo,
		queue:        queueSvc,
		templates:    templates,
		suppressions: suppressions,
		events:       eventSvc,
		monitor:      monitor,
	}
	return &Server{handlers: h}
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      SetupRoutes(s.handlers),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
