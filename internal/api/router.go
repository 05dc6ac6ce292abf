// Package api exposes the controller command surface over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
	"github.com/eliteGoblin/focusd/kioskctl/internal/usecase"
)

// Submitter runs one command on the controller.
type Submitter interface {
	Submit(ctx context.Context, cmd usecase.Command) (usecase.Reply, error)
}

// Handlers serves the command surface.
type Handlers struct {
	submitter Submitter
	journal   domain.Journal // optional
	logger    *zap.Logger
}

// NewRouter builds the HTTP routes. journal may be nil.
func NewRouter(submitter Submitter, journal domain.Journal, logger *zap.Logger) *mux.Router {
	h := &Handlers{submitter: submitter, journal: journal, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/v1/journal", h.Journal).Methods(http.MethodGet)
	r.HandleFunc("/v1/{channel}/{method}", h.Command).Methods(http.MethodPost)
	return r
}
