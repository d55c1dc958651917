// Package service defines the HTTP services mounted by the server and the
// registry they register into.
package service

import (
	"log/slog"
	"net/http"
)

// Service is an HTTP service mounted under /<Prefix>.
type Service interface {
	Handler() http.Handler
	Prefix() string
	Close() error
}

// NewService builds a service from its [http.services.<name>] section.
type NewService func(conf map[string]any, log *slog.Logger) (Service, error)
