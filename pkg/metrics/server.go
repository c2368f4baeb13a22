// HTTP server for the Prometheus metrics endpoint
//
// Serves /metrics for scraping. Optional basic auth for hosts exposed
// beyond localhost.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig holds metrics endpoint configuration.
type ServerConfig struct {
	// Address to listen on, e.g. ":9100" or "127.0.0.1:9100".
	Address string

	// Optional basic auth credentials. Both empty disables auth.
	Username string
	Password string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server serves a Registry over HTTP.
type Server struct {
	cfg    ServerConfig
	server *http.Server

	mu      sync.Mutex
	running bool
}

// NewServer creates a metrics server for reg.
func NewServer(reg *Registry, cfg ServerConfig) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	mux := http.NewServeMux()
	handler := promhttp.HandlerFor(reg.Prometheus(), promhttp.HandlerOpts{})
	if cfg.Username != "" || cfg.Password != "" {
		handler = basicAuth(handler, cfg.Username, cfg.Password)
	}
	mux.Handle("/metrics", handler)

	return &Server{
		cfg: cfg,
		server: &http.Server{
			Addr:         cfg.Address,
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

func basicAuth(next http.Handler, user, pass string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves until Shutdown. Blocks; run in a goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	return s.server.Shutdown(ctx)
}
