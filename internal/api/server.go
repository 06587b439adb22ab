package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/heimdex/heimdex-aligner/internal/jobs"
)

const defaultMaxBodyBytes = 32 << 20

// RunnerControl is the part of the job runner the API exposes.
type RunnerControl interface {
	IsRunning() bool
	IsPaused() bool
	ActiveJobs() int
	Pause()
	Resume()
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Host         string
	Port         int
	Service      jobs.JobService
	Repository   jobs.Repository
	Runner       RunnerControl
	Logger       *slog.Logger
	StartTime    time.Time
	InstanceID   string
	Version      string
	MaxBodyBytes int64
}

func NewServer(cfg ServerConfig) *Server {
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, cfg.Port),
			Handler:      NewRouter(cfg),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
