package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vdcapital/copytrader/internal/broker"
	"github.com/vdcapital/copytrader/internal/config"
	"github.com/vdcapital/copytrader/internal/copytrade"
	"github.com/vdcapital/copytrader/internal/logger"
	"github.com/vdcapital/copytrader/internal/storage"
)

type Server struct {
	httpServer   *http.Server
	orchestrator *copytrade.Orchestrator
	brokers      *broker.Registry
	repo         *storage.Repository
	config       *config.Config
	logger       *logger.Logger
}

func NewServer(
	orch *copytrade.Orchestrator,
	brokers *broker.Registry,
	repo *storage.Repository,
	cfg *config.Config,
	log *logger.Logger,
) *Server {
	s := &Server{
		orchestrator: orch,
		brokers:      brokers,
		repo:         repo,
		config:       cfg,
		logger:       log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleDashboard)
	mux.HandleFunc("/api/copy-trade", s.handleCopyTrade)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/attempts", s.handleAttempts)
	mux.HandleFunc("/api/refresh-balances", s.handleRefreshBalances)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("web server starting", "port", s.config.Web.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
