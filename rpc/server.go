// Package rpc exposes the staking engine over a JSON HTTP API.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"deltastake/integrations/indexer"
	"deltastake/native/staking"
	"deltastake/observability"
)

const (
	defaultServiceName  = "stakingd"
	defaultMaxBodyBytes = 1 << 20 // 1 MiB
	shutdownTimeout     = 10 * time.Second
)

// Config controls the HTTP API.
type Config struct {
	ServiceName string
	Auth        AuthConfig
	RateLimit   RateLimit
	// PoolAddress receives staked assets and is the custody holder.
	PoolAddress  common.Address
	MaxBodyBytes int64
}

// AssetTransferer moves assets from a caller into the pool.
type AssetTransferer interface {
	SafeBatchTransfer(from, to common.Address, refs []staking.TokenRef, data []byte) error
}

// AssetMinter issues collection tokens.
type AssetMinter interface {
	Mint(owner common.Address, ref staking.TokenRef) error
}

// CurrencyMinter credits reward currency.
type CurrencyMinter interface {
	Mint(to common.Address, amount *big.Int) error
}

// EventSource serves indexed events per account.
type EventSource interface {
	ByAccount(ctx context.Context, account string, limit int) ([]indexer.Event, error)
}

// Server wires HTTP handlers to the engine.
type Server struct {
	cfg     Config
	engine  *staking.Engine
	assets  AssetTransferer
	events  EventSource
	minter  devMinter
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewServer validates cfg and returns a server for engine.
func NewServer(cfg Config, engine *staking.Engine, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("rpc: engine required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Server{
		cfg:     cfg,
		engine:  engine,
		auth:    NewAuthenticator(cfg.Auth, logger),
		limiter: NewRateLimiter(cfg.RateLimit),
		logger:  logger,
	}, nil
}

// SetAssets enables POST /v1/stake.
func (s *Server) SetAssets(assets AssetTransferer) { s.assets = assets }

// EnableDevMint serves POST /v1/admin/mint, letting the owner create tokens
// and reward currency out of thin air. Development deployments only.
func (s *Server) EnableDevMint(assets AssetMinter, currency CurrencyMinter) {
	s.minter = devMinter{assets: assets, currency: currency}
}

type devMinter struct {
	assets   AssetMinter
	currency CurrencyMinter
}

func (m devMinter) enabled() bool { return m.assets != nil && m.currency != nil }

// SetEvents enables GET /v1/stakers/{address}/events.
func (s *Server) SetEvents(source EventSource) { s.events = source }

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.observe)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Use(s.limiter.Middleware("v1"))
		r.Get("/pool", s.handlePool)
		r.Get("/schedule/{period}", s.handleSchedule)
		r.Get("/lost-cycles", s.handleLostCycles)
		r.Get("/lost-cycles/{cycle}", s.handleLostCycle)
		r.Get("/stakers/{address}", s.handleStaker)
		r.Get("/stakers/{address}/estimate", s.handleEstimate)
		r.Get("/stakers/{address}/events", s.handleStakerEvents)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Post("/stake", s.handleStake)
			r.Post("/unstake", s.handleUnstake)
			r.Post("/claim", s.handleClaim)
			r.Route("/admin", func(r chi.Router) {
				r.Post("/start", s.handleStart)
				r.Post("/disable", s.handleDisable)
				r.Post("/rewards", s.handleAddRewards)
				r.Post("/withdraw", s.handleWithdrawPool)
				r.Post("/lost-cycles", s.handleWithdrawLostCycle)
				r.Post("/mint", s.handleDevMint)
			})
		})
	})
	return otelhttp.NewHandler(r, s.cfg.ServiceName)
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("rpc: serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("rpc: shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		observability.API().Observe(route, r.Method, recorder.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
