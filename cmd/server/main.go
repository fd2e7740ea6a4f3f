package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/ccdh/authservice/internal/audit"
	"github.com/ccdh/authservice/internal/config"
	"github.com/ccdh/authservice/internal/es"
	"github.com/ccdh/authservice/internal/events"
	"github.com/ccdh/authservice/internal/httpserver"
	"github.com/ccdh/authservice/internal/logging"
	mwauth "github.com/ccdh/authservice/internal/middleware/auth"
	loggingmw "github.com/ccdh/authservice/internal/middleware/logging"
	"github.com/ccdh/authservice/internal/middleware/ratelimit"
	"github.com/ccdh/authservice/internal/middleware/secure"
	"github.com/ccdh/authservice/internal/repo"
	"github.com/ccdh/authservice/internal/security"
	"github.com/ccdh/authservice/internal/service"
	"github.com/ccdh/authservice/internal/service/auditsearch"
	"github.com/ccdh/authservice/internal/tokens"
	"github.com/ccdh/authservice/pkg/db"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	if len(cfg.JWTSecret) == 0 {
		log.Fatal("JWT_SECRET is required")
	}

	ctx := context.Background()

	gormDB, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewProducer(cfg.KafkaBrokers, cfg.AuthEventsTopic)
	}

	gormRepo := repo.New(gormDB)

	var indexer audit.Indexer
	auditHandler := &httpserver.AuditHandler{Repo: gormRepo}
	if cfg.ESURL != "" {
		esClient, err := es.NewClient(cfg.ESURL, cfg.ESUser, cfg.ESPassword)
		if err != nil {
			log.Fatalf("elasticsearch: %v", err)
		}
		indexer = auditsearch.NewIndexer(esClient, "audit_logs")
		auditHandler.ES = esClient
		auditHandler.ESIndex = "audit_logs"
	}

	recorder := audit.NewRecorder(gormRepo, indexer)
	tokenSvc := tokens.NewService(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)

	authSvc := &service.AuthService{
		Repo:            gormRepo,
		Tokens:          tokenSvc,
		Audit:           recorder,
		Events:          publisher,
		RegistrationTTL: cfg.RegistrationTTL,
	}

	guard := &mwauth.Guard{Repo: gormRepo, Tokens: tokenSvc}

	e := echo.New()
	e.HideBanner = true
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(
		echomw.Recover(),
		echomw.RequestID(),
		loggingmw.RequestLogger(logger),
		secure.Headers(),
		ratelimit.Middleware(ratelimit.NewLimiter(), ratelimit.Config{
			Limit:      cfg.RateLimitPerMinute,
			LoginLimit: cfg.LoginRateLimitPerMinute,
		}),
	)

	httpserver.Register(e, &httpserver.Deps{
		Guard:         guard,
		Auth:          &httpserver.AuthHandler{Auth: authSvc, RefreshTTL: cfg.RefreshTTL},
		Registrations: &httpserver.RegistrationsHandler{Auth: authSvc},
		Audit:         auditHandler,
		Security: &httpserver.SecurityHandler{
			Monitor: security.NewMonitor(gormDB),
			Scanner: security.NewScanner(gormDB),
			Audit:   recorder,
			Events:  publisher,
		},
	})

	pruneCtx, stopPrune := context.WithCancel(ctx)
	go pruneExpired(pruneCtx, gormRepo)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	stopPrune()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := gormDB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	}

	if err := publisher.Close(); err != nil {
		log.Printf("producer close error: %v", err)
	}

	log.Println("shutdown complete")
}

// pruneExpired sweeps expired refresh tokens and blacklist rows once
// an hour.
func pruneExpired(ctx context.Context, r *repo.GormRepo) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.PruneExpired(ctx, time.Now()); err != nil {
				log.Printf("prune expired tokens: %v", err)
			}
		}
	}
}
