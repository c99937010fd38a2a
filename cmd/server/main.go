package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/dealer-syndication/internal/analysis"
	"github.com/iliyamo/dealer-syndication/internal/config"
	"github.com/iliyamo/dealer-syndication/internal/database"
	"github.com/iliyamo/dealer-syndication/internal/handler"
	"github.com/iliyamo/dealer-syndication/internal/logging"
	"github.com/iliyamo/dealer-syndication/internal/middleware"
	"github.com/iliyamo/dealer-syndication/internal/queue"
	"github.com/iliyamo/dealer-syndication/internal/repository"
	"github.com/iliyamo/dealer-syndication/internal/router"
	"github.com/iliyamo/dealer-syndication/internal/service"
)

func main() {
	logging.Init(logging.FromEnv())
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logging.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()
	if cfg.MigrateOnStart {
		if err := database.Migrate(ctx, db); err != nil {
			logging.Fatal().Err(err).Msg("schema migration failed")
		}
		logging.Info().Msg("schema applied")
	}

	rdb := config.NewRedisClient()
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb)

	var events service.EventPublisher
	if cfg.RabbitMQURL != "" {
		events = queue.NewPublisher(cfg.RabbitMQURL)
	}
	var analyzer service.Analyzer
	if cfg.AnalysisWebhookURL != "" {
		analyzer = analysis.NewClient(cfg.AnalysisWebhookURL, cfg.AnalysisWebhookTimeout)
	}
	if !cfg.IngestionEnabled() {
		logging.Warn().Msg("INGEST_API_KEY or INGEST_PARTNER_ID unset; automated ingestion rejects every request")
	}

	actors := repository.NewActorRepo(db)
	dealerships := repository.NewDealershipRepo(db)
	memberships := repository.NewMembershipRepo(db)
	pending := repository.NewPendingListingRepo(db)
	partners := repository.NewPartnerListingRepo(db)
	cars := repository.NewCarListingRepo(db)
	leads := repository.NewLeadRepo(db)
	transactions := repository.NewTransactionRepo(db)
	commissions := repository.NewCommissionRepo(db)

	resolver := service.NewResolver(actors, dealerships, memberships)
	cred := service.IngestCredential{APIKey: cfg.IngestAPIKey, PartnerID: cfg.IngestPartnerID}
	intake := service.NewIntake(resolver, pending, partners, cred, events, cache)
	approval := service.NewApproval(resolver, pending, partners, analyzer, events, cache)
	ledger := service.NewLedger(resolver, cars, leads, transactions, commissions, memberships, events, cache)
	members := service.NewMemberships(resolver, dealerships, memberships, cache)
	market := service.NewMarketplace(resolver, pending, partners, cars)

	e := router.New(router.Handlers{
		Actor:   handler.NewActorHandler(resolver),
		Public:  handler.NewPublicHandler(market, ledger, intake),
		Dealer:  handler.NewDealerHandler(intake, members, ledger),
		Partner: handler.NewPartnerHandler(intake, members, ledger),
		Admin:   handler.NewAdminHandler(intake, approval, ledger),
		DB:      db,
	}, router.Middleware{
		JWTSecret:   cfg.JWTSecret,
		RateLimit:   middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		IngestLimit: middleware.NewTokenBucket(config.LoadIngestRateLimitConfig(), rdb),
		Cache:       cache,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logging.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.RabbitMQURL != "" {
		g.Go(func() error {
			err := queue.StartAuditConsumer(gctx, cfg.RabbitMQURL, cfg.AuditLogPath)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logging.Error().Err(err).Msg("server stopped with error")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	logging.Info().Msg("shutdown complete")
}
