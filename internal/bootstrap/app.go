package bootstrap

import (
	"context"
	"database/sql"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rotisserie/eris"

	"menuscore-backend/internal/analyses"
	"menuscore-backend/internal/extraction"
	"menuscore-backend/internal/payments"
	"menuscore-backend/internal/shared/config"
	"menuscore-backend/internal/shared/server"
	"menuscore-backend/internal/shared/server/middleware"
	"menuscore-backend/internal/shared/storage/db"
	"menuscore-backend/internal/shared/telemetry"
)

// App holds shared dependencies and the assembled router.
type App struct {
	Config          config.Config
	Router          *gin.Engine
	DB              *sql.DB
	Extractor       extraction.Client
	AnalysesRepo    analyses.Repo
	AnalysesService *analyses.Service
	Gate            *payments.Gate
	AnalysisHandler *analyses.Handler
	PaymentHandler  *payments.Handler
}

// Options override collaborators, mainly for tests.
type Options struct {
	Extractor extraction.Client
	Repo      analyses.Repo
}

// Build prepares dependencies and the router.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	app := &App{Config: cfg}

	repo := opts.Repo
	if repo == nil {
		sqlDB, err := buildDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		app.DB = sqlDB
		if sqlDB != nil {
			repo = &analyses.PGRepo{DB: sqlDB}
		} else {
			repo = analyses.NewMemoryRepo()
		}
	}

	extractor := opts.Extractor
	if extractor == nil {
		extractor = buildExtractor(cfg.Extraction)
	}

	svc := &analyses.Service{
		Repo:               repo,
		Extractor:          extractor,
		MarketplaceDomains: cfg.Analysis.MarketplaceDomains,
		PollTimeout:        cfg.Extraction.PollTimeout,
		PollInterval:       cfg.Extraction.PollEvery,
	}
	previewUnlocked := cfg.Analysis.PreviewUnlockedCount
	gate := &payments.Gate{
		Repo:                 repo,
		Settler:              payments.InstantSettler{},
		AmountCents:          cfg.Payment.AmountCents,
		Currency:             cfg.Payment.Currency,
		PreviewUnlockedCount: &previewUnlocked,
		DownloadURL:          cfg.Payment.DownloadURL,
	}

	app.Extractor = extractor
	app.AnalysesRepo = repo
	app.AnalysesService = svc
	app.Gate = gate
	app.AnalysisHandler = analyses.NewHandler(svc)
	app.PaymentHandler = payments.NewHandler(svc, gate)
	app.Router = server.NewRouter(server.RouterDeps{
		Config:          cfg,
		Extractor:       extractor,
		AnalysisHandler: app.AnalysisHandler,
		PaymentHandler:  app.PaymentHandler,
		RateLimiter:     middleware.NewRateLimiter(nil),
	})

	return app, nil
}

// Close releases the database pool, if any.
func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if cfg.Database.URL == "" {
		if isDevLike(cfg.Server.Env) {
			telemetry.Warn("bootstrap.memory_store", map[string]any{"reason": "database url empty"})
			return nil, nil
		}
		return nil, eris.New("bootstrap: database url is required")
	}

	opts := db.DefaultServerOptions().Merge(db.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		PingTimeout:     cfg.Database.PingTimeout,
	})
	sqlDB, err := db.Connect(ctx, cfg.Database.URL, opts)
	if err != nil {
		if isDevLike(cfg.Server.Env) {
			telemetry.Warn("bootstrap.memory_store", map[string]any{"reason": "database connect failed", "err": err})
			return nil, nil
		}
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := db.RunMigrations(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	return sqlDB, nil
}

func buildExtractor(cfg config.ExtractionConfig) extraction.Client {
	opts := []extraction.Option{
		extraction.WithBaseURL(cfg.BaseURL),
		extraction.WithAPIKey(cfg.APIKey),
		extraction.WithRateLimit(cfg.Rate, cfg.Burst),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, extraction.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return extraction.NewClient(opts...)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
