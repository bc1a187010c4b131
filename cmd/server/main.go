package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"

	auth "github.com/dev-jds/auth-app"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the yaml configuration file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	zlog, err := newZapLogger(cfg.Logging.Development)
	if err != nil {
		log.Fatalf("logger setup error: %v", err)
	}
	defer zlog.Sync()

	logger := zapAdapter{sugar: zlog.Sugar()}

	db, err := openDatabase(cfg.Database.DSN)
	if err != nil {
		zlog.Fatal("database open failed", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()

	if err := createTables(ctx, db); err != nil {
		zlog.Fatal("schema setup failed", zap.Error(err))
	}

	repo := auth.NewRepositoryManager(db)
	if err := repo.Validate(); err != nil {
		zlog.Fatal("repository setup failed", zap.Error(err))
	}

	provider := auth.NewUserProvider(repo.Users()).WithLogger(logger)

	auther := auth.NewAuthenticator(provider, &cfg.Auth).
		WithLogger(logger).
		WithRevoker(repo.RevokedTokens())

	app := fiber.New(fiber.Config{
		AppName:               "auth-app",
		DisableStartupMessage: !cfg.Logging.Development,
	})

	auth.RegisterAuthRoutes(app,
		auth.WithControllerLogger(logger),
		auth.WithControllerRepo(repo),
		auth.WithControllerAuther(auther),
		auth.WithControllerConfig(&cfg.Auth),
	)

	purgeCtx, stopPurge := context.WithCancel(ctx)
	defer stopPurge()
	go purgeRevokedTokens(purgeCtx, repo.RevokedTokens(), zlog)

	go func() {
		if err := app.Listen(cfg.Server.Address); err != nil {
			zlog.Fatal("server stopped", zap.Error(err))
		}
	}()

	zlog.Info("server listening", zap.String("address", cfg.Server.Address))

	sig := waitExitSignal()
	zlog.Info("shutting down", zap.String("signal", sig.String()))

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		zlog.Error("shutdown error", zap.Error(err))
	}
}

func newZapLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openDatabase(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}

func createTables(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*auth.User)(nil),
		(*auth.RevokedToken)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}
	}

	return nil
}

// purgeRevokedTokens trims revocation entries whose natural expiry has
// passed; once a token is expired the time check rejects it without the
// index.
func purgeRevokedTokens(ctx context.Context, revoker *auth.BunRevoker, zlog *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := revoker.PurgeExpired(ctx, now); err != nil {
				zlog.Warn("revocation purge failed", zap.Error(err))
			}
		}
	}
}

func waitExitSignal() os.Signal {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	return <-ch
}

// zapAdapter bridges zap's sugared logger into the auth Logger interface.
type zapAdapter struct {
	sugar *zap.SugaredLogger
}

func (l zapAdapter) Debug(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l zapAdapter) Info(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l zapAdapter) Warn(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l zapAdapter) Error(format string, args ...any) { l.sugar.Errorf(format, args...) }
