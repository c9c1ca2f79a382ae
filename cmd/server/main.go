package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload" // Load .env file automatically

	"github.com/dmitrymomot/twofa/modules/twofa"
	"github.com/dmitrymomot/twofa/pkg/logger"
	"github.com/dmitrymomot/twofa/pkg/pg"
	"github.com/dmitrymomot/twofa/pkg/ratelimit"
	"github.com/dmitrymomot/twofa/pkg/redis"
	"github.com/dmitrymomot/twofa/pkg/secrets"
)

type serverConfig struct {
	Addr            string        `env:"SERVER_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

func main() {
	log, err := logger.NewFromEnv()
	if err != nil {
		slog.Error("failed to build logger", slog.Any("error", err))
		os.Exit(1)
	}

	if err := run(log); err != nil {
		log.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srvCfg serverConfig
	if err := env.Parse(&srvCfg); err != nil {
		return err
	}

	cfg, err := twofa.LoadConfig()
	if err != nil {
		return err
	}

	// The master key is mandatory: refusing to start beats storing seeds in
	// the clear.
	cipher, err := secrets.LoadCipher()
	if err != nil {
		return err
	}

	var pgCfg pg.Config
	if err := env.Parse(&pgCfg); err != nil {
		return err
	}
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}

	var redisCfg redis.Config
	if err := env.Parse(&redisCfg); err != nil {
		return err
	}
	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("failed to close redis client", slog.Any("error", err))
		}
	}()

	limiterStore, err := ratelimit.NewRedisStore(redisClient)
	if err != nil {
		return err
	}
	limiter, err := ratelimit.NewSlidingWindow(limiterStore, cfg.RateLimit, cfg.RateWindow)
	if err != nil {
		return err
	}

	tokens := twofa.NewPostgresTokenStore(pool)
	records := twofa.NewPostgresSecurityRecordStore(pool)
	users := &pgUserDirectory{pool: pool}

	coordinator, err := twofa.NewCoordinator(cfg, tokens, records, users, cipher, twofa.WithLogger(log))
	if err != nil {
		return err
	}
	verifier, err := twofa.NewVerificationService(cfg, records, users, cipher, limiter,
		twofa.WithVerificationLogger(log))
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/health", healthHandler(pg.Healthcheck(pool), redis.Healthcheck(redisClient)))
	r.Mount("/2fa", twofa.Router(coordinator, verifier))

	srv := &http.Server{
		Addr:              srvCfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", slog.String("addr", srvCfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func healthHandler(checks ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}

// pgUserDirectory resolves emails against the host application's users
// table.
type pgUserDirectory struct {
	pool *pgxpool.Pool
}

func (d *pgUserDirectory) UserIDByEmail(ctx context.Context, email string) (string, error) {
	var id string
	err := d.pool.QueryRow(ctx, `SELECT id::text FROM users WHERE email = $1`, email).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", twofa.ErrUserNotFound
	}
	if err != nil {
		return "", err
	}
	return id, nil
}
