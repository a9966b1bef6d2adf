package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/triptide/collector/internal/api"
	"github.com/triptide/collector/internal/cache"
	"github.com/triptide/collector/internal/clean"
	"github.com/triptide/collector/internal/config"
	"github.com/triptide/collector/internal/enrich"
	"github.com/triptide/collector/internal/harvest"
	"github.com/triptide/collector/internal/layers"
	"github.com/triptide/collector/internal/metrics"
	"github.com/triptide/collector/internal/overpass"
	"github.com/triptide/collector/internal/pipeline"
	"github.com/triptide/collector/internal/storage"
)

const usage = `usage: collector <command> [city]

commands:
  harvest <city>   fetch raw OSM tiles into the bronze layer
  clean <city>     standardize the latest harvest into the silver layer
  enrich <city>    generate travel content into the gold layer
  load <city>      load the gold layer into the production database
  all <city>       run every stage in order
  import <city> <file.csv>
                   add operator CSV rows to the city's manual records
  status           print configured cities and layer counts
  serve            run the HTTP control surface`

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(log, os.Args[1:]); err != nil {
		log.Error("collector exited with error", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("no command given")
	}
	command := args[0]

	cfg, err := config.Load(getEnv("CITIES_CONFIG", "cities.yaml"))
	if err != nil {
		return fmt.Errorf("loading cities config: %w", err)
	}
	store, err := layers.NewFileStore(getEnv("DATA_DIR", "data"))
	if err != nil {
		return fmt.Errorf("opening layer store: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case pipeline.StageHarvest, pipeline.StageClean, pipeline.StageEnrich, pipeline.StageLoad, pipeline.StageAll:
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, usage)
			return fmt.Errorf("command %s requires a city", command)
		}
		app, err := buildApp(ctx, cfg, store, log, command)
		if err != nil {
			return err
		}
		defer app.close()
		return app.pipe.RunStage(ctx, args[1], command)

	case "import":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, usage)
			return fmt.Errorf("import requires a city and a csv file")
		}
		city, ok := cfg.City(args[1])
		if !ok {
			return fmt.Errorf("unknown city %q", args[1])
		}
		f, err := os.Open(args[2])
		if err != nil {
			return fmt.Errorf("opening csv file: %w", err)
		}
		defer f.Close()
		_, err = clean.NewCSVStandardizer(store, log).Run(f, city.Key())
		return err

	case "status":
		app, err := buildApp(ctx, cfg, store, log, command)
		if err != nil {
			return err
		}
		defer app.close()
		status, err := app.pipe.Status()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)

	case "serve":
		return serve(ctx, cfg, store, log)

	default:
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// app bundles the pipeline with the connections it owns.
type app struct {
	pipe  *pipeline.Pipeline
	pool  *pgxpool.Pool
	redis *redis.Client
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// buildApp wires the pipeline. The database is connected only when the
// command can reach the load stage; Redis only when REDIS_URL is set.
func buildApp(ctx context.Context, cfg *config.Config, store layers.Store, log *slog.Logger, command string) (*app, error) {
	a := &app{}

	fetcher := overpass.NewClient(log)
	fetcher.SetBaseURL(os.Getenv("OVERPASS_URL"))

	generator := enrich.NewClient(os.Getenv("OLLAMA_URL"), os.Getenv("OLLAMA_MODEL"))

	var enrichmentCache enrich.EnrichmentCache
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		client, err := cache.Connect(ctx, redisURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		a.redis = client
		enrichmentCache = cache.NewCache(client)
	}

	var loader *storage.Loader
	needsDB := command == pipeline.StageLoad || command == pipeline.StageAll
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		pool, err := storage.Connect(ctx, databaseURL, os.Getenv("DB_SCHEMA"))
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		a.pool = pool

		if err := storage.RunMigrations(ctx, pool, getEnv("MIGRATIONS_DIR", "migrations")); err != nil {
			a.close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		log.Info("migrations applied")

		loader = storage.NewLoader(store, storage.NewRepository(pool, log), log)
	} else if command == pipeline.StageLoad {
		return nil, fmt.Errorf("load command requires DATABASE_URL")
	} else if needsDB {
		log.Info("DATABASE_URL not set, load stage will be skipped")
	}

	a.pipe = pipeline.New(
		cfg,
		store,
		harvest.NewHarvester(fetcher, store, log),
		clean.NewStandardizer(store, log),
		enrich.NewEnricher(store, generator, enrichmentCache, log),
		enrich.NewDestinationEnricher(store, generator, log),
		log,
		pipeline.Options{
			Loader:      loader,
			Workers:     getEnvInt("ENRICH_WORKERS", 1),
			EnrichLimit: getEnvInt("ENRICH_LIMIT", 0),
		},
	)
	return a, nil
}

func serve(ctx context.Context, cfg *config.Config, store layers.Store, log *slog.Logger) error {
	bearerToken := mustEnv("BEARER_TOKEN")
	port := getEnv("PORT", "8080")

	metrics.Init()

	a, err := buildApp(ctx, cfg, store, log, "serve")
	if err != nil {
		return err
	}
	defer a.close()

	var dbPinger, redisPinger api.Pinger
	if a.pool != nil {
		dbPinger = a.pool
	}
	if a.redis != nil {
		redisPinger = &redisPingerAdapter{client: a.redis}
	}

	handlers := api.NewHandlers(a.pipe, a.pipe, log)
	router := api.NewRouter(handlers, bearerToken, dbPinger, redisPinger, log)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("server goroutine panicked", "recover", r)
				errCh <- fmt.Errorf("server panicked: %v", r)
			}
		}()
		log.Info("server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listening: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("server shut down cleanly")
	return nil
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable not set", "key", key)
		os.Exit(1)
	}
	return v
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring non-numeric environment variable", "key", key, "value", v)
		return fallback
	}
	return n
}

// redisPingerAdapter adapts redis.Client to the api.Pinger interface.
type redisPingerAdapter struct {
	client *redis.Client
}

func (r *redisPingerAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
