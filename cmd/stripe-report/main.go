// Command stripe-report lists the objects of a Stripe resource created within
// a date window, optionally resolving a referenced resource on each of them,
// and prints the result as JSON.
//
//	stripe-report -resource applicationFees -from 2018-03-07 -to 2018-03-10 \
//	    -populate-key originating_transaction -populate-resource charges
//
// When METRICS_ADDR is set, /health, /ready and /metrics are served for as
// long as the run lasts. The command exits after printing, so the endpoint is
// meant for inspecting long fetches while debugging, not for scraping.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Sternrassler/stripe-helpers/pkg/client"
	"github.com/Sternrassler/stripe-helpers/pkg/helpers"
	"github.com/Sternrassler/stripe-helpers/pkg/logging"
	"github.com/Sternrassler/stripe-helpers/pkg/metrics"
	"github.com/Sternrassler/stripe-helpers/pkg/pagination"
	"github.com/Sternrassler/stripe-helpers/pkg/resolve"
	"github.com/Sternrassler/stripe-helpers/pkg/resource"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()
	logging.Setup(logging.FromEnv())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Error().Err(err).Msg("stripe-report failed")
		os.Exit(1)
	}
}

// envConfig is the environment part of the configuration.
type envConfig struct {
	APIKey      string
	APIBase     string
	RedisURL    string
	MetricsAddr string // debug endpoint, live only while the run lasts
	Timeout     time.Duration
}

func loadEnv() (envConfig, error) {
	cfg := envConfig{
		APIKey:      os.Getenv("STRIPE_SECRET_KEY"),
		APIBase:     getEnv("STRIPE_API_BASE", client.DefaultBaseURL),
		RedisURL:    os.Getenv("REDIS_URL"),
		MetricsAddr: os.Getenv("METRICS_ADDR"),
		Timeout:     time.Duration(getEnvInt("STRIPE_TIMEOUT_SECONDS", 30)) * time.Second,
	}
	if cfg.APIKey == "" {
		return envConfig{}, fmt.Errorf("missing required env: STRIPE_SECRET_KEY")
	}
	return cfg, nil
}

// options are the command line flags.
type options struct {
	Resource         string
	From             string
	To               string
	Limit            int
	PageSize         int
	Account          string
	PopulateKey      string
	PopulateResource string
	PopulateAs       string
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("stripe-report", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.Resource, "resource", "applicationFees", "resource to list")
	fs.StringVar(&opts.From, "from", "", "first day of the window (YYYY-MM-DD)")
	fs.StringVar(&opts.To, "to", "", "last day of the window (YYYY-MM-DD)")
	fs.IntVar(&opts.Limit, "limit", 0, "list the newest N objects instead of a date window")
	fs.IntVar(&opts.PageSize, "page-size", pagination.DefaultPageSize, "objects per list call (1-100)")
	fs.StringVar(&opts.Account, "account", "", "connected account id")
	fs.StringVar(&opts.PopulateKey, "populate-key", "", "field holding the id to resolve")
	fs.StringVar(&opts.PopulateResource, "populate-resource", "", "resource the populate key refers to")
	fs.StringVar(&opts.PopulateAs, "populate-as", "", "field to store the resolved object under")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if _, err := resource.LookupListable(opts.Resource); err != nil {
		return options{}, err
	}
	if opts.Limit < 0 {
		return options{}, fmt.Errorf("-limit must be >= 0 (got %d)", opts.Limit)
	}
	if opts.Limit == 0 && (opts.From == "" || opts.To == "") {
		return options{}, fmt.Errorf("-from and -to are required unless -limit is set")
	}
	if (opts.PopulateKey == "") != (opts.PopulateResource == "") {
		return options{}, fmt.Errorf("-populate-key and -populate-resource must be set together")
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	env, err := loadEnv()
	if err != nil {
		return err
	}

	cfg := client.DefaultConfig(env.APIKey)
	cfg.BaseURL = env.APIBase
	cfg.Timeout = env.Timeout

	var redisClient *redis.Client
	if env.RedisURL != "" {
		redisClient, err = newRedis(ctx, env.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		cfg.Redis = redisClient
	}

	h, err := helpers.NewWithConfig(cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	if env.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              env.MetricsAddr,
			Handler:           newMux(redisClient),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", env.MetricsAddr).Msg("Serving debug metrics until the run completes")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		defer srv.Close()
	}

	items, err := fetch(ctx, h, opts)
	if err != nil {
		return err
	}

	if opts.PopulateKey != "" {
		items, err = h.PopulateResource(ctx, items, resolve.Spec{
			ForeignKey:     opts.PopulateKey,
			TargetResource: opts.PopulateResource,
			As:             opts.PopulateAs,
			Account:        opts.Account,
		})
		if err != nil {
			return err
		}
	}

	if items == nil {
		items = []resource.Item{}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

func fetch(ctx context.Context, h *helpers.Helpers, opts options) ([]resource.Item, error) {
	if opts.Limit > 0 {
		return h.GetWithCustomLimit(ctx, pagination.LimitQuery{
			Resource: opts.Resource,
			Limit:    opts.Limit,
			PageSize: opts.PageSize,
			Account:  opts.Account,
		})
	}

	window, err := pagination.ParseDateWindow(opts.From, opts.To)
	if err != nil {
		return nil, err
	}
	return h.GetBetweenDates(ctx, pagination.DateQuery{
		Resource: opts.Resource,
		Window:   window,
		PageSize: opts.PageSize,
		Account:  opts.Account,
	})
}

func newRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}

	rdb := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", redisOpts.Addr, err)
	}

	log.Info().Str("addr", redisOpts.Addr).Msg("Connected to Redis")
	return rdb, nil
}

func newMux(redisClient *redis.Client) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(redisClient))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// readyHandler reports whether Redis (when configured) is reachable.
func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}
