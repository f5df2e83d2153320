package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/oprema/internal/api"
	"github.com/erazemk/oprema/internal/auth"
	"github.com/erazemk/oprema/internal/catalog"
	"github.com/erazemk/oprema/internal/config"
	"github.com/erazemk/oprema/internal/db"
	"github.com/erazemk/oprema/internal/ledger"
	"github.com/erazemk/oprema/internal/lib/logger/sl"
	"github.com/erazemk/oprema/internal/metrics"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/notify"
	"github.com/erazemk/oprema/internal/planner"
	"github.com/erazemk/oprema/internal/schedule"
	"github.com/erazemk/oprema/internal/telemetry"
)

const usage = `Usage: oprema [serve|init|token] [flags]

Commands:
  serve    run the HTTP API (default)
  init     create the custody and event store schemas
  token    print a signed access token for local testing

Serve flags:
  -a, -addr <host:port>   listen address (default: $OPREMA_ADDR or :8080)
  -l, -log <path>         log file path (default: $OPREMA_LOG, stdout/stderr only)
  -f, -log-format <fmt>   text or json (default: $OPREMA_LOG_FORMAT or text)

Token flags:
  -r, -role <role>        admin, custodian or staff (default: staff)
  -s, -subject <id>       account ID (default: dev)
  -n, -name <name>        display name
  -d, -department <name>  organizing department
  -t, -ttl <duration>     token lifetime (default: 24h)

Configuration is read from OPREMA_* environment variables.
`

func main() {
	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case "serve":
		os.Exit(cmdServe(cfg, args))
	case "init":
		os.Exit(cmdInit(cfg, args))
	case "token":
		os.Exit(cmdToken(cfg, args))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// parseFlags parses args and reports the exit code to use if the command
// should not continue.
func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	fs.Usage = func() { fmt.Fprint(os.Stdout, usage) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, false
		}
		return 1, false
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		return 1, false
	}
	return 0, true
}

func cmdServe(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "")
	fs.StringVar(&cfg.Addr, "a", cfg.Addr, "")
	fs.StringVar(&cfg.LogFile, "log", cfg.LogFile, "")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "")
	fs.StringVar(&cfg.LogFormat, "f", cfg.LogFormat, "")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	log, closeLog, err := setupLogger(cfg.LogFile, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer closeLog()

	if cfg.JWTSecret == "" {
		log.Error("OPREMA_JWT_SECRET is required")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "oprema", cfg.OTelEndpoint)
	if err != nil {
		log.Error("failed to set up tracing", sl.Err(err))
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Warn("failed to flush traces", sl.Err(err))
		}
	}()

	custody, events, err := openStores(ctx, cfg)
	if err != nil {
		log.Error("failed to open stores", sl.Err(err))
		return 1
	}
	defer custody.Close()
	defer events.Close()

	log.Info("stores ready",
		slog.String("custody_driver", cfg.Custody.Driver),
		slog.String("events_driver", cfg.Events.Driver),
	)

	var notifier planner.Notifier = notify.NewLog(log)
	if len(cfg.KafkaBrokers) > 0 {
		k := notify.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer k.Close()
		notifier = k
		log.Info("publishing notifications to kafka", slog.String("topic", cfg.KafkaTopic))
	}

	m := metrics.New()
	l := ledger.New(log, custody, m, ledger.WithRetry(cfg.Retry.Attempts, cfg.Retry.BaseDelay))
	c := catalog.New(log, custody)
	detector := schedule.NewDetector(log, events, m)
	suggester := schedule.NewSuggester(log, detector, events, m,
		schedule.WithWeights(schedule.WeightsFromConfig(cfg.Weights)),
		schedule.WithLocation(cfg.Location()),
	)

	handler := api.NewRouter(api.Deps{
		Log:       log,
		Custody:   custody,
		Events:    events,
		Catalog:   c,
		Ledger:    l,
		Planner:   planner.New(log, events, l, c, notifier, m),
		Detector:  detector,
		Suggester: suggester,
		Metrics:   m,
		JWTSecret: cfg.JWTSecret,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Error("server forced to shutdown", sl.Err(err))
		}
	}()

	log.Info("server started", slog.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", sl.Err(err))
		return 1
	}

	log.Info("server stopped, closing stores")
	return 0
}

func cmdInit(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	log, closeLog, err := setupLogger(cfg.LogFile, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer closeLog()

	custody, events, err := openStores(context.Background(), cfg)
	if err != nil {
		log.Error("failed to initialize stores", sl.Err(err))
		return 1
	}
	custody.Close()
	events.Close()

	fmt.Printf("Custody store ready: %s (%s)\n", cfg.Custody.DSN, cfg.Custody.Driver)
	fmt.Printf("Event store ready: %s (%s)\n", cfg.Events.DSN, cfg.Events.Driver)
	return 0
}

func cmdToken(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)

	var role, subject, name, department string
	var ttl time.Duration
	fs.StringVar(&role, "role", model.RoleStaff, "")
	fs.StringVar(&role, "r", model.RoleStaff, "")
	fs.StringVar(&subject, "subject", "dev", "")
	fs.StringVar(&subject, "s", "dev", "")
	fs.StringVar(&name, "name", "", "")
	fs.StringVar(&name, "n", "", "")
	fs.StringVar(&department, "department", "", "")
	fs.StringVar(&department, "d", "", "")
	fs.DurationVar(&ttl, "ttl", auth.DefaultTTL, "")
	fs.DurationVar(&ttl, "t", auth.DefaultTTL, "")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "error: OPREMA_JWT_SECRET is required")
		return 1
	}
	switch role {
	case model.RoleAdmin, model.RoleCustodian, model.RoleStaff:
	default:
		fmt.Fprintf(os.Stderr, "error: unknown role %q\n", role)
		return 1
	}

	token, err := auth.GenerateToken(cfg.JWTSecret, subject, name, role, department, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Println(token)
	return 0
}

// openStores opens both connection pools and makes sure their schemas exist.
func openStores(ctx context.Context, cfg *config.Config) (custody, events *sqlx.DB, err error) {
	custody, err = openStore(ctx, cfg.Custody, db.Custody)
	if err != nil {
		return nil, nil, err
	}
	events, err = openStore(ctx, cfg.Events, db.Events)
	if err != nil {
		custody.Close()
		return nil, nil, err
	}
	return custody, events, nil
}

func openStore(ctx context.Context, c config.DB, store db.Store) (*sqlx.DB, error) {
	conn, err := db.Open(ctx, db.Config{
		Driver:          c.Driver,
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("%s store: %w", store, err)
	}
	if err := db.EnsureSchema(ctx, conn, store); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s store: %w", store, err)
	}
	return conn, nil
}
