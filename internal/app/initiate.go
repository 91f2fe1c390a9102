package app

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/shandysiswandi/gosend/internal/pkg/clock"
	"github.com/shandysiswandi/gosend/internal/pkg/config"
	"github.com/shandysiswandi/gosend/internal/pkg/goroutine"
	"github.com/shandysiswandi/gosend/internal/pkg/idempotency"
	"github.com/shandysiswandi/gosend/internal/pkg/instrument"
	"github.com/shandysiswandi/gosend/internal/pkg/mail"
	"github.com/shandysiswandi/gosend/internal/pkg/router"
	"github.com/shandysiswandi/gosend/internal/pkg/uid"
	"github.com/shandysiswandi/gosend/internal/pkg/validator"
)

func (a *App) initConfig() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "/config/config.yaml"
		if os.Getenv("LOCAL") == "true" {
			path = "./config/config.yaml"
		}
	}

	cfg, err := config.NewViper(path)
	if err != nil {
		slog.Error("failed to init config", "error", err)
		os.Exit(1)
	}

	//nolint:errcheck,gosec // ignore error
	os.Setenv("TZ", cfg.GetString("app.tz"))

	a.config = cfg
}

func (a *App) initInstrument() {
	ins, err := instrument.New(context.Background(), &instrument.Config{
		Enabled:          a.config.GetBool("instrument.enabled"),
		ServiceName:      a.config.GetString("instrument.service_name"),
		ServiceVersion:   a.config.GetString("instrument.service_version"),
		Environment:      a.config.GetString("instrument.env"),
		OTLPEndpoint:     a.config.GetString("instrument.otlp_endpoint"),
		OTLPSecure:       a.config.GetBool("instrument.otlp_secure"),
		TraceSampleRatio: a.config.GetFloat64("instrument.trace_sample_ratio"),
		MetricsInterval:  a.config.GetSecond("instrument.metric_interval_seconds"),
		MaskFields:       a.config.GetArray("instrument.log_mask_fields"),
	})
	if err != nil {
		slog.Error("failed to init instrumentation", "error", err)
		os.Exit(1)
	}
	a.ins = ins
}

func (a *App) initLibraries() {
	a.clock = clock.New()
	a.uuid = uid.NewUUID()
	a.goroutine = goroutine.NewManager(a.config.GetInt("app.server.max_goroutine"))

	validator, err := validator.NewV10Validator()
	if err != nil {
		slog.Error("failed to init validation v10 validator", "error", err)
		os.Exit(1)
	}
	a.validator = validator
}

func (a *App) initCache() {
	if !a.config.GetBool("redis.enabled") {
		slog.Info("redis disabled, campaign idempotency keys are ignored")
		return
	}

	opt, err := redis.ParseURL(a.config.GetString("redis.url"))
	if err != nil {
		slog.Error("failed to parse redis url", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Error("failed to init redis", "error", err)
		os.Exit(1)
	}

	a.cacheConn = rdb
	a.idemp = idempotency.New(a.cacheConn)
}

func (a *App) initRelay() {
	host := a.config.GetString("relay.host")
	if host == "" {
		host = "smtp.gmail.com"
	}
	port := a.config.GetInt("relay.port")
	if port == 0 {
		port = 587
	}

	dialer, err := mail.NewDialer(mail.DialerConfig{
		Host:      host,
		Port:      port,
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			//nolint:gosec // opt-in for local relays with self-signed certificates
			InsecureSkipVerify: a.config.GetBool("relay.insecure_skip_verify"),
		},
		ConnectAttempts: uint64(max(a.config.GetInt("relay.connect_attempts"), 1)),
		ConnectBackoff:  a.config.GetMillisecond("relay.connect_backoff_ms"),
	})
	if err != nil {
		slog.Error("failed to init relay dialer", "error", err)
		os.Exit(1)
	}

	a.dialer = dialer
	a.builder = mail.NewBuilder(a.clock)
}

func (a *App) initHTTPServer() {
	a.router = router.NewRouter(router.Config{
		Config:     a.config,
		UUID:       a.uuid,
		Instrument: a.ins,
	})

	routerWithCORS := cors.New(cors.Options{
		AllowedOrigins: a.config.GetArray("app.server.cors"),
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(a.router)

	baseContext := func(net.Listener) context.Context { return a.ctx }

	a.httpServer = &http.Server{
		Addr:              a.config.GetString("app.server.http.address"),
		Handler:           routerWithCORS,
		ReadTimeout:       a.config.GetSecond("app.server.http.read_timeout_seconds"),
		ReadHeaderTimeout: a.config.GetSecond("app.server.http.read_header_timeout_seconds"),
		WriteTimeout:      a.config.GetSecond("app.server.http.write_timeout_seconds"),
		IdleTimeout:       a.config.GetSecond("app.server.http.idle_timeout_seconds"),
		BaseContext:       baseContext,
	}

	// no write timeout, a campaign stream lasts as long as its run
	a.streamServer = &http.Server{
		Addr:              a.config.GetString("app.server.stream.address"),
		Handler:           routerWithCORS,
		ReadHeaderTimeout: a.config.GetSecond("app.server.stream.read_header_timeout_seconds"),
		BaseContext:       baseContext,
	}
}

// initClosers queues resources for Stop, in release order.
func (a *App) initClosers() {
	a.onStop("instrument", a.ins.Shutdown)
	if a.cacheConn != nil {
		a.onStop("redis", func(context.Context) error { return a.cacheConn.Close() })
	}
	a.onStop("config", func(context.Context) error { return a.config.Close() })
}

func (a *App) onStop(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}
