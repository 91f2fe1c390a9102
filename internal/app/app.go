package app

import (
	"context"
	"net/http"

	"github.com/redis/go-redis/v9"
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

// App wires dependencies and manages service lifecycle.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	// configuration
	config config.Config
	ins    instrument.Instrumentation

	// libraries
	goroutine *goroutine.Manager
	validator validator.Validator
	clock     clock.Clocker
	uuid      uid.StringID

	// resources
	cacheConn *redis.Client
	idemp     idempotency.Idempotency
	dialer    *mail.Dialer
	builder   *mail.Builder

	// server
	router       *router.Router
	httpServer   *http.Server
	streamServer *http.Server

	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// New initializes the application with default wiring and returns an App instance.
func New() *App {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		ctx:    ctx,
		cancel: cancel,
	}

	app.initConfig()
	app.initInstrument()
	app.initLibraries()
	app.initCache()
	app.initRelay()
	app.initHTTPServer()
	app.initModules()
	app.initClosers()

	return app
}
