package api

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hilthontt/burner/internal/application/gate"
	"github.com/hilthontt/burner/internal/infrastructure/configs"
	"github.com/hilthontt/burner/internal/infrastructure/logging"
	"github.com/hilthontt/burner/internal/infrastructure/ratelimiter"
	healthHandler "github.com/hilthontt/burner/internal/presentation/handler/health"
	roomHandler "github.com/hilthontt/burner/internal/presentation/handler/rooms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serverName = "burner-http"

type Application struct {
	config         configs.Config
	roomHandler    *roomHandler.Handler
	healthHandler  *healthHandler.Handler
	gate           *gate.Gate
	metricsHandler http.Handler
	logger         logging.Logger
	ratelimiter    ratelimiter.Limiter
}

func NewApplication(
	config configs.Config,
	roomHandler *roomHandler.Handler,
	healthHandler *healthHandler.Handler,
	gate *gate.Gate,
	metricsHandler http.Handler,
	logger logging.Logger,
	ratelimiter ratelimiter.Limiter,
) *Application {
	return &Application{
		config:         config,
		roomHandler:    roomHandler,
		healthHandler:  healthHandler,
		gate:           gate,
		metricsHandler: metricsHandler,
		logger:         logger,
		ratelimiter:    ratelimiter,
	}
}

func (app *Application) Mount() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(app.enableCors)

	// The room page is the Gate.
	r.With(app.gateMiddleware).Get("/room/{roomId}", app.roomHandler.GetRoomHandler)

	r.Route("/api", func(r chi.Router) {
		r.With(app.rateLimiterMiddleware).Post("/room/create", app.roomHandler.CreateRoomHandler)
		r.Get("/relay", app.roomHandler.RelayHandler)

		r.Get("/health", app.healthHandler.GetHealth)
		r.Get("/healthz", app.healthHandler.GetHealth)
		r.Get("/live", app.healthHandler.GetHealth)
		r.Get("/ready", app.healthHandler.GetReady)
	})

	if app.metricsHandler != nil {
		r.Handle("/metrics", app.metricsHandler)
	}
	r.Handle("/debug/vars", expvar.Handler())

	return otelhttp.NewHandler(r, serverName)
}

// Run serves mux until ctx is cancelled or the process is signalled, then
// drains in-flight requests.
func (app *Application) Run(ctx context.Context, mux http.Handler) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", app.config.HTTP.Host, app.config.HTTP.Port),
		Handler:      mux,
		WriteTimeout: app.config.HTTP.WriteTimeout,
		ReadTimeout:  app.config.HTTP.ReadTimeout,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error, 1)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		reason := "context cancelled"
		select {
		case s := <-quit:
			reason = s.String()
		case <-ctx.Done():
		}

		app.logger.Info(logging.General, logging.Shutdown, "shutting down server", map[logging.ExtraKey]any{
			logging.Reason: reason,
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		shutdown <- srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(logging.General, logging.Startup, "server has started", map[logging.ExtraKey]any{
		logging.HostIp: srv.Addr,
	})

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	if err := <-shutdown; err != nil {
		return err
	}

	app.logger.Info(logging.General, logging.Shutdown, "server has stopped", map[logging.ExtraKey]any{
		logging.HostIp: srv.Addr,
	})

	return nil
}
