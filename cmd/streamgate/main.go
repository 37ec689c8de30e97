// Command streamgate runs the embedded HTTP/1.1 + WebSocket application
// server core around a single in-process Application.
//
// Grounded on tomtom215-cartographus/cmd/server/main.go's staged
// startup/shutdown shape (pattern reference only, not copied) and the
// teacher's own api service entrypoint conventions.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streamgate/streamgate/internal/admission"
	"github.com/streamgate/streamgate/internal/apphandle"
	"github.com/streamgate/streamgate/internal/authhook"
	"github.com/streamgate/streamgate/internal/config"
	"github.com/streamgate/streamgate/internal/dispatcher"
	"github.com/streamgate/streamgate/internal/eventbus/natsrelay"
	"github.com/streamgate/streamgate/internal/httpentry"
	"github.com/streamgate/streamgate/internal/lifespan"
	"github.com/streamgate/streamgate/internal/logging"
	"github.com/streamgate/streamgate/internal/scope"
	"github.com/streamgate/streamgate/internal/statestore"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	logging.Init(cfg.LogLevel, cfg.LogPretty)
	log := logging.Log

	app := mustLoadApplication()

	relay := natsrelay.New(cfg.NATS.URL, cfg.NATS.User, cfg.NATS.Password)
	defer relay.Close()

	mirror := statestore.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer mirror.Close()

	state := scope.NewState()

	lifespanHandle := apphandle.New(app, cfg.BusCapacity)
	lifespanCoord := lifespan.New(lifespanHandle, relay)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := lifespanCoord.Startup(ctx, &scope.LifespanScope{Meta: scope.DefaultMeta(), State: state}); err != nil {
		log.Fatal().Err(err).Msg("lifespan startup failed")
	}
	mirror.Set(ctx, "app.generation", time.Now().Unix())

	var opts []dispatcher.Option
	opts = append(opts, dispatcher.WithLimiter(admission.NewLimiter(cfg.LimitConcurrency)))
	opts = append(opts, dispatcher.WithBodyGuard(admission.NewMaxBodyGuard(cfg.MaxBodyBytes)))
	if cfg.Auth.Mode == "jwt" {
		opts = append(opts, dispatcher.WithAuthHook(authhook.New(cfg.Auth.JWTSecret)))
	}

	d := dispatcher.New(app, cfg.BusCapacity, state, opts...)
	engine := httpentry.NewEngine(d)

	addr := fmt.Sprintf("%s:%d", cfg.Addr, cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      engine,
		IdleTimeout:  time.Duration(cfg.KeepAliveSeconds) * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses may run arbitrarily long
	}

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("listening")
		serveErrCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErrCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	if err := lifespanCoord.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("lifespan shutdown failed")
	}
}

// mustLoadApplication resolves the embedded application callable. The core
// never knows the concrete application in advance; a real embedding
// replaces this with its own binding layer (out of scope per spec.md §1 —
// "the concrete embedding of the application callable" is an external
// collaborator).
func mustLoadApplication() apphandle.Application {
	panic("streamgate: no Application wired — embed one via your own main package")
}
