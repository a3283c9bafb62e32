package driversession

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/man137/Ryda/internal/config"
	"github.com/man137/Ryda/internal/driver-session/adapters/driven/bm"
	"github.com/man137/Ryda/internal/driver-session/adapters/driven/db"
	"github.com/man137/Ryda/internal/driver-session/adapters/driven/geo"
	"github.com/man137/Ryda/internal/driver-session/adapters/driven/routes"
	"github.com/man137/Ryda/internal/driver-session/adapters/driven/ws"
	"github.com/man137/Ryda/internal/driver-session/core/domain/model"
	"github.com/man137/Ryda/internal/driver-session/core/ports/driven"
	"github.com/man137/Ryda/internal/driver-session/core/ports/driver"
	"github.com/man137/Ryda/internal/driver-session/core/services"
	"github.com/man137/Ryda/internal/mylogger"
)

// Options carry the per-invocation inputs from the command line.
type Options struct {
	Token    string
	SimStart model.Coordinates
}

// UI drives the session on behalf of the human (or the autopilot). It
// runs until it returns or ctx is canceled.
type UI func(ctx context.Context, cmds driver.SessionCommands) error

// Run wires the whole driver session together and blocks until the UI
// finishes or a shutdown signal arrives. Teardown closes the dispatch
// connection with the normal closure code, stops the position watch and
// cancels pending timers before returning.
func Run(ctx context.Context, l mylogger.Logger, cfg *config.Config, opts Options, ui UI) error {
	shutdown, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	auth := services.NewAuthService(cfg.Secret)
	driverID, err := auth.ValidateDriverToken(opts.Token)
	if err != nil {
		return fmt.Errorf("validating driver token: %w", err)
	}
	l = l.With("driver_id", driverID)

	database, err := db.ConnectDB(shutdown, cfg.DB, l)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	statusRepo := db.NewStatusRepository(database)

	// Identity is immutable for the session: loaded once, read-only.
	identity, err := statusRepo.GetDriverByID(shutdown, driverID)
	if err != nil {
		return fmt.Errorf("loading driver identity: %w", err)
	}
	if !identity.Eligible() {
		l.Action("startup").Warn("driver is not eligible to go online",
			"is_approved", identity.IsApproved, "is_active", identity.IsActive)
	}

	// The fleet broker is an optional collaborator; the session runs
	// without telemetry when it is not configured or unreachable.
	var telemetry driven.TelemetryPublisher
	if cfg.RabbitMq.Host != "" {
		telemetry, err = bm.New(shutdown, cfg.RabbitMq, l)
		if err != nil {
			l.Action("startup").Warn("fleet telemetry unavailable", "error", err.Error())
			telemetry = nil
		} else {
			defer telemetry.Close()
		}
	}

	var routeSvc driven.RouteService
	if cfg.Routes.BaseURL != "" {
		routeSvc = routes.NewClient(cfg.Routes.BaseURL, l)
	}

	var dispatch *ws.Client
	session := services.NewSession(services.Deps{
		Log:        l,
		Identity:   identity,
		StatusRepo: statusRepo,
		Routes:     routeSvc,
		Telemetry:  telemetry,
		NewConn: func(events driven.ConnEvents) driven.DispatchConn {
			dispatch = ws.NewClient(ws.Config{
				BaseURL:  cfg.Dispatch.BaseURL,
				DriverID: driverID,
			}, events, l)
			return dispatch
		},
		NewStreamer: func(sink driven.LocationEvents) driven.LocationStreamer {
			source := &geo.SimSource{Start: opts.SimStart}
			return geo.NewStreamer(source, sink, l, driven.WatchOptions{
				HighAccuracy: true,
				MaximumAge:   time.Duration(cfg.Geo.MaxSampleAgeSeconds) * time.Second,
				Timeout:      time.Duration(cfg.Geo.TimeoutSeconds) * time.Second,
			})
		},
	})

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		session.Run(loopCtx)
		close(loopDone)
	}()

	dispatch.Connect()
	l.Action("startup").Info("driver session started", "dispatch_url", cfg.Dispatch.BaseURL)

	uiDone := make(chan error, 1)
	go func() {
		uiDone <- ui(shutdown, session)
	}()

	var uiErr error
	select {
	case <-shutdown.Done():
		l.Action("shutdown").Info("Gracefully shutting down...")
	case uiErr = <-uiDone:
	}

	cancelLoop()
	<-loopDone
	return uiErr
}
