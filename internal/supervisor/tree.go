// Package supervisor runs the long-lived background services under a suture
// supervisor tree, restarting any that fail.
package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// TreeConfig holds restart and shutdown tuning. Zero values take suture's
// defaults.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

func (c *TreeConfig) applyDefaults() {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5.0
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = 30.0
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = 15 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Tree groups services in three layers so a crash loop in one does not take
// the others down with it:
//   - core: location store dispatcher and sweeper, audit writer
//   - realtime: websocket hub, bus-to-hub bridge
//   - api: HTTP server
type Tree struct {
	root     *suture.Supervisor
	core     *suture.Supervisor
	realtime *suture.Supervisor
	api      *suture.Supervisor
	config   TreeConfig
}

// NewTree builds the supervisor hierarchy. Supervisor events are logged to
// logger.
func NewTree(logger zerolog.Logger, config TreeConfig) *Tree {
	config.applyDefaults()

	spec := suture.Spec{
		EventHook:        EventHook(logger),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	childSpec := spec
	childSpec.EventHook = nil

	t := &Tree{
		root:     suture.New("dispatch", spec),
		core:     suture.New("core", childSpec),
		realtime: suture.New("realtime", childSpec),
		api:      suture.New("api", childSpec),
		config:   config,
	}
	t.root.Add(t.core)
	t.root.Add(t.realtime)
	t.root.Add(t.api)
	return t
}

func (t *Tree) AddCoreService(svc suture.Service) suture.ServiceToken {
	return t.core.Add(svc)
}

func (t *Tree) AddRealtimeService(svc suture.Service) suture.ServiceToken {
	return t.realtime.Add(svc)
}

func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the tree until ctx is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine. The channel yields the
// result once the tree has stopped.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that ignored the shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

// EventHook logs suture events through zerolog. Panics and terminations are
// errors, backoff and stop timeouts warnings.
func EventHook(logger zerolog.Logger) suture.EventHook {
	l := logger.With().Str("component", "supervisor").Logger()
	return func(e suture.Event) {
		var ev *zerolog.Event
		switch e.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeServiceTerminate:
			ev = l.Error()
		case suture.EventTypeBackoff, suture.EventTypeStopTimeout:
			ev = l.Warn()
		default:
			ev = l.Info()
		}
		ev.Fields(e.Map()).Msg(e.String())
	}
}
