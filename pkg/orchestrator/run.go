package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/pactown/pactown/pkg/errdefs"
	"github.com/pactown/pactown/pkg/events"
	"github.com/pactown/pactown/pkg/metrics"
)

// Run supervises the ecosystem until ctx is cancelled, then performs a
// full Down. Crashed services with auto_restart get a fresh sandbox and
// a new start; deliberate stops do not trigger a restart.
func (e *Engine) Run(ctx context.Context, opts Options) error {
	sub := e.broker.Subscribe()
	defer e.broker.Unsubscribe(sub)

	e.logger.Info().Msg("Supervising services")
	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Shutdown requested, stopping all services")
			return e.Down()
		case event, ok := <-sub:
			if !ok {
				return nil
			}
			e.handleEvent(ctx, event, opts)
		}
	}
}

// handleEvent reacts to one broker event. Only unexpected exits are
// acted on; everything else is bookkeeping.
func (e *Engine) handleEvent(ctx context.Context, event *events.Event, opts Options) {
	switch event.Type {
	case events.EventServiceStopped:
		e.removeStarted(event.Service)

	case events.EventServiceExited:
		e.removeStarted(event.Service)
		if e.policy != nil {
			e.policy.RecordStop(e.userID, event.Service)
		}

		svc := e.cfg.Service(event.Service)
		if svc == nil || !svc.AutoRestart || e.down.Load() {
			return
		}
		e.logger.Warn().
			Str("service", event.Service).
			Str("exit_status", event.Metadata["exit_status"]).
			Msg("Service exited unexpectedly, restarting")
		metrics.ServiceRestarts.Inc()
		if err := e.startService(ctx, event.Service, opts); err != nil {
			e.logger.Error().Err(err).Str("service", event.Service).Msg("Restart failed")
			return
		}
		e.broker.Publish(&events.Event{
			Type:    events.EventServiceRestarted,
			Service: event.Service,
			Message: "Restarted after unexpected exit",
		})
	}
}

// Down stops every service in reverse dependency order. Each stop is
// attempted even when earlier ones fail; errors are aggregated.
func (e *Engine) Down() error {
	e.down.Store(true)

	order, err := e.resolver.Order()
	if err != nil {
		return err
	}

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		if _, known := e.sandboxes.Status(name); !known {
			continue
		}
		if err := e.stopService(name); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// stopService stops one service and updates policy accounting. Stopping
// a service that is not running is a no-op.
func (e *Engine) stopService(name string) error {
	wasAlive := e.sandboxes.Alive(name)
	if err := e.sandboxes.Stop(name); err != nil {
		return err
	}
	// The supervisor unregisters asynchronously on exit; a deliberate
	// stop leaves the registry clean before returning.
	e.unregister(name)
	if wasAlive && e.policy != nil {
		e.policy.RecordStop(e.userID, name)
	}
	e.removeStarted(name)
	return nil
}

// Restart stops one service and starts it again with a freshly
// materialized sandbox.
func (e *Engine) Restart(ctx context.Context, name string, opts Options) error {
	if e.cfg.Service(name) == nil {
		return errdefs.Config("unknown service %q", name)
	}
	if err := e.stopService(name); err != nil {
		return err
	}
	return e.startService(ctx, name, opts)
}
