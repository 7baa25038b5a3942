package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pactown/pactown/pkg/artifact"
	"github.com/pactown/pactown/pkg/cache"
	"github.com/pactown/pactown/pkg/config"
	"github.com/pactown/pactown/pkg/errdefs"
	"github.com/pactown/pactown/pkg/events"
	"github.com/pactown/pactown/pkg/log"
	"github.com/pactown/pactown/pkg/network"
	"github.com/pactown/pactown/pkg/registry"
	"github.com/pactown/pactown/pkg/resolver"
	"github.com/pactown/pactown/pkg/sandbox"
	"github.com/pactown/pactown/pkg/security"
	"github.com/pactown/pactown/pkg/types"
)

// DefaultWorkers bounds how many services of one dependency wave start
// concurrently unless the caller overrides it.
const DefaultWorkers = 4

// Engine is the top-level coordinator for one ecosystem. It owns the
// port allocator, service registry, dependency cache, sandbox manager,
// and event broker, and drives startup, steady-state supervision, and
// shutdown.
type Engine struct {
	cfg       *config.Config
	resolver  *resolver.Resolver
	allocator *network.PortAllocator
	registry  *registry.Registry
	cache     *cache.Cache
	sandboxes *sandbox.Manager
	broker    *events.Broker
	logger    zerolog.Logger

	policy *security.Policy
	userID string

	mu      sync.Mutex
	started []string // services started by this invocation, in order

	down atomic.Bool // set once shutdown begins; suppresses restarts
}

// New assembles an engine for cfg. Registry state from a previous run
// is reloaded, keeping only endpoints whose process is still alive.
func New(cfg *config.Config) (*Engine, error) {
	alloc, err := network.NewPortAllocator()
	if err != nil {
		return nil, err
	}
	reg := registry.New(alloc, cfg.SandboxRoot)

	c, err := cache.New(cfg.SandboxRoot)
	if err != nil {
		return nil, err
	}

	broker := events.NewBroker()
	broker.Start()

	mgr, err := sandbox.NewManager(cfg.SandboxRoot, c, reg, broker)
	if err != nil {
		broker.Stop()
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		resolver:  resolver.New(cfg),
		allocator: alloc,
		registry:  reg,
		cache:     c,
		sandboxes: mgr,
		broker:    broker,
		logger:    log.WithComponent("orchestrator"),
	}

	if err := reg.Load(func(ep types.ServiceEndpoint) bool { return mgr.Alive(ep.Name) }); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to reload service registry, starting empty")
	}
	return e, nil
}

// SetPolicy enables security admission for every start, attributed to
// userID. Without it all starts are admitted.
func (e *Engine) SetPolicy(p *security.Policy, userID string) {
	e.policy = p
	e.userID = userID
}

// Config returns the ecosystem configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// Resolver returns the dependency resolver.
func (e *Engine) Resolver() *resolver.Resolver { return e.resolver }

// Registry returns the service registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Cache returns the dependency environment cache.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Sandboxes returns the sandbox manager.
func (e *Engine) Sandboxes() *sandbox.Manager { return e.sandboxes }

// Broker returns the lifecycle event broker.
func (e *Engine) Broker() *events.Broker { return e.broker }

// Close releases the engine's background resources. Running services
// are left alone; call Down first to stop them.
func (e *Engine) Close() {
	e.broker.Stop()
}

// Options control how services are started.
type Options struct {
	// SkipHealth starts processes without waiting for readiness.
	SkipHealth bool

	// Sequential starts services one at a time in resolver order
	// instead of wave-parallel.
	Sequential bool

	// Workers bounds per-wave start concurrency. Zero means
	// DefaultWorkers.
	Workers int
}

// Up starts every service of the ecosystem in dependency order.
// Services within one wave have no edges between them and start
// concurrently. On any failure the services already started by this
// call are torn down in reverse order and the first error is returned.
func (e *Engine) Up(ctx context.Context, opts Options) error {
	waves, err := e.resolver.Waves()
	if err != nil {
		return err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if opts.Sequential {
		var flat [][]string
		for _, wave := range waves {
			for _, name := range wave {
				flat = append(flat, []string{name})
			}
		}
		waves = flat
		workers = 1
	}

	e.down.Store(false)
	for i, wave := range waves {
		e.logger.Info().
			Int("wave", i+1).
			Int("waves", len(waves)).
			Strs("services", wave).
			Msg("Starting wave")

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, name := range wave {
			name := name
			g.Go(func() error {
				return e.startService(gctx, name, opts)
			})
		}
		if err := g.Wait(); err != nil {
			e.logger.Error().Err(err).Msg("Startup failed, stopping services started so far")
			if terr := e.teardownStarted(); terr != nil {
				e.logger.Error().Err(terr).Msg("Teardown after failed startup reported errors")
			}
			return err
		}
	}
	return nil
}

// startService runs the full admission-to-healthy sequence for one
// service: policy check, endpoint registration, sandbox
// materialization, environment composition, launch, readiness wait.
// Partial work is unwound on failure. A service that is already
// running is left untouched.
func (e *Engine) startService(ctx context.Context, name string, opts Options) error {
	svc := e.cfg.Service(name)
	if svc == nil {
		return errdefs.Config("unknown service %q", name)
	}
	if e.sandboxes.Alive(name) {
		e.logger.Info().Str("service", name).Msg("Service already running, leaving it alone")
		return nil
	}

	if e.policy != nil {
		decision := e.policy.CheckCanStart(e.userID, name, svc.Port)
		if !decision.Allowed {
			e.broker.Publish(&events.Event{
				Type:    events.EventPolicyDenied,
				Service: name,
				Message: decision.Reason,
			})
			return fmt.Errorf("start %s: %w: %s", name, errdefs.ErrPolicyDenied, decision.Reason)
		}
		if decision.DelaySeconds > 0 {
			delay := time.Duration(decision.DelaySeconds * float64(time.Second))
			e.logger.Warn().
				Str("service", name).
				Dur("delay", delay).
				Str("reason", decision.Reason).
				Msg("Start throttled")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	art, err := e.artifactFor(svc)
	if err != nil {
		return err
	}

	endpoint, err := e.registry.Register(name, svc.Port, svc.HealthCheck)
	if err != nil {
		return err
	}

	env, err := e.serviceEnv(svc)
	if err != nil {
		e.unregister(name)
		return err
	}

	sb, err := e.sandboxes.Create(name, art)
	if err != nil {
		e.unregister(name)
		return err
	}

	result, err := e.sandboxes.Start(ctx, sb, endpoint.Port, env, sandbox.StartOptions{
		HealthCheck: svc.HealthCheck,
		Timeout:     time.Duration(svc.Timeout) * time.Second,
		SkipHealth:  opts.SkipHealth,
	})
	if err != nil {
		// A start that timed out leaves a live process behind; stop it
		// so the port and endpoint are reclaimed before unwinding.
		if serr := e.sandboxes.Stop(name); serr != nil {
			e.logger.Debug().Err(serr).Str("service", name).Msg("Cleanup stop failed")
		}
		e.unregister(name)
		return err
	}

	if e.policy != nil {
		e.policy.RecordStart(e.userID, name)
	}
	e.mu.Lock()
	e.started = append(e.started, name)
	e.mu.Unlock()

	e.logger.Info().
		Str("service", name).
		Int("port", endpoint.Port).
		Int("pid", result.PID).
		Str("outcome", string(result.Outcome)).
		Msg("Service up")
	return nil
}

// serviceEnv composes the launch environment: dependency variables from
// the resolver (live endpoints preferred), identity variables from the
// registry, then the service's declared env on top.
func (e *Engine) serviceEnv(svc *config.ServiceConfig) (map[string]string, error) {
	env, err := e.resolver.Environment(svc.Name, e.registry.Get)
	if err != nil {
		return nil, err
	}
	for k, v := range e.registry.EnvironmentFor(svc.Name, svc.DependsOn) {
		env[k] = v
	}
	for k, v := range svc.Env {
		env[k] = v
	}
	return env, nil
}

// artifactFor parses the service's Markdown artifact. Parsing happens
// on every start so a restart picks up edits to the artifact.
func (e *Engine) artifactFor(svc *config.ServiceConfig) (*artifact.Artifact, error) {
	art, err := artifact.ParseFile(svc.Readme)
	if err != nil {
		return nil, err
	}
	if art.Run == "" {
		return nil, errdefs.Config("service %s: artifact %s declares no run command", svc.Name, svc.Readme)
	}
	return art, nil
}

// teardownStarted stops, in reverse order, every service this
// invocation started. Best-effort: all stops are attempted and errors
// aggregated.
func (e *Engine) teardownStarted() error {
	e.mu.Lock()
	names := make([]string, len(e.started))
	copy(names, e.started)
	e.mu.Unlock()

	var errs []error
	for i := len(names) - 1; i >= 0; i-- {
		if err := e.stopService(names[i]); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", names[i], err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) removeStarted(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, n := range e.started {
		if n == name {
			e.started = append(e.started[:i], e.started[i+1:]...)
			return
		}
	}
}

func (e *Engine) unregister(name string) {
	if err := e.registry.Unregister(name); err != nil {
		e.logger.Debug().Err(err).Str("service", name).Msg("Unregister failed")
	}
}
