package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/pactown/pactown/pkg/artifact"
	"github.com/pactown/pactown/pkg/config"
	"github.com/pactown/pactown/pkg/errdefs"
	"github.com/pactown/pactown/pkg/health"
	"github.com/pactown/pactown/pkg/sandbox"
	"github.com/pactown/pactown/pkg/types"
)

// statusProbeTimeout bounds the live health probe behind Status.
const statusProbeTimeout = 5 * time.Second

// Status reports every declared service in declaration order. Services
// with a live process get a health probe against their registered
// endpoint; everything else reports as stopped.
func (e *Engine) Status(ctx context.Context) []types.ServiceStatus {
	statuses := make([]types.ServiceStatus, 0, len(e.cfg.Services))
	for _, svc := range e.cfg.Services {
		st, known := e.sandboxes.Status(svc.Name)
		if !known {
			statuses = append(statuses, types.ServiceStatus{
				Name:   svc.Name,
				State:  types.SandboxDead,
				Health: "stopped",
			})
			continue
		}

		st.Health = "stopped"
		if st.State == types.SandboxRunning || st.State == types.SandboxStarting {
			result := e.probe(ctx, svc, st.Port)
			if result.Healthy {
				st.Health = "healthy"
			} else {
				st.Health = "unhealthy"
			}
			st.ResponseTimeMS = float64(result.Duration.Microseconds()) / 1000.0
		}
		statuses = append(statuses, st)
	}
	return statuses
}

// RunningCount reports how many declared services are alive right now.
// Together with CacheEntryCount it feeds the periodic metrics
// collector, which reconciles the gauges against observed state.
func (e *Engine) RunningCount() int {
	n := 0
	for _, svc := range e.cfg.Services {
		if e.sandboxes.Alive(svc.Name) {
			n++
		}
	}
	return n
}

// CacheEntryCount reports the dependency cache population.
func (e *Engine) CacheEntryCount() int {
	return e.cache.Stats().Entries
}

// probe checks one live service. The registered endpoint wins over the
// declared port so reallocated services are probed where they listen.
func (e *Engine) probe(ctx context.Context, svc *config.ServiceConfig, port int) health.Result {
	host := sandbox.DefaultHost
	if ep, ok := e.registry.Get(svc.Name); ok {
		host = ep.Host
		port = ep.Port
	}

	var checker health.Checker
	if svc.HealthCheck == "" {
		checker = health.NewTCPChecker(fmt.Sprintf("%s:%d", host, port))
	} else {
		checker = health.NewHTTPChecker(fmt.Sprintf("http://%s:%d%s", host, port, svc.HealthCheck))
	}

	probeCtx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
	defer cancel()
	return checker.Check(probeCtx)
}

// TestResult pairs one artifact test spec with its observed outcome.
type TestResult struct {
	Spec   artifact.TestSpec
	Result health.Result
}

// Passed reports whether the response matched the declared expectation.
func (r TestResult) Passed() bool { return r.Result.Healthy }

// RunTests executes the artifact's declared test specs against the
// service's live endpoint. A service with no test specs yields an
// empty result set and no error.
func (e *Engine) RunTests(ctx context.Context, name string) ([]TestResult, error) {
	svc := e.cfg.Service(name)
	if svc == nil {
		return nil, errdefs.Config("unknown service %q", name)
	}
	art, err := artifact.ParseFile(svc.Readme)
	if err != nil {
		return nil, err
	}
	if len(art.Tests) == 0 {
		return nil, nil
	}

	endpoint, ok := e.registry.Get(name)
	if !ok || !e.sandboxes.Alive(name) {
		return nil, fmt.Errorf("%w: %s", errdefs.ErrNotRunning, name)
	}

	results := make([]TestResult, 0, len(art.Tests))
	for _, spec := range art.Tests {
		checker := health.NewHTTPChecker(endpoint.URL() + spec.Path).
			WithMethod(spec.Method).
			WithExactStatus(spec.ExpectStatus)
		if spec.Body != "" {
			checker = checker.WithBody(spec.Body)
		}
		results = append(results, TestResult{Spec: spec, Result: checker.Check(ctx)})
	}
	return results, nil
}
