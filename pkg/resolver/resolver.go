package resolver

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pactown/pactown/pkg/config"
	"github.com/pactown/pactown/pkg/errdefs"
	"github.com/pactown/pactown/pkg/log"
	"github.com/pactown/pactown/pkg/types"
)

// ResolvedDependency is one dependency of a service after resolution.
// Internal dependencies point at sibling services of the ecosystem;
// external ones carry an explicit or registry-derived endpoint and
// impose no start ordering.
type ResolvedDependency struct {
	Name     string
	Version  string
	Endpoint string
	EnvVar   string
	Internal bool
}

// EndpointLookup resolves a service name to its live endpoint. It lets
// the environment reflect actually allocated ports instead of the
// declared ones.
type EndpointLookup func(name string) (types.ServiceEndpoint, bool)

// Resolver orders services by their dependencies and resolves each
// service's dependency list into endpoints and environment variables.
type Resolver struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// New builds a resolver over cfg.
func New(cfg *config.Config) *Resolver {
	return &Resolver{cfg: cfg, logger: log.WithComponent("resolver")}
}

// Order returns all services in startup order: dependencies first,
// alphabetical among services whose dependencies are satisfied, so the
// order is deterministic for a given config.
func (r *Resolver) Order() ([]string, error) {
	waves, err := r.Waves()
	if err != nil {
		return nil, err
	}
	var order []string
	for _, wave := range waves {
		order = append(order, wave...)
	}
	return order, nil
}

// Waves groups services into startup generations: every service in a
// wave depends only on services in earlier waves, so members of one
// wave can start concurrently. Each wave is sorted by name.
func (r *Resolver) Waves() ([][]string, error) {
	deps, err := r.internalEdges(true)
	if err != nil {
		return nil, err
	}

	indegree := make(map[string]int, len(deps))
	dependents := make(map[string][]string, len(deps))
	for name, ds := range deps {
		indegree[name] = len(ds)
		for _, d := range ds {
			dependents[d] = append(dependents[d], name)
		}
	}

	var ready []string
	for name, n := range indegree {
		if n == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	var waves [][]string
	resolved := 0
	for len(ready) > 0 {
		wave := ready
		waves = append(waves, wave)
		resolved += len(wave)

		ready = nil
		for _, name := range wave {
			for _, dependent := range dependents[name] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					ready = append(ready, dependent)
				}
			}
		}
		sort.Strings(ready)
	}

	if resolved != len(deps) {
		var stuck []string
		for name, n := range indegree {
			if n > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: unresolved services: %s",
			errdefs.ErrCycleDetected, strings.Join(stuck, ", "))
	}
	r.logger.Debug().Int("services", resolved).Int("waves", len(waves)).Msg("Resolved startup order")
	return waves, nil
}

// Resolve returns the resolved dependency list for a service. Internal
// dependencies default to the declared port of the target; external
// ones use their declared endpoint.
func (r *Resolver) Resolve(name string) ([]ResolvedDependency, error) {
	svc := r.cfg.Service(name)
	if svc == nil {
		return nil, errdefs.Config("unknown service %q", name)
	}

	var resolved []ResolvedDependency
	for _, dep := range svc.DependsOn {
		envVar := dep.EnvVar
		if envVar == "" {
			envVar = types.EnvName(dep.Name) + "_URL"
		}

		if target := r.cfg.Service(dep.Name); target != nil && dep.Endpoint == "" {
			resolved = append(resolved, ResolvedDependency{
				Name:     dep.Name,
				Version:  dep.Version,
				Endpoint: fmt.Sprintf("http://localhost:%d", target.Port),
				EnvVar:   envVar,
				Internal: true,
			})
			continue
		}

		endpoint := dep.Endpoint
		if endpoint == "" {
			return nil, fmt.Errorf("%w: service %s depends on %q which is not defined and has no endpoint",
				errdefs.ErrUnknownDependency, name, dep.Name)
		}
		resolved = append(resolved, ResolvedDependency{
			Name:     dep.Name,
			Version:  dep.Version,
			Endpoint: endpoint,
			EnvVar:   envVar,
		})
	}
	return resolved, nil
}

// Environment builds the dependency environment for a service: one
// variable per dependency plus ecosystem identity. When lookup is
// given, internal endpoints come from it (live allocated ports) rather
// than the declared config ports.
func (r *Resolver) Environment(name string, lookup EndpointLookup) (map[string]string, error) {
	svc := r.cfg.Service(name)
	if svc == nil {
		return nil, errdefs.Config("unknown service %q", name)
	}
	resolved, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	env := make(map[string]string, len(resolved)+3)
	for _, dep := range resolved {
		endpoint := dep.Endpoint
		if dep.Internal && lookup != nil {
			if live, ok := lookup(dep.Name); ok {
				endpoint = live.URL()
			}
		}
		env[dep.EnvVar] = endpoint
	}
	env["PACTOWN_SERVICE_NAME"] = name
	env["PACTOWN_ECOSYSTEM"] = r.cfg.Name
	env["MARKPACT_PORT"] = strconv.Itoa(svc.Port)
	return env, nil
}

// Validate collects every resolution problem instead of stopping at
// the first: undefined dependencies, then cycles among the rest.
func (r *Resolver) Validate() []string {
	var issues []string

	for _, svc := range r.cfg.Services {
		for _, dep := range svc.DependsOn {
			if dep.Endpoint != "" {
				continue
			}
			if r.cfg.Service(dep.Name) == nil {
				issues = append(issues,
					fmt.Sprintf("service %q depends on undefined service %q", svc.Name, dep.Name))
			}
		}
	}

	// Cycle analysis with unknown references dropped, so one typo does
	// not mask an ordering problem.
	deps, _ := r.internalEdges(false)
	if _, err := kahnCount(deps); err != nil {
		issues = append(issues, err.Error())
	}
	return issues
}

// Graph renders the dependency graph in startup order.
func (r *Resolver) Graph() (string, error) {
	order, err := r.Order()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ecosystem: %s\n", r.cfg.Name)
	for _, name := range order {
		svc := r.cfg.Service(name)
		var depNames []string
		for _, dep := range svc.DependsOn {
			depNames = append(depNames, dep.Name)
		}
		if len(depNames) == 0 {
			fmt.Fprintf(&b, "  [%s:%d] (no deps)\n", name, svc.Port)
		} else {
			fmt.Fprintf(&b, "  [%s:%d] -> %s\n", name, svc.Port, strings.Join(depNames, ", "))
		}
	}
	return b.String(), nil
}

// internalEdges maps every service to its internal dependency names.
// With strict set, an undefined internal dependency is an error;
// otherwise it is skipped.
func (r *Resolver) internalEdges(strict bool) (map[string][]string, error) {
	deps := make(map[string][]string, len(r.cfg.Services))
	for _, svc := range r.cfg.Services {
		deps[svc.Name] = nil
		for _, dep := range svc.DependsOn {
			if dep.Endpoint != "" {
				continue
			}
			if r.cfg.Service(dep.Name) == nil {
				if strict {
					return nil, fmt.Errorf("%w: service %s depends on %q which is not defined and has no endpoint",
						errdefs.ErrUnknownDependency, svc.Name, dep.Name)
				}
				continue
			}
			deps[svc.Name] = append(deps[svc.Name], dep.Name)
		}
	}
	return deps, nil
}

// kahnCount runs plain Kahn over deps, returning how many nodes were
// ordered and a cycle error when some remain.
func kahnCount(deps map[string][]string) (int, error) {
	indegree := make(map[string]int, len(deps))
	dependents := make(map[string][]string, len(deps))
	for name, ds := range deps {
		indegree[name] = len(ds)
		for _, d := range ds {
			dependents[d] = append(dependents[d], name)
		}
	}
	var queue []string
	for name, n := range indegree {
		if n == 0 {
			queue = append(queue, name)
		}
	}
	count := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		count++
		for _, dependent := range dependents[name] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	if count != len(deps) {
		var stuck []string
		for name, n := range indegree {
			if n > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return count, fmt.Errorf("%w: unresolved services: %s",
			errdefs.ErrCycleDetected, strings.Join(stuck, ", "))
	}
	return count, nil
}
