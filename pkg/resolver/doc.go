/*
Package resolver orders ecosystem services by their dependencies.

A service may depend on siblings of the same ecosystem (internal) or on
anything with an explicit endpoint (external). Internal dependencies
constrain startup order; external ones only contribute environment
variables.

# Ordering

Startup order is computed with Kahn's algorithm grouped into waves:
every service in a wave depends only on earlier waves, so a wave's
members can start concurrently. Ties inside a wave resolve
alphabetically, making the order a pure function of the config.

	services:  db, cache, api(db,cache), web(api)

	wave 0:  cache, db
	wave 1:  api
	wave 2:  web

A dependency on an undefined service without an endpoint is
ErrUnknownDependency; a loop is ErrCycleDetected naming the services
that could not be ordered.

# Environment

Each resolved dependency yields one variable, named by env_var or
derived as {NAME}_URL. Internal endpoints default to the declared
config port and are upgraded to live allocated endpoints through an
EndpointLookup when services are actually running. PACTOWN_SERVICE_NAME
and PACTOWN_ECOSYSTEM identify the service to itself.

# See Also

  - pkg/registry: The live endpoint source behind EndpointLookup
  - pkg/orchestrator: Starts waves concurrently in resolver order
*/
package resolver
