/*
Package config loads and validates pactown ecosystem definitions.

An ecosystem is a YAML document declaring a set of Markdown-defined
services, their ports, health checks, environment, and dependencies.
Parsing is strict: any key the schema does not define is rejected, so
typos fail fast instead of being silently ignored.

# Config Format

	name: my-ecosystem
	version: 1.0.0
	base_port: 8000
	sandbox_root: ./.pactown-sandboxes
	registry:
	  url: http://localhost:8800
	  namespace: default
	services:
	  db:
	    readme: db/README.md
	    port: 8001
	    health_check: /health
	  api:
	    readme: api/README.md
	    timeout: 30
	    env:
	      LOG_LEVEL: debug
	    depends_on:
	      - db
	      - auth@2.1.0
	      - name: billing
	        endpoint: https://billing.example.com
	        env_var: BILLING_URL

# Defaulting Rules

  - port: base_port + declaration index when omitted
  - readme: <name>/README.md
  - health_check: /health; an explicit empty string disables probing
  - timeout: 60 seconds
  - auto_restart: true
  - dependency version: "*", registry: "local"

Service declaration order is preserved because it determines default
port assignment. The PACTOWN_SANDBOX_ROOT environment variable
overrides sandbox_root; no other environment is consulted here.

# See Also

  - pkg/resolver: Consumes DependsOn to order startup
  - pkg/orchestrator: Builds the engine from a loaded Config
*/
package config
