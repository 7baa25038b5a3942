/*
Package registry tracks service endpoints and composes the discovery
environment injected into dependent services.

Discovery in pactown is environment-variable based: a service never
looks anything up at runtime, it is handed the URLs of its dependencies
at start. The registry is the source of those values, and its persisted
state is how a fresh pactown process finds services started by an
earlier one.

# Environment Contract

For a service with a dependency "postgres-db" the injected variables
are:

	POSTGRES_DB_URL=http://127.0.0.1:8003
	POSTGRES_DB_HOST=127.0.0.1
	POSTGRES_DB_PORT=8003
	PORT=8004
	MARKPACT_PORT=8004
	SERVICE_NAME=api
	SERVICE_URL=http://127.0.0.1:8004

Variable prefixes are the dependency name uppercased with "-" and "."
mapped to "_". An explicit dependency endpoint (external service)
replaces the _URL value; _HOST/_PORT are derived from it only when it
parses as a URL.

# Persistence

State lives in <sandbox_root>/.pactown-services.json:

	{
	  "services": {
	    "api": {"name": "api", "host": "127.0.0.1", "port": 8004, "health_check": "/health"}
	  }
	}

Every mutation rewrites the file via temp-file-and-rename so readers
never observe a torn write. Load takes an aliveness predicate and drops
entries whose process is gone, reserving surviving ports in the
allocator.

# See Also

  - pkg/network: Port allocation backing Register
  - pkg/sandbox: Registers on start, unregisters on exit
*/
package registry
