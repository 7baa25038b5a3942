/*
Package network allocates local TCP ports for sandboxed services.

The allocator is the single authority for port assignment: the registry
asks it for ports at registration time, and run-command rewriting makes
services listen where they were told. Freeness is established by
actually binding the loopback address, so the answer reflects the host
as it is, not a bookkeeping guess.

# Allocation Protocol

	┌─────────────────── PORT ALLOCATION ───────────────────┐
	│                                                       │
	│  Allocate(preferred)                                  │
	│      │                                                │
	│      ├─ preferred ≥ 1024, unissued, binds? ──→ take   │
	│      │                                                │
	│      └─ else scan range upward (default 10000-65000)  │
	│             │                                         │
	│             ├─ issued? ──────────→ skip               │
	│             ├─ bind fails? ──────→ skip               │
	│             └─ bound ok ─────────→ close, take        │
	│                                                       │
	│  range exhausted ──→ ErrNoFreePort                    │
	└───────────────────────────────────────────────────────┘

The issued set is what prevents two services from racing for the same
port between probe and listen. Ports are returned with Release when a
service stops, or Reserve-d without probing when allocator state is
rebuilt from persisted endpoints.

The PACTOWN_PORT_RANGE environment variable ("lo-hi") overrides the
scan range. Bounds are clamped to [1024, 65535].

# See Also

  - pkg/registry: Allocates through this package when registering
  - pkg/sandbox: Rewrites run commands to the allocated port
*/
package network
