/*
Package log provides structured logging for pactown using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐           │
	│  │            Global Logger                   │           │
	│  │  - Zerolog instance                        │           │
	│  │  - Initialized via log.Init()              │           │
	│  │  - Thread-safe for concurrent use          │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │           Configuration                    │           │
	│  │  - Level: debug/info/warn/error            │           │
	│  │  - Format: JSON or console (human)         │           │
	│  │  - Output: stderr, file, or custom writer  │           │
	│  └──────────────────┬─────────────────────────┘           │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐           │
	│  │         Context Loggers                    │           │
	│  │  - WithComponent("sandbox")                │           │
	│  │  - WithService("api")                      │           │
	│  │  - WithUser("user-123")                    │           │
	│  │  - WithSandbox("/path/.pactown/api")       │           │
	│  └────────────────────────────────────────────┘           │
	└───────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init() from the CLI entrypoint
  - Defaults to stderr so service output on stdout stays clean

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithService: Add service name context
  - WithUser: Add tenant context for policy decisions
  - WithSandbox: Add sandbox path context

# Usage

Initializing the logger:

	import "github.com/pactown/pactown/pkg/log"

	// Console output (interactive)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: false,
	})

	// JSON output (automation)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: true,
		Output:     os.Stderr,
	})

Component loggers:

	logger := log.WithComponent("registry")
	logger.Info().
		Str("service", "api").
		Int("port", 8003).
		Msg("Service registered")

# See Also

  - pkg/orchestrator: Threads component loggers into every engine part
  - cmd/pactown: Initializes the global logger from CLI flags
*/
package log
