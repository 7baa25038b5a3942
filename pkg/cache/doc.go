// Package cache shares prepared dependency environments between
// sandboxes so that services declaring the same dependency set do not
// pay for separate installations.
//
// # Architecture
//
// Environments live under the sandbox root and are keyed by a
// normalized hash of the dependency list:
//
//	┌─────────────────────────────────────────────┐
//	│                   Cache                     │
//	│                                             │
//	│  HashDeps(["uvicorn","fastapi"])            │
//	│        │   trim → lowercase → sort          │
//	│        ▼                                    │
//	│  <root>/.cache/envs/3f2a9c01d4e8b7f6/       │
//	│        ├── .deps        dependency list     │
//	│        └── .meta.json   timestamps          │
//	│                                             │
//	│  sandbox/.env ──symlink──▶ env directory    │
//	└─────────────────────────────────────────────┘
//
// Because the key is order, case and whitespace insensitive,
// ["fastapi", "uvicorn"] and ["uvicorn", " FastAPI "] resolve to the
// same environment.
//
// # Core Components
//
//   - Cache: reference-counted entry table backed by the directory tree
//   - Entry: one environment with its hash, path and dependency list
//   - HashDeps: the normalized SHA-256 derivation of the cache key
//
// Entries are adopted from disk on startup, so environments survive
// process restarts. Reference counts do not: a fresh process starts
// every adopted entry at zero references.
//
// # Eviction
//
// Eviction is by creation time. Entries older than DefaultMaxAge are
// removed, then the oldest unreferenced entries until at most
// DefaultMaxEntries remain. An entry still referenced by a running
// sandbox is never evicted, which means the cache may temporarily
// exceed its limit while many services are up.
//
// # Usage
//
//	c, err := cache.New(sandboxRoot)
//	if err != nil {
//		return err
//	}
//
//	entry, err := c.GetOrCreate(artifact.Deps)
//	if err != nil {
//		return err
//	}
//	defer c.Release(entry.Hash)
//
//	if err := c.Link(entry, sandboxPath); err != nil {
//		return err
//	}
//
// # See Also
//
//   - pkg/artifact: produces the dependency lists that key the cache
//   - pkg/sandbox: links environments into sandbox directories
//   - pkg/metrics: exports cache hit, miss and eviction counters
package cache
