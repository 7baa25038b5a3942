/*
Package artifact parses Markdown service definitions.

A pactown service is declared by a README whose fenced code blocks carry
markpact markers in the fence info string. Everything else in the
document is prose and ignored, so the same file reads as documentation
and executes as a deployable artifact.

# Block Grammar

	# Service Title

	```python markpact:file path=main.py
	print("hello")
	```

	```text markpact:deps
	fastapi
	uvicorn
	```

	```bash markpact:run
	uvicorn main:app --port 8000
	```

	```text markpact:test
	GET /health 200
	POST /items 201 {"id": 1}
	```

Recognized kinds:

  - file: one file, written byte-exact at the path attribute
    (default main.py when no path is given)
  - deps: one dependency specifier per non-blank line, opaque to pactown
  - run: the shell start command; the first run block wins
  - test: one smoke test per line, METHOD /path [status] [body]

Kinds used by external tooling (target, build) are skipped. When no run
block exists the command is inferred from well-known entrypoint names
(main.py, app.py, index.js, server.js, main.js).

File paths are confined to the sandbox: absolute paths and parent
traversal are rejected at parse time.
*/
package artifact
