package artifact

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/pactown/pactown/pkg/errdefs"
)

// Block is one fenced code block tagged with a markpact marker.
type Block struct {
	Lang  string
	Kind  string
	Attrs map[string]string
	Body  string
}

// Path returns the path attribute of a file block, or "".
func (b Block) Path() string {
	return b.Attrs["path"]
}

// File is one file to materialize into a sandbox.
type File struct {
	Path    string
	Content []byte
}

// TestSpec is one declared smoke test against a running service.
type TestSpec struct {
	Method       string
	Path         string
	Body         string
	ExpectStatus int
}

// Artifact is the parsed service definition extracted from a Markdown
// document.
type Artifact struct {
	Title string
	Files []File
	Deps  []string
	Run   string
	Tests []TestSpec
}

// DefaultFilePath is used for file blocks that carry no path attribute.
const DefaultFilePath = "main.py"

var titleRe = regexp.MustCompile(`(?m)^#\s+(.+)$`)

// ParseFile reads and parses a Markdown artifact from disk.
func ParseFile(p string) (*Artifact, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, errdefs.Config("read artifact %s: %v", p, err)
	}
	art, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return art, nil
}

// Parse extracts the artifact from Markdown content. Blocks without a
// markpact marker are treated as plain documentation and skipped.
func Parse(content string) (*Artifact, error) {
	art := &Artifact{}
	if m := titleRe.FindStringSubmatch(content); m != nil {
		art.Title = strings.TrimSpace(m[1])
	}

	blocks := ParseBlocks(content)
	for _, b := range blocks {
		switch b.Kind {
		case "file":
			fp := b.Path()
			if fp == "" {
				fp = DefaultFilePath
			}
			if err := checkFilePath(fp); err != nil {
				return nil, err
			}
			art.Files = append(art.Files, File{Path: fp, Content: []byte(b.Body)})
		case "deps":
			for _, line := range strings.Split(b.Body, "\n") {
				if dep := strings.TrimSpace(line); dep != "" {
					art.Deps = append(art.Deps, dep)
				}
			}
		case "run":
			if art.Run == "" {
				art.Run = strings.TrimSpace(b.Body)
			}
		case "test":
			tests, err := parseTests(b.Body)
			if err != nil {
				return nil, err
			}
			art.Tests = append(art.Tests, tests...)
		}
		// Other kinds (target, build) belong to external tooling.
	}

	if art.Run == "" {
		art.Run = inferRunCommand(art.Files)
	}
	return art, nil
}

var fenceRe = regexp.MustCompile("^(```+)(.*)$")

// ParseBlocks scans content for fenced code blocks and returns those
// tagged markpact:<kind>. Untagged fences are tracked so their contents
// cannot open or close markpact blocks.
func ParseBlocks(content string) []Block {
	var blocks []Block
	var cur *Block
	var body []string
	var fence string

	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimLeft(line, " ")

		if fence == "" {
			m := fenceRe.FindStringSubmatch(trimmed)
			if m == nil {
				continue
			}
			fence = m[1]
			lang, kind, attrs := parseInfo(m[2])
			if kind != "" {
				cur = &Block{Lang: lang, Kind: kind, Attrs: attrs}
				body = nil
			}
			continue
		}

		// Inside a fence: close on a matching or longer backtick run.
		if run := strings.TrimRight(trimmed, "`"); run == "" && len(trimmed) >= len(fence) {
			if cur != nil {
				cur.Body = joinBody(body)
				blocks = append(blocks, *cur)
				cur = nil
			}
			fence = ""
			continue
		}
		if cur != nil {
			body = append(body, line)
		}
	}
	// Unterminated block: keep what was collected.
	if cur != nil {
		cur.Body = joinBody(body)
		blocks = append(blocks, *cur)
	}
	return blocks
}

func joinBody(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// parseInfo splits a fence info string into language, markpact kind,
// and key=value attributes. A missing markpact token yields kind "".
func parseInfo(info string) (lang, kind string, attrs map[string]string) {
	fields := strings.Fields(info)
	if len(fields) > 0 && !strings.Contains(fields[0], ":") && !strings.Contains(fields[0], "=") {
		lang = fields[0]
		fields = fields[1:]
	}
	for _, f := range fields {
		if strings.HasPrefix(f, "markpact:") {
			kind = strings.TrimPrefix(f, "markpact:")
			continue
		}
		if k, v, ok := strings.Cut(f, "="); ok {
			if attrs == nil {
				attrs = map[string]string{}
			}
			attrs[k] = strings.Trim(v, `"'`)
		}
	}
	if kind == "" {
		return lang, "", nil
	}
	return lang, kind, attrs
}

// parseTests reads one test per non-blank line:
//
//	METHOD /path [expect_status] [body...]
//
// expect_status defaults to 200.
func parseTests(body string) ([]TestSpec, error) {
	var tests []TestSpec
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.HasPrefix(fields[1], "/") {
			return nil, errdefs.Config("malformed test line %q", line)
		}
		spec := TestSpec{
			Method:       strings.ToUpper(fields[0]),
			Path:         fields[1],
			ExpectStatus: 200,
		}
		rest := fields[2:]
		if len(rest) > 0 {
			if status, err := strconv.Atoi(rest[0]); err == nil {
				spec.ExpectStatus = status
				rest = rest[1:]
			}
		}
		if len(rest) > 0 {
			spec.Body = strings.Join(rest, " ")
		}
		tests = append(tests, spec)
	}
	return tests, nil
}

// checkFilePath rejects absolute paths and parent traversal so a
// hostile artifact cannot write outside its sandbox.
func checkFilePath(p string) error {
	clean := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return errdefs.Config("file path %q escapes the sandbox", p)
	}
	return nil
}

// inferRunCommand guesses a start command from well-known entrypoint
// file names when the artifact has no run block.
func inferRunCommand(files []File) string {
	names := map[string]bool{}
	for _, f := range files {
		names[path.Base(f.Path)] = true
	}
	switch {
	case names["main.py"]:
		return "python main.py"
	case names["app.py"]:
		return "python app.py"
	case names["index.js"]:
		return "node index.js"
	case names["server.js"]:
		return "node server.js"
	case names["main.js"]:
		return "node main.js"
	}
	return ""
}
