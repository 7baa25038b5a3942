package sandbox

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Port rewrite patterns. Each matches one way a run command can pin a
// literal port: a --port flag, a short -p flag, a PORT= assignment, or
// a :NNNN address suffix. Anything the patterns miss passes through
// untouched.
var portPatterns = []struct {
	re      *regexp.Regexp
	group   int    // submatch index holding the literal port
	rewrite string // replacement template, %d is the allocated port
}{
	{regexp.MustCompile(`--port[=\s]+(\d+)`), 1, "--port %d"},
	{regexp.MustCompile(`(^|\s)-p[=\s]+(\d+)`), 2, "${1}-p %d"},
	{regexp.MustCompile(`\bPORT=(\d+)`), 1, "PORT=%d"},
	{regexp.MustCompile(`:(\d{4,5})($|[\s"])`), 1, ":%d${2}"},
}

// PrepareCommand reconciles a run command with the allocated port.
// $PORT, ${PORT}, $MARKPACT_PORT and ${MARKPACT_PORT} expand to the
// port. A literal port that differs from the allocated one is
// rewritten in place, so artifacts written against a hardcoded port
// still bind where the allocator put them.
func PrepareCommand(run string, port int) string {
	p := strconv.Itoa(port)
	cmd := strings.ReplaceAll(run, "${MARKPACT_PORT}", p)
	cmd = strings.ReplaceAll(cmd, "$MARKPACT_PORT", p)
	cmd = strings.ReplaceAll(cmd, "${PORT}", p)
	cmd = strings.ReplaceAll(cmd, "$PORT", p)

	for _, pat := range portPatterns {
		match := pat.re.FindStringSubmatch(cmd)
		if match == nil || match[pat.group] == p {
			continue
		}
		cmd = pat.re.ReplaceAllString(cmd, fmt.Sprintf(pat.rewrite, port))
	}
	return cmd
}
