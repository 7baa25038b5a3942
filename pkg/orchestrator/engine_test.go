package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pactown/pactown/pkg/config"
	"github.com/pactown/pactown/pkg/errdefs"
	"github.com/pactown/pactown/pkg/events"
	"github.com/pactown/pactown/pkg/sandbox"
	"github.com/pactown/pactown/pkg/security"
	"github.com/pactown/pactown/pkg/storage"
	"github.com/pactown/pactown/pkg/types"
)

// writeArtifact writes a minimal service artifact whose run block is
// the given shell snippet and returns its path.
func writeArtifact(t *testing.T, dir, run string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	body := fmt.Sprintf("# Test Service\n\n```sh markpact:run\n%s\n```\n", run)
	path := filepath.Join(dir, "README.md")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func newTestEngine(t *testing.T, yamlCfg string) *Engine {
	t.Helper()
	t.Setenv(config.EnvSandboxRoot, "")
	cfg, err := config.Parse([]byte(yamlCfg))
	if err != nil {
		t.Fatalf("config.Parse failed: %v", err)
	}
	eng, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(eng.Close)
	t.Cleanup(func() { _ = eng.Down() })
	eng.Sandboxes().SetGrace(2 * time.Second)
	return eng
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func waitForFile(t *testing.T, path string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("file %s did not appear within %s", path, timeout)
}

func waitEvent(t *testing.T, sub events.Subscriber, eventType events.EventType, timeout time.Duration) *events.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-sub:
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", eventType)
		}
	}
}

func TestUpComposesDependencyEnv(t *testing.T) {
	root := t.TempDir()
	apiPort, webPort := freePort(t), freePort(t)
	apiReadme := writeArtifact(t, filepath.Join(root, "src", "api"), "env > env.txt\nexec sleep 30")
	webReadme := writeArtifact(t, filepath.Join(root, "src", "web"), "env > env.txt\nexec sleep 30")

	eng := newTestEngine(t, fmt.Sprintf(`
name: demo
sandbox_root: %s
services:
  api:
    readme: %s
    port: %d
  web:
    readme: %s
    port: %d
    env:
      GREETING: hello
    depends_on:
      - api
`, root, apiReadme, apiPort, webReadme, webPort))

	if err := eng.Up(context.Background(), Options{SkipHealth: true}); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	webEnv := filepath.Join(root, "web", "env.txt")
	waitForFile(t, webEnv, 5*time.Second)
	data, err := os.ReadFile(webEnv)
	if err != nil {
		t.Fatalf("read env.txt: %v", err)
	}
	got := string(data)
	for _, want := range []string{
		fmt.Sprintf("API_URL=http://127.0.0.1:%d\n", apiPort),
		"API_HOST=127.0.0.1\n",
		fmt.Sprintf("API_PORT=%d\n", apiPort),
		fmt.Sprintf("PORT=%d\n", webPort),
		fmt.Sprintf("MARKPACT_PORT=%d\n", webPort),
		fmt.Sprintf("SERVICE_URL=http://127.0.0.1:%d\n", webPort),
		"SERVICE_NAME=web\n",
		"PACTOWN_SERVICE_NAME=web\n",
		"PACTOWN_ECOSYSTEM=demo\n",
		"GREETING=hello\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("web environment missing %q", strings.TrimSpace(want))
		}
	}

	if ep, ok := eng.Registry().Get("api"); !ok || ep.Port != apiPort {
		t.Errorf("api endpoint = %+v, ok %v; want port %d", ep, ok, apiPort)
	}
	for _, name := range []string{"api", "web"} {
		if !eng.Sandboxes().Alive(name) {
			t.Errorf("%s should be alive after Up", name)
		}
	}

	if err := eng.Down(); err != nil {
		t.Fatalf("Down failed: %v", err)
	}
	for _, name := range []string{"api", "web"} {
		if eng.Sandboxes().Alive(name) {
			t.Errorf("%s still alive after Down", name)
		}
		if _, ok := eng.Registry().Get(name); ok {
			t.Errorf("%s still registered after Down", name)
		}
	}
}

func TestUpSequential(t *testing.T) {
	root := t.TempDir()
	aReadme := writeArtifact(t, filepath.Join(root, "src", "a"), "exec sleep 30")
	bReadme := writeArtifact(t, filepath.Join(root, "src", "b"), "exec sleep 30")

	eng := newTestEngine(t, fmt.Sprintf(`
name: demo
sandbox_root: %s
services:
  a:
    readme: %s
    port: %d
  b:
    readme: %s
    port: %d
    depends_on: [a]
`, root, aReadme, freePort(t), bReadme, freePort(t)))

	if err := eng.Up(context.Background(), Options{SkipHealth: true, Sequential: true}); err != nil {
		t.Fatalf("Up failed: %v", err)
	}
	for _, name := range []string{"a", "b"} {
		if !eng.Sandboxes().Alive(name) {
			t.Errorf("%s should be alive", name)
		}
	}
}

func TestUpFailureStopsStartedServices(t *testing.T) {
	root := t.TempDir()
	apiReadme := writeArtifact(t, filepath.Join(root, "src", "api"), "exec sleep 30")

	eng := newTestEngine(t, fmt.Sprintf(`
name: demo
sandbox_root: %s
services:
  api:
    readme: %s
    port: %d
  web:
    readme: %s
    port: %d
    depends_on: [api]
`, root, apiReadme, freePort(t), filepath.Join(root, "missing.md"), freePort(t)))

	err := eng.Up(context.Background(), Options{SkipHealth: true})
	if !errdefs.IsConfig(err) {
		t.Fatalf("Up error = %v, want config error", err)
	}

	// The teardown sweep runs before Up returns.
	if eng.Sandboxes().Alive("api") {
		t.Error("api should have been stopped by the teardown sweep")
	}
	if _, ok := eng.Registry().Get("api"); ok {
		t.Error("api should have been unregistered")
	}

	// The supervisor records the final state moments after Stop returns.
	deadline := time.Now().Add(5 * time.Second)
	for {
		st, err := sandbox.ReadState(filepath.Join(root, "api"))
		if err == nil && st.State == types.SandboxDead {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("api state never reached dead (last: %+v, err %v)", st, err)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func TestUpProcessExit(t *testing.T) {
	root := t.TempDir()
	readme := writeArtifact(t, filepath.Join(root, "src", "crasher"), "echo boom >&2\nexit 7")

	eng := newTestEngine(t, fmt.Sprintf(`
name: demo
sandbox_root: %s
services:
  crasher:
    readme: %s
    port: %d
    timeout: 5
`, root, readme, freePort(t)))

	err := eng.Up(context.Background(), Options{})
	if !errdefs.IsProcessExited(err) {
		t.Fatalf("Up error = %v, want process exited", err)
	}
	if !strings.Contains(err.Error(), "exit code 7") {
		t.Errorf("error %q should name the exit code", err)
	}
	if _, ok := eng.Registry().Get("crasher"); ok {
		t.Error("crasher should not stay registered")
	}
	if errdefs.ExitCode(err) != errdefs.ExitRuntime {
		t.Errorf("exit code = %d, want %d", errdefs.ExitCode(err), errdefs.ExitRuntime)
	}
}

func TestUpHealthTimeoutKillsProcess(t *testing.T) {
	root := t.TempDir()
	readme := writeArtifact(t, filepath.Join(root, "src", "slow"), "sleep 30")

	eng := newTestEngine(t, fmt.Sprintf(`
name: demo
sandbox_root: %s
services:
  slow:
    readme: %s
    port: %d
    health_check: ""
    timeout: 1
`, root, readme, freePort(t)))

	err := eng.Up(context.Background(), Options{})
	if !errdefs.IsHealthTimeout(err) {
		t.Fatalf("Up error = %v, want health timeout", err)
	}
	if eng.Sandboxes().Alive("slow") {
		t.Error("slow should have been stopped after the failed health wait")
	}
	if _, ok := eng.Registry().Get("slow"); ok {
		t.Error("slow should have been unregistered")
	}
}

func TestUpLeavesRunningServiceAlone(t *testing.T) {
	root := t.TempDir()
	readme := writeArtifact(t, filepath.Join(root, "src", "api"), "exec sleep 30")

	eng := newTestEngine(t, fmt.Sprintf(`
name: demo
sandbox_root: %s
services:
  api:
    readme: %s
    port: %d
`, root, readme, freePort(t)))

	if err := eng.Up(context.Background(), Options{SkipHealth: true}); err != nil {
		t.Fatalf("first Up failed: %v", err)
	}
	first, ok := eng.Sandboxes().Status("api")
	if !ok || first.PID == 0 {
		t.Fatalf("api status = %+v, ok %v", first, ok)
	}

	if err := eng.Up(context.Background(), Options{SkipHealth: true}); err != nil {
		t.Fatalf("second Up failed: %v", err)
	}
	second, _ := eng.Sandboxes().Status("api")
	if second.PID != first.PID {
		t.Errorf("second Up restarted api: pid %d -> %d", first.PID, second.PID)
	}
}

func TestDownStopsInReverseOrder(t *testing.T) {
	root := t.TempDir()
	stops := filepath.Join(root, "stops.txt")

	mkRun := func(name string) string {
		return fmt.Sprintf("trap 'echo %s >> %s; exit 0' TERM\ntouch ready\nsleep 30", name, stops)
	}
	aReadme := writeArtifact(t, filepath.Join(root, "src", "a"), mkRun("a"))
	bReadme := writeArtifact(t, filepath.Join(root, "src", "b"), mkRun("b"))
	cReadme := writeArtifact(t, filepath.Join(root, "src", "c"), mkRun("c"))

	eng := newTestEngine(t, fmt.Sprintf(`
name: demo
sandbox_root: %s
services:
  a:
    readme: %s
    port: %d
  b:
    readme: %s
    port: %d
    depends_on: [a]
  c:
    readme: %s
    port: %d
    depends_on: [b]
`, root, aReadme, freePort(t), bReadme, freePort(t), cReadme, freePort(t)))

	if err := eng.Up(context.Background(), Options{SkipHealth: true}); err != nil {
		t.Fatalf("Up failed: %v", err)
	}
	// Wait until every trap is installed before signalling.
	for _, name := range []string{"a", "b", "c"} {
		waitForFile(t, filepath.Join(root, name, "ready"), 5*time.Second)
	}

	if err := eng.Down(); err != nil {
		t.Fatalf("Down failed: %v", err)
	}

	data, err := os.ReadFile(stops)
	if err != nil {
		t.Fatalf("read stops.txt: %v", err)
	}
	if got := string(data); got != "c\nb\na\n" {
		t.Errorf("stop order = %q, want dependents first", got)
	}
}

func TestRestartRematerializesSandbox(t *testing.T) {
	root := t.TempDir()
	readme := writeArtifact(t, filepath.Join(root, "src", "api"), "echo $$ > pid.txt\ntouch ready\nsleep 30")

	eng := newTestEngine(t, fmt.Sprintf(`
name: demo
sandbox_root: %s
services:
  api:
    readme: %s
    port: %d
`, root, readme, freePort(t)))

	ctx := context.Background()
	if err := eng.Up(ctx, Options{SkipHealth: true}); err != nil {
		t.Fatalf("Up failed: %v", err)
	}
	sandboxDir := filepath.Join(root, "api")
	waitForFile(t, filepath.Join(sandboxDir, "ready"), 5*time.Second)
	firstPID, err := os.ReadFile(filepath.Join(sandboxDir, "pid.txt"))
	if err != nil {
		t.Fatalf("read pid.txt: %v", err)
	}
	stray := filepath.Join(sandboxDir, "stray.txt")
	if err := os.WriteFile(stray, []byte("leftover"), 0644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}

	if err := eng.Restart(ctx, "api", Options{SkipHealth: true}); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	waitForFile(t, filepath.Join(sandboxDir, "ready"), 5*time.Second)

	secondPID, err := os.ReadFile(filepath.Join(sandboxDir, "pid.txt"))
	if err != nil {
		t.Fatalf("read pid.txt after restart: %v", err)
	}
	if string(secondPID) == string(firstPID) {
		t.Error("restart should launch a new process")
	}
	if _, err := os.Stat(stray); !os.IsNotExist(err) {
		t.Error("restart should rematerialize the sandbox from scratch")
	}
}

func TestRunRestartsCrashedService(t *testing.T) {
	root := t.TempDir()
	starts := filepath.Join(root, "starts.txt")
	readme := writeArtifact(t, filepath.Join(root, "src", "flaky"),
		fmt.Sprintf("echo x >> %s\nsleep 0.2\nexit 1", starts))

	eng := newTestEngine(t, fmt.Sprintf(`
name: demo
sandbox_root: %s
services:
  flaky:
    readme: %s
    port: %d
`, root, readme, freePort(t)))

	sub := eng.Broker().Subscribe()
	t.Cleanup(func() { eng.Broker().Unsubscribe(sub) })

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- eng.Run(runCtx, Options{SkipHealth: true}) }()

	if err := eng.Up(context.Background(), Options{SkipHealth: true}); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	waitEvent(t, sub, events.EventServiceRestarted, 10*time.Second)

	deadline := time.Now().Add(5 * time.Second)
	for {
		data, _ := os.ReadFile(starts)
		if strings.Count(string(data), "x") >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("service never relaunched (starts: %q)", data)
		}
		time.Sleep(25 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunHonoursAutoRestartDisabled(t *testing.T) {
	root := t.TempDir()
	starts := filepath.Join(root, "starts.txt")
	readme := writeArtifact(t, filepath.Join(root, "src", "oneshot"),
		fmt.Sprintf("echo x >> %s\nexit 1", starts))

	eng := newTestEngine(t, fmt.Sprintf(`
name: demo
sandbox_root: %s
services:
  oneshot:
    readme: %s
    port: %d
    auto_restart: false
`, root, readme, freePort(t)))

	sub := eng.Broker().Subscribe()
	t.Cleanup(func() { eng.Broker().Unsubscribe(sub) })

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- eng.Run(runCtx, Options{SkipHealth: true}) }()

	if err := eng.Up(context.Background(), Options{SkipHealth: true}); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	waitEvent(t, sub, events.EventServiceExited, 10*time.Second)
	time.Sleep(300 * time.Millisecond)

	data, err := os.ReadFile(starts)
	if err != nil {
		t.Fatalf("read starts.txt: %v", err)
	}
	if n := strings.Count(string(data), "x"); n != 1 {
		t.Errorf("service started %d times, want exactly 1", n)
	}

	cancel()
	<-runDone
}

func TestUpPolicyDenied(t *testing.T) {
	root := t.TempDir()
	readme := writeArtifact(t, filepath.Join(root, "src", "api"), "exec sleep 30")

	eng := newTestEngine(t, fmt.Sprintf(`
name: demo
sandbox_root: %s
services:
  api:
    readme: %s
    port: %d
`, root, readme, freePort(t)))

	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	pol := security.New(store, security.NewResourceMonitor(),
		security.NewAnomalyLogger(filepath.Join(root, "anomalies.jsonl")))
	if err := pol.Block("mallory", "abuse reported"); err != nil {
		t.Fatalf("Block failed: %v", err)
	}
	eng.SetPolicy(pol, "mallory")

	sub := eng.Broker().Subscribe()
	t.Cleanup(func() { eng.Broker().Unsubscribe(sub) })

	upErr := eng.Up(context.Background(), Options{SkipHealth: true})
	if !errdefs.IsPolicyDenied(upErr) {
		t.Fatalf("Up error = %v, want policy denied", upErr)
	}
	if errdefs.ExitCode(upErr) != errdefs.ExitPolicy {
		t.Errorf("exit code = %d, want %d", errdefs.ExitCode(upErr), errdefs.ExitPolicy)
	}
	waitEvent(t, sub, events.EventPolicyDenied, 5*time.Second)

	if eng.Sandboxes().Alive("api") {
		t.Error("denied service must not run")
	}
	if _, ok := eng.Registry().Get("api"); ok {
		t.Error("denied service must not be registered")
	}
}

func TestUpPolicyAccounting(t *testing.T) {
	root := t.TempDir()
	readme := writeArtifact(t, filepath.Join(root, "src", "api"), "exec sleep 30")

	eng := newTestEngine(t, fmt.Sprintf(`
name: demo
sandbox_root: %s
services:
  api:
    readme: %s
    port: %d
`, root, readme, freePort(t)))

	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	pol := security.New(store, security.NewResourceMonitor(),
		security.NewAnomalyLogger(filepath.Join(root, "anomalies.jsonl")))
	eng.SetPolicy(pol, "alice")

	if err := eng.Up(context.Background(), Options{SkipHealth: true}); err != nil {
		t.Fatalf("Up failed: %v", err)
	}
	if n := pol.RunningCount("alice"); n != 1 {
		t.Errorf("running count after Up = %d, want 1", n)
	}

	if err := eng.Down(); err != nil {
		t.Fatalf("Down failed: %v", err)
	}
	if n := pol.RunningCount("alice"); n != 0 {
		t.Errorf("running count after Down = %d, want 0", n)
	}
}

func TestStatusListsDeclaredServices(t *testing.T) {
	root := t.TempDir()
	aReadme := writeArtifact(t, filepath.Join(root, "src", "a"), "exec sleep 30")
	bReadme := writeArtifact(t, filepath.Join(root, "src", "b"), "exec sleep 30")

	eng := newTestEngine(t, fmt.Sprintf(`
name: demo
sandbox_root: %s
services:
  a:
    readme: %s
  b:
    readme: %s
`, root, aReadme, bReadme))

	statuses := eng.Status(context.Background())
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}
	if statuses[0].Name != "a" || statuses[1].Name != "b" {
		t.Errorf("statuses out of declaration order: %s, %s", statuses[0].Name, statuses[1].Name)
	}
	for _, st := range statuses {
		if st.Health != "stopped" || st.State != types.SandboxDead {
			t.Errorf("%s: health %s state %s, want stopped/dead", st.Name, st.Health, st.State)
		}
	}
}

// markRunning forges a live sandbox record so liveness checks pass
// without going through Up. A spawned sleep process stands in for the
// service; the record is flipped to dead on cleanup so the shutdown
// sweep has nothing to signal.
func markRunning(t *testing.T, root, name string, port int) {
	t.Helper()
	stand := exec.Command("sleep", "60")
	if err := stand.Start(); err != nil {
		t.Fatalf("start stand-in process: %v", err)
	}
	t.Cleanup(func() {
		stand.Process.Kill()
		stand.Wait()
	})

	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir sandbox: %v", err)
	}
	writeForgedState := func(state types.SandboxState) {
		data, err := json.Marshal(sandbox.StateFile{
			PID:       stand.Process.Pid,
			Port:      port,
			StartedAt: time.Now(),
			State:     state,
		})
		if err != nil {
			t.Fatalf("marshal state: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, sandbox.StateFileName), data, 0644); err != nil {
			t.Fatalf("write state: %v", err)
		}
	}
	writeForgedState(types.SandboxRunning)
	t.Cleanup(func() { writeForgedState(types.SandboxDead) })
}

func TestRunTestsAgainstLiveEndpoint(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "src", "api")
	if err := os.MkdirAll(srcDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	readme := filepath.Join(srcDir, "README.md")
	artifactDoc := "# API\n\n```sh markpact:run\nsleep 30\n```\n\n" +
		"```text markpact:test\n" +
		"GET /health\n" +
		"GET /missing 404\n" +
		"POST /items 201 {\"name\":\"boat\"}\n" +
		"GET /teapot 418\n" +
		"```\n"
	if err := os.WriteFile(readme, []byte(artifactDoc), 0644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	port := freePort(t)
	eng := newTestEngine(t, fmt.Sprintf(`
name: demo
sandbox_root: %s
services:
  api:
    readme: %s
    port: %d
`, root, readme, port))

	if _, err := eng.Registry().Register("api", port, "/health"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	markRunning(t, root, "api", port)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/items", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
	mux.HandleFunc("/teapot", func(w http.ResponseWriter, r *http.Request) {})
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	results, err := eng.RunTests(context.Background(), "api")
	if err != nil {
		t.Fatalf("RunTests failed: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	for i := 0; i < 3; i++ {
		if !results[i].Passed() {
			t.Errorf("spec %d (%s %s) failed: %s",
				i, results[i].Spec.Method, results[i].Spec.Path, results[i].Result.Message)
		}
	}
	if results[3].Passed() {
		t.Error("teapot spec should fail, server returns 200")
	}
	if !strings.Contains(results[3].Result.Message, "expected 418") {
		t.Errorf("failure message %q should name the expected status", results[3].Result.Message)
	}
}

func TestRunTestsErrors(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "src", "ghost")
	if err := os.MkdirAll(srcDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ghostReadme := filepath.Join(srcDir, "README.md")
	doc := "# Ghost\n\n```sh markpact:run\nsleep 30\n```\n\n```text markpact:test\nGET /health\n```\n"
	if err := os.WriteFile(ghostReadme, []byte(doc), 0644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	quietReadme := writeArtifact(t, filepath.Join(root, "src", "quiet"), "sleep 30")

	eng := newTestEngine(t, fmt.Sprintf(`
name: demo
sandbox_root: %s
services:
  ghost:
    readme: %s
  quiet:
    readme: %s
`, root, ghostReadme, quietReadme))

	ctx := context.Background()

	if _, err := eng.RunTests(ctx, "nope"); !errdefs.IsConfig(err) {
		t.Errorf("unknown service error = %v, want config error", err)
	}
	if _, err := eng.RunTests(ctx, "ghost"); !errdefs.IsNotRunning(err) {
		t.Errorf("stopped service error = %v, want not running", err)
	}
	if results, err := eng.RunTests(ctx, "quiet"); err != nil || len(results) != 0 {
		t.Errorf("service without test specs: results %v, err %v; want empty, nil", results, err)
	}
}
