package scripting

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/l1jgo/lifecycle/internal/config"
	"github.com/l1jgo/lifecycle/internal/core/event"
	"github.com/l1jgo/lifecycle/internal/core/system"
	"github.com/l1jgo/lifecycle/internal/core/unit"
	"github.com/l1jgo/lifecycle/internal/timing"
	"go.uber.org/zap/zaptest"
)

const counterScript = `
local n = 0
return {
  initialize = function() engine.log("counter up") end,
  update = function(dt) n = n + 1 end,
  loop = function() return n < 3 end,
  terminate = function() engine.log("counter done " .. n) end,
}
`

const brokenScript = `
return {
  update = function() error("bad update") end,
}
`

const quitScript = `
return {
  update = function()
    if engine.frame() >= 1 then engine.quit("quitter") end
  end,
  draw = function()
    local next = engine.text(0, 0, "日本")
    assert(next == 4, "text width " .. next)
  end,
}
`

// newHost writes scripts into a temp dir with a manifest listing them in the
// given order, and returns a scheduler over a Clock and a Host.
func newHost(t *testing.T, scripts [][2]string) (*system.Scheduler, *Host) {
	t.Helper()
	dir := t.TempDir()
	var manifest strings.Builder
	manifest.WriteString("scripts:\n")
	for _, s := range scripts {
		file := s[0] + ".lua"
		if err := os.WriteFile(filepath.Join(dir, file), []byte(s[1]), 0o644); err != nil {
			t.Fatal(err)
		}
		manifest.WriteString("  - name: " + s[0] + "\n    file: " + file + "\n")
	}
	manifestPath := filepath.Join(dir, "scripts.yaml")
	if err := os.WriteFile(manifestPath, []byte(manifest.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	log := zaptest.NewLogger(t)
	reg := unit.NewRegistry(log)
	cfg := config.Default()
	cfg.Scripting.Manifest = manifestPath
	cfg.Scripting.Dir = dir
	unit.Provide(reg, cfg)
	sched := system.NewScheduler(reg, log)
	unit.Provide(reg, sched)

	unit.MustRegister[timing.Clock](reg)
	h := unit.MustRegister[Host](reg)
	return sched, h
}

func runFrames(t *testing.T, s *system.Scheduler, limit int) int {
	t.Helper()
	n := 0
	for n < limit && s.RunFrame() {
		n++
	}
	return n
}

func TestHostRunsHooksAndStopsOnLoop(t *testing.T) {
	sched, h := newHost(t, [][2]string{{"counter", counterScript}, {"broken", brokenScript}})
	if err := sched.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := h.Scripts(); !reflect.DeepEqual(got, []string{"counter", "broken"}) {
		t.Fatalf("Scripts() = %v", got)
	}

	if n := runFrames(t, sched, 10); n != 3 {
		t.Fatalf("ran %d frames, want 3", n)
	}
	if sched.StoppedBy() != "scripting.Host" {
		t.Fatalf("StoppedBy() = %q", sched.StoppedBy())
	}
	if got := h.Scripts(); !reflect.DeepEqual(got, []string{"counter"}) {
		t.Fatalf("broken script still active: %v", got)
	}
	if err := sched.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
}

func TestHostQuitGoesThroughDispatcher(t *testing.T) {
	sched, h := newHost(t, [][2]string{{"quitter", quitScript}})
	if err := sched.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer sched.Terminate()

	if n := runFrames(t, sched, 10); n != 3 {
		t.Fatalf("ran %d frames, want 3", n)
	}
	d := unit.MustGet[event.Dispatcher](h.Registry())
	if d.QuitSource() != "script quitter" {
		t.Fatalf("QuitSource() = %q", d.QuitSource())
	}
	if got := h.Scripts(); len(got) != 1 {
		t.Fatalf("draw hook failed: %v", got)
	}
}

func TestHostRejectsNonTableScript(t *testing.T) {
	sched, _ := newHost(t, [][2]string{{"number", "return 42"}})
	err := sched.Initialize()
	if err == nil || !strings.Contains(err.Error(), "want a hook table") {
		t.Fatalf("expected hook table error, got %v", err)
	}
	if err := sched.Terminate(); err != nil {
		t.Fatalf("Terminate after failed Initialize: %v", err)
	}
}

func TestHostDisabled(t *testing.T) {
	log := zaptest.NewLogger(t)
	reg := unit.NewRegistry(log)
	cfg := config.Default()
	cfg.Scripting.Enabled = false
	unit.Provide(reg, cfg)
	h := unit.MustRegister[Host](reg)
	if err := h.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if h.Enabled() || len(h.Scripts()) != 0 {
		t.Fatal("disabled host loaded scripts")
	}
	if err := h.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
}

func terminateFails(msg string) string {
	return `return { terminate = function() error("` + msg + `") end }`
}

func TestHostTerminateReportsEveryScript(t *testing.T) {
	sched, _ := newHost(t, [][2]string{
		{"first", terminateFails("first down")},
		{"second", terminateFails("second down")},
	})
	if err := sched.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	err := sched.Terminate()
	if err == nil {
		t.Fatal("expected terminate errors")
	}
	for _, want := range []string{"first down", "second down"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Terminate error %q missing %q", err, want)
		}
	}
}

func TestHostSkipsTerminateForUninitializedScripts(t *testing.T) {
	const failsInit = `
return {
  initialize = function() error("init refused") end,
  terminate = function() error("never started") end,
}
`
	sched, _ := newHost(t, [][2]string{
		{"ready", terminateFails("ready down")},
		{"refused", failsInit},
		{"pending", terminateFails("pending down")},
	})
	err := sched.Initialize()
	if err == nil || !strings.Contains(err.Error(), "init refused") {
		t.Fatalf("expected initialize error, got %v", err)
	}
	err = sched.Terminate()
	if err == nil || !strings.Contains(err.Error(), "ready down") {
		t.Fatalf("initialized script was not terminated: %v", err)
	}
	for _, skipped := range []string{"never started", "pending down"} {
		if strings.Contains(err.Error(), skipped) {
			t.Errorf("terminate ran on a script that never initialized: %v", err)
		}
	}
}
