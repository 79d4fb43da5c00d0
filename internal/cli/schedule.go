package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/l1jgo/lifecycle/internal/config"
	"github.com/l1jgo/lifecycle/internal/core/unit"
	"github.com/l1jgo/lifecycle/internal/render"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Print the computed unit schedule without running any unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log, err := newLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()

			e, err := buildEngine(cfg, log.WithOptions(zap.IncreaseLevel(zap.WarnLevel)))
			if err != nil {
				return err
			}
			if err := e.sched.Plan(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printSection(out, "schedule "+cfg.Engine.Name)
			for i, u := range e.sched.Units() {
				printUnit(out, i, u)
			}
			printStat(out, "digest", e.sched.Digest()[:12])
			return nil
		},
	}
}

const lineWidth = 46

func printSection(w io.Writer, title string) {
	lineLen := lineWidth - render.TextWidth(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Fprintf(w, "  ── %s %s\n", title, strings.Repeat("─", lineLen))
}

func printStat(w io.Writer, label, value string) {
	dotsLen := lineWidth - 4 - render.TextWidth(label) - render.TextWidth(value)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Fprintf(w, "  %s %s %s\n", label, strings.Repeat("·", dotsLen), value)
}

func printUnit(w io.Writer, index int, u unit.Unit) {
	state := "on"
	if !u.Enabled() {
		state = "off"
	}
	name := fmt.Sprintf("%2d %s", index, u.Name())
	printStat(w, name, state+"  "+strings.Join(hooksOf(u), " "))
}

// hooksOf lists the lifecycle hooks u implements, in phase order.
func hooksOf(u unit.Unit) []string {
	var hooks []string
	add := func(ok bool, name string) {
		if ok {
			hooks = append(hooks, name)
		}
	}
	_, ok := u.(unit.Initializer)
	add(ok, "init")
	_, ok = u.(unit.EventPoller)
	add(ok, "poll")
	_, ok = u.(unit.Updater)
	add(ok, "update")
	_, ok = u.(unit.DrawBeginner)
	add(ok, "begin")
	_, ok = u.(unit.Drawer)
	add(ok, "draw")
	_, ok = u.(unit.DrawEnder)
	add(ok, "end")
	_, ok = u.(unit.Looper)
	add(ok, "loop")
	_, ok = u.(unit.Terminator)
	add(ok, "term")
	if len(hooks) == 0 {
		hooks = append(hooks, "-")
	}
	return hooks
}
