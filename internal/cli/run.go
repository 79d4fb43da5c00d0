package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/l1jgo/lifecycle/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	var maxFrames uint64

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the frame loop until a unit stops it or a signal arrives",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("max-frames") {
				cfg.Engine.MaxFrames = maxFrames
			}

			log, err := newLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()

			e, err := buildEngine(cfg, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			start := time.Now()
			runErr := e.run(ctx)
			elapsed := time.Since(start)

			log.Info("run finished",
				zap.String("frames", humanize.Comma(int64(e.sched.Frames()))),
				zap.Duration("elapsed", elapsed),
				zap.String("stopped_by", e.sched.StoppedBy()),
				zap.Bool("clean", runErr == nil))

			out := cmd.OutOrStdout()
			printSection(out, "run summary")
			printStat(out, "frames", humanize.Comma(int64(e.sched.Frames())))
			printStat(out, "elapsed", elapsed.Round(time.Millisecond).String())
			if by := e.sched.StoppedBy(); by != "" {
				printStat(out, "stopped by", by)
			}
			return runErr
		},
	}
	cmd.Flags().Uint64Var(&maxFrames, "max-frames", 0, "Stop after this many frames (overrides engine.max_frames)")
	return cmd
}
