package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/reglet-dev/hostbridge/bridge"
	"github.com/reglet-dev/hostbridge/host"
	"github.com/reglet-dev/hostbridge/hostrt"
	"github.com/spf13/cobra"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Entry string
	Wait  time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <script.wasm>",
		Short: "Run a script against the reference runtime",
		Long: `Run a WebAssembly script against the in-process reference runtime.

The script is instantiated with the bridge_host module, its entry export is
called, and timers it schedules are run until none are pending or --wait
elapses. Timers still pending at that point are dropped.

Example:
  bridgectl run ./guest.wasm
  bridgectl run --entry start --wait 10s -c bridge.yaml ./guest.wasm`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runScript(ctx, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Entry, "entry", "main", "export to call after loading (empty to skip)")
	cmd.Flags().DurationVar(&opts.Wait, "wait", 5*time.Second, "how long to run pending timers")

	return cmd
}

func runScript(ctx context.Context, opts *RunOptions, path string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to configure logging", err)
	}

	wasm, err := host.NewLoader().LoadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load script", err)
	}

	out := cmd.OutOrStdout()
	looper := hostrt.NewLooper()
	dispatcher := host.NewDispatcher()

	rt := hostrt.New()
	platform, err := hostrt.InstallPlatform(rt,
		hostrt.WithSDKVersion(cfg.Runtime.SDKVersion),
		hostrt.WithLooper(looper),
		hostrt.WithFunctions(dispatcher),
		hostrt.WithPlatformLogger(logger),
		hostrt.WithUIHook(func(v int32) { fmt.Fprintf(out, "update_ui %d\n", v) }),
	)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to start reference runtime", err)
	}

	bridgeOpts, err := cfg.BridgeOptions()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	bridgeOpts = append(bridgeOpts,
		bridge.WithHolder(platform.ExecutionContext()),
		bridge.WithLogger(logger),
	)
	b, err := bridge.New(rt, bridgeOpts...)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create bridge", err)
	}

	exec, err := host.NewExecutor(ctx,
		host.WithBridge(b),
		host.WithDispatcher(dispatcher),
		host.WithLogger(logger),
		host.WithAdapterOptions(cfg.AdapterOptions()...),
		host.WithStdout(out),
		host.WithStderr(cmd.ErrOrStderr()),
	)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create executor", err)
	}
	defer exec.Close(ctx)

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	inst, err := exec.LoadScript(ctx, name, wasm)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to instantiate script", err)
	}

	if opts.Entry != "" {
		results, err := inst.Call(ctx, opts.Entry)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("%s failed", opts.Entry), err)
		}
		fmt.Fprintf(out, "%s: %v\n", opts.Entry, results)
	}

	return drain(ctx, looper, opts.Wait, logger)
}

// drain runs timers as they come due until none are pending or wait elapses.
func drain(ctx context.Context, looper *hostrt.Looper, wait time.Duration, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	defer looper.Quit()

	for looper.Pending() > 0 {
		due, _ := looper.NextDue()
		timer := time.NewTimer(max(time.Until(due), 0))
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.InfoContext(ctx, "run: wait elapsed, dropping pending timers", "pending", looper.Pending())
			return nil
		case <-timer.C:
		}
		looper.RunDue()
	}
	return nil
}
