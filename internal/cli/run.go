package cli

import (
	stdcontext "context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/procwire/procwire/internal/proc"
	"github.com/procwire/procwire/internal/redirect"
	"github.com/procwire/procwire/internal/spawn"
)

func newRunCmd() *cobra.Command {
	var (
		stdinFile   string
		stdoutFile  string
		stderrFile  string
		appendOut   bool
		discardOut  bool
		mergeStderr bool
		workdir     string
		envPairs    []string
		grace       time.Duration
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run -- <command> [args...]",
		Short: "Launch a single process with redirected standard channels",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := spawn.NewConfig(args...)
			cfg.Dir = workdir
			cfg.MergeStderr = mergeStderr

			// The child talks straight to the caller's terminal unless a
			// channel is pointed somewhere else.
			cfg.Stdin = redirect.Inherit()
			cfg.Stdout = redirect.Inherit()
			cfg.Stderr = redirect.Inherit()

			if stdinFile != "" {
				cfg.Stdin = redirect.ReadFrom(stdinFile)
			}
			switch {
			case stdoutFile != "" && appendOut:
				cfg.Stdout = redirect.AppendTo(stdoutFile)
			case stdoutFile != "":
				cfg.Stdout = redirect.WriteTo(stdoutFile)
			case discardOut:
				cfg.Stdout = redirect.Discard()
			}
			switch {
			case stderrFile != "" && appendOut:
				cfg.Stderr = redirect.AppendTo(stderrFile)
			case stderrFile != "":
				cfg.Stderr = redirect.WriteTo(stderrFile)
			case discardOut:
				cfg.Stderr = redirect.Discard()
			}

			env, err := parseEnvPairs(envPairs)
			if err != nil {
				return err
			}
			cfg.Env = env

			launcher, err := spawn.New()
			if err != nil {
				return err
			}
			h, err := proc.Start(launcher, cfg)
			if err != nil {
				return err
			}

			var timeoutCh <-chan time.Time
			if timeout > 0 {
				timer := time.NewTimer(timeout)
				defer timer.Stop()
				timeoutCh = timer.C
			}

			finished := make(chan struct{})
			defer close(finished)
			go func() {
				select {
				case <-cmd.Context().Done():
					stopHandles([]*proc.Handle{h}, grace)
				case <-timeoutCh:
					stopHandles([]*proc.Handle{h}, grace)
				case <-finished:
				}
			}()

			code, err := h.Wait(stdcontext.Background())
			if err != nil {
				return err
			}
			if code != 0 {
				return &exitCodeError{code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&stdinFile, "stdin", "", "Read standard input from a file")
	cmd.Flags().StringVar(&stdoutFile, "stdout", "", "Write standard output to a file")
	cmd.Flags().StringVar(&stderrFile, "stderr", "", "Write standard error to a file")
	cmd.Flags().BoolVar(&appendOut, "append", false, "Append to output files instead of truncating")
	cmd.Flags().BoolVar(&discardOut, "discard", false, "Discard output channels not pointed at a file")
	cmd.Flags().BoolVar(&mergeStderr, "merge-stderr", false, "Send standard error wherever standard output goes")
	cmd.Flags().StringVarP(&workdir, "workdir", "w", "", "Working directory for the child")
	cmd.Flags().StringArrayVarP(&envPairs, "env", "e", nil, "Environment override as KEY=VALUE (repeatable)")
	cmd.Flags().DurationVar(&grace, "stop-grace-period", defaultStopGrace, "How long to wait after SIGTERM before killing")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Terminate the child after this long (0 means no limit)")

	return cmd
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid environment override %q, expected KEY=VALUE", pair)
		}
		env[key] = value
	}
	return env, nil
}
