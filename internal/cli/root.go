package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// commandContext carries state shared between subcommands.
type commandContext struct {
	manifestFile *string
}

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *commandContext) {
	var manifestFile string

	root := &cobra.Command{
		Use:   "procwire",
		Short: "Launch and pipeline native processes with managed stdio",
	}

	root.PersistentFlags().
		StringVarP(&manifestFile, "file", "f", "pipeline.yaml", "Path to pipeline manifest")

	ctx := &commandContext{manifestFile: &manifestFile}
	root.AddCommand(newRunCmd())
	root.AddCommand(newExecCmd(ctx))
	root.AddCommand(newConfigCmd(ctx))
	root.AddCommand(newServeCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// exitCodeError propagates a child's non-zero exit code to the shell.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		var ec *exitCodeError
		if errors.As(err, &ec) {
			os.Exit(ec.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
