package cli

import (
	stdcontext "context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/procwire/procwire/internal/cliutil"
	"github.com/procwire/procwire/internal/config"
	"github.com/procwire/procwire/internal/logmux"
	"github.com/procwire/procwire/internal/pipeline"
	"github.com/procwire/procwire/internal/proc"
	"github.com/procwire/procwire/internal/redirect"
	"github.com/procwire/procwire/internal/spawn"
	"github.com/procwire/procwire/internal/tui"
)

const logBufferSize = 256

func newExecCmd(cctx *commandContext) *cobra.Command {
	var (
		jsonLogs      bool
		useTUI        bool
		metricsListen string
	)

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Run the pipeline described by a manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := config.Load(*cctx.manifestFile)
			if err != nil {
				return err
			}

			// Piped invocations default to machine-readable logs.
			if !cmd.Flags().Changed("json") {
				jsonLogs = !term.IsTerminal(int(os.Stderr.Fd()))
			}

			if metricsListen != "" {
				shutdown, err := serveMetrics(metricsListen)
				if err != nil {
					return err
				}
				defer shutdown()
			}

			return runPipeline(cmd.Context(), p, jsonLogs, useTUI)
		},
	}

	cmd.Flags().BoolVar(&jsonLogs, "json", false, "Emit stage logs as JSON records")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "Render pipeline progress in a terminal UI")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address while the pipeline runs")

	return cmd
}

func runPipeline(ctx stdcontext.Context, p *config.Pipeline, jsonLogs, useTUI bool) error {
	launcher, err := spawn.New()
	if err != nil {
		return err
	}

	handles, err := pipeline.Start(launcher, p.Configs())
	if err != nil {
		return err
	}

	mux := logmux.New(logBufferSize)
	last := len(handles) - 1
	for i, h := range handles {
		st := p.Stages[i]
		mux.Announce(st.Name, fmt.Sprintf("started pid=%d", h.PID()))
		// Interior stage stdouts feed the next stage directly; only the
		// final one carries pipeline output. In plain mode that output
		// bypasses the mux so it can be piped onward untouched.
		if i != last || useTUI {
			mux.Attach(st.Name, logmux.SourceStdout, h.Stdout())
		}
		mux.Attach(st.Name, logmux.SourceStderr, h.Stderr())
	}

	if p.Stages[0].Config.Stdin.Kind() == redirect.KindPipe {
		go func() {
			in := handles[0].Stdin()
			_, _ = io.Copy(in, os.Stdin)
			_ = in.Close()
		}()
	}

	go mux.Close()

	if useTUI {
		return runPipelineTUI(ctx, p, handles, mux)
	}

	copyDone := make(chan struct{})
	go func() {
		defer close(copyDone)
		_, _ = io.Copy(os.Stdout, handles[last].Stdout())
	}()

	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		enc := json.NewEncoder(os.Stderr)
		for e := range mux.Output() {
			if jsonLogs {
				cliutil.EncodeLogEntry(enc, os.Stderr, e)
			} else {
				fmt.Fprintln(os.Stderr, cliutil.FormatLogEntry(e))
			}
		}
	}()

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			stopHandles(handles, p.StopGracePeriod)
		case <-finished:
		}
	}()

	code := 0
	for _, h := range handles {
		c, err := h.Wait(stdcontext.Background())
		if err != nil {
			return err
		}
		if c != 0 {
			code = c
		}
	}
	<-copyDone
	<-printerDone

	if code != 0 {
		return &exitCodeError{code: code}
	}
	return nil
}

func runPipelineTUI(ctx stdcontext.Context, p *config.Pipeline, handles []*proc.Handle, mux *logmux.Mux) error {
	names := make([]string, len(p.Stages))
	for i, st := range p.Stages {
		names[i] = st.Name
	}
	u := tui.New(names)

	go func() {
		for e := range mux.Output() {
			u.EntrySink() <- e
		}
		u.CloseEntries()
	}()

	for i, h := range handles {
		go func(name string, h *proc.Handle) {
			u.UpdateStatus(tui.StageStatus{Stage: name, PID: h.PID(), Running: true})
			<-h.OnExit()
			code, err := h.ExitCode()
			if err != nil {
				return
			}
			u.UpdateStatus(tui.StageStatus{Stage: name, PID: h.PID(), ExitCode: code})
		}(p.Stages[i].Name, h)
	}

	// Quitting the UI, by key or by signal, tears the pipeline down; the
	// teardown in turn lets the mux and the entry forwarder drain out.
	go func() {
		<-u.Done()
		stopHandles(handles, p.StopGracePeriod)
	}()

	return u.Run(ctx)
}
