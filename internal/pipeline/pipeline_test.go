package pipeline

import (
	"context"
	"errors"
	"io"
	stdruntime "runtime"
	"testing"
	"time"

	"github.com/procwire/procwire/internal/proc"
	"github.com/procwire/procwire/internal/redirect"
	"github.com/procwire/procwire/internal/spawn"
)

func newTestLauncher(t *testing.T) *spawn.Launcher {
	t.Helper()
	if stdruntime.GOOS == "windows" {
		t.Skip("pipeline tests skipped on windows")
	}
	l, err := spawn.New()
	if err != nil {
		t.Fatalf("spawn.New: %v", err)
	}
	return l
}

func waitAll(t *testing.T, handles []*proc.Handle) {
	t.Helper()
	for _, h := range handles {
		if _, err := h.Wait(context.Background()); err != nil {
			t.Fatalf("wait stage %d: %v", h.PID(), err)
		}
	}
}

func TestThreeStagePipeline(t *testing.T) {
	l := newTestLauncher(t)

	cfgs := []spawn.Config{
		spawn.NewConfig("/bin/sh", "-c", "printf 'alpha\\nbeta\\ngamma\\n'"),
		spawn.NewConfig("grep", "a"),
		spawn.NewConfig("tr", "a-z", "A-Z"),
	}
	cfgs[0].Stdin = redirect.Discard()

	handles, err := Start(l, cfgs)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(handles) != 3 {
		t.Fatalf("got %d handles, want 3", len(handles))
	}

	out, err := io.ReadAll(handles[2].Stdout())
	if err != nil {
		t.Fatalf("read final stdout: %v", err)
	}
	waitAll(t, handles)

	want := "ALPHA\nBETA\nGAMMA\n"
	if string(out) != want {
		t.Fatalf("pipeline output = %q, want %q", out, want)
	}
}

func TestInteriorStagesHaveNoParentPipes(t *testing.T) {
	l := newTestLauncher(t)

	cfgs := []spawn.Config{
		spawn.NewConfig("/bin/sh", "-c", "echo x"),
		spawn.NewConfig("cat"),
	}
	cfgs[0].Stdin = redirect.Discard()

	handles, err := Start(l, cfgs)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Stage 0's stdout went to stage 1; the parent-facing stream must be
	// the EOF placeholder, not a live pipe.
	if n, err := handles[0].Stdout().Read(make([]byte, 1)); n != 0 || err != io.EOF {
		t.Fatalf("interior stdout read = (%d, %v), want (0, EOF)", n, err)
	}

	out, err := io.ReadAll(handles[1].Stdout())
	if err != nil {
		t.Fatalf("read final stdout: %v", err)
	}
	waitAll(t, handles)
	if string(out) != "x\n" {
		t.Fatalf("final output = %q, want %q", out, "x\n")
	}
}

func TestPipeEOFPropagatesThroughStages(t *testing.T) {
	l := newTestLauncher(t)

	// cat | cat: EOF on the first stdin must travel through both stages.
	cfgs := []spawn.Config{
		spawn.NewConfig("cat"),
		spawn.NewConfig("cat"),
	}
	handles, err := Start(l, cfgs)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	go func() {
		io.WriteString(handles[0].Stdin(), "through\n")
		handles[0].Stdin().Close()
	}()

	out, err := io.ReadAll(handles[1].Stdout())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	waitAll(t, handles)
	if string(out) != "through\n" {
		t.Fatalf("output = %q, want %q", out, "through\n")
	}
}

func TestFailedStageRollsBackStartedStages(t *testing.T) {
	l := newTestLauncher(t)

	cfgs := []spawn.Config{
		spawn.NewConfig("sleep", "60"),
		spawn.NewConfig("procwire-no-such-program"),
		spawn.NewConfig("cat"),
	}
	cfgs[0].Stdin = redirect.Discard()

	start := time.Now()
	handles, err := Start(l, cfgs)
	if err == nil {
		t.Fatalf("Start succeeded with an unlaunchable stage")
	}
	if handles != nil {
		t.Fatalf("Start returned handles alongside an error")
	}
	var le *spawn.LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("error = %T, want *spawn.LaunchError", err)
	}
	// Rollback must have reaped the sleeping first stage rather than
	// waiting out its 60 seconds.
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("rollback took %v", elapsed)
	}
}

func TestInteriorRedirectRejected(t *testing.T) {
	l := newTestLauncher(t)

	tests := []struct {
		name string
		mut  func([]spawn.Config)
	}{
		{"interiorStdinFromFile", func(cfgs []spawn.Config) {
			cfgs[1].Stdin = redirect.ReadFrom("in.txt")
		}},
		{"interiorStdoutToFile", func(cfgs []spawn.Config) {
			cfgs[0].Stdout = redirect.WriteTo("out.txt")
		}},
		{"interiorMergeStderr", func(cfgs []spawn.Config) {
			cfgs[0].MergeStderr = true
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfgs := []spawn.Config{
				spawn.NewConfig("echo", "x"),
				spawn.NewConfig("cat"),
			}
			tc.mut(cfgs)
			_, err := Start(l, cfgs)
			var ce *spawn.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("error = %v, want *spawn.ConfigError", err)
			}
		})
	}
}

func TestSingleStagePipelineKeepsCallerRedirects(t *testing.T) {
	l := newTestLauncher(t)

	cfg := spawn.NewConfig("echo", "solo")
	cfg.Stdin = redirect.Discard()
	handles, err := Start(l, []spawn.Config{cfg})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	out, err := io.ReadAll(handles[0].Stdout())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	waitAll(t, handles)
	if string(out) != "solo\n" {
		t.Fatalf("output = %q, want %q", out, "solo\n")
	}
}

func TestEmptyPipelineRejected(t *testing.T) {
	l := newTestLauncher(t)
	_, err := Start(l, nil)
	var ce *spawn.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *spawn.ConfigError", err)
	}
}
