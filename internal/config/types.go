package config

import (
	"fmt"
	"time"

	"github.com/procwire/procwire/internal/redirect"
	"github.com/procwire/procwire/internal/spawn"
)

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// Document mirrors the pipeline manifest structure.
type Document struct {
	Version  string       `yaml:"version"`
	Pipeline PipelineMeta `yaml:"pipeline"`
	Stages   []*StageSpec `yaml:"stages"`
}

// PipelineMeta contains metadata shared by every stage.
type PipelineMeta struct {
	Name            string   `yaml:"name"`
	Workdir         string   `yaml:"workdir"`
	EnvFromFile     string   `yaml:"envFromFile"`
	StopGracePeriod Duration `yaml:"stopGracePeriod"`
}

// StageSpec describes one stage as written in the manifest.
type StageSpec struct {
	Name        string            `yaml:"name"`
	Command     []string          `yaml:"command"`
	Env         map[string]string `yaml:"env"`
	Workdir     string            `yaml:"workdir"`
	Stdin       *RedirectSpec     `yaml:"stdin"`
	Stdout      *RedirectSpec     `yaml:"stdout"`
	Stderr      *RedirectSpec     `yaml:"stderr"`
	MergeStderr bool              `yaml:"mergeStderr"`
}

// RedirectSpec is the manifest spelling of a channel redirect. At most
// one of inherit, discard and file may be set; none of them means a pipe.
type RedirectSpec struct {
	Inherit bool   `yaml:"inherit"`
	Discard bool   `yaml:"discard"`
	File    string `yaml:"file"`
	Append  bool   `yaml:"append"`
}

func (r *RedirectSpec) toRedirect(output bool) (redirect.Redirect, error) {
	if r == nil {
		return redirect.Pipe(), nil
	}
	set := 0
	if r.Inherit {
		set++
	}
	if r.Discard {
		set++
	}
	if r.File != "" {
		set++
	}
	if set > 1 {
		return redirect.Redirect{}, fmt.Errorf("inherit, discard and file are mutually exclusive")
	}
	if r.Append && r.File == "" {
		return redirect.Redirect{}, fmt.Errorf("append requires a file")
	}
	switch {
	case r.Inherit:
		return redirect.Inherit(), nil
	case r.Discard:
		return redirect.Discard(), nil
	case r.File != "" && !output:
		if r.Append {
			return redirect.Redirect{}, fmt.Errorf("append is not valid on an input channel")
		}
		return redirect.ReadFrom(r.File), nil
	case r.File != "" && r.Append:
		return redirect.AppendTo(r.File), nil
	case r.File != "":
		return redirect.WriteTo(r.File), nil
	default:
		return redirect.Pipe(), nil
	}
}

// Pipeline is the loaded, validated form of a manifest: launch-ready
// stage configurations in document order.
type Pipeline struct {
	Name            string
	StopGracePeriod time.Duration
	Stages          []Stage
}

// Stage pairs a display name with its launch configuration.
type Stage struct {
	Name   string
	Config spawn.Config
}

// Configs returns the stage configurations in order.
func (p *Pipeline) Configs() []spawn.Config {
	cfgs := make([]spawn.Config, len(p.Stages))
	for i, st := range p.Stages {
		cfgs[i] = st.Config
	}
	return cfgs
}
