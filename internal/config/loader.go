package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/procwire/procwire/internal/spawn"
)

// Load reads a pipeline manifest from the provided path and resolves it
// into launch-ready stage configurations. Paths inside the manifest are
// resolved relative to the manifest's directory; environment references
// in values are expanded against the current process environment.
func Load(path string) (*Pipeline, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	var doc Document
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}

	baseDir := filepath.Dir(absPath)
	workdir := resolveWorkdir(baseDir, os.ExpandEnv(doc.Pipeline.Workdir))

	var fileEnv map[string]string
	if doc.Pipeline.EnvFromFile != "" {
		expanded := os.ExpandEnv(doc.Pipeline.EnvFromFile)
		if !filepath.IsAbs(expanded) {
			expanded = filepath.Clean(filepath.Join(baseDir, expanded))
		}
		fileEnv, err = loadEnvFile(expanded)
		if err != nil {
			return nil, fmt.Errorf("%s: envFromFile: %w", absPath, err)
		}
	}

	if len(doc.Stages) == 0 {
		return nil, fmt.Errorf("%s: manifest defines no stages", absPath)
	}

	p := &Pipeline{
		Name:            doc.Pipeline.Name,
		StopGracePeriod: doc.Pipeline.StopGracePeriod.Duration,
		Stages:          make([]Stage, 0, len(doc.Stages)),
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(absPath), filepath.Ext(absPath))
	}

	seen := make(map[string]bool, len(doc.Stages))
	for i, st := range doc.Stages {
		if st == nil {
			return nil, fmt.Errorf("%s: stage %d is empty", absPath, i)
		}
		stage, err := resolveStage(st, i, workdir, fileEnv)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", absPath, err)
		}
		if seen[stage.Name] {
			return nil, fmt.Errorf("%s: duplicate stage name %q", absPath, stage.Name)
		}
		seen[stage.Name] = true
		p.Stages = append(p.Stages, stage)
	}
	return p, nil
}

func resolveStage(st *StageSpec, index int, workdir string, fileEnv map[string]string) (Stage, error) {
	if len(st.Command) == 0 {
		return Stage{}, fmt.Errorf("%s: command is required", stageField(st, index))
	}

	name := st.Name
	if name == "" {
		name = fmt.Sprintf("%s-%d", filepath.Base(st.Command[0]), index)
	}

	command := make([]string, len(st.Command))
	for i, arg := range st.Command {
		command[i] = os.ExpandEnv(arg)
	}

	var merged map[string]string
	if len(fileEnv) > 0 {
		merged = make(map[string]string, len(fileEnv))
		for k, v := range fileEnv {
			merged[k] = v
		}
	}
	if len(st.Env) > 0 {
		if merged == nil {
			merged = make(map[string]string, len(st.Env))
		}
		for k, v := range st.Env {
			merged[k] = os.ExpandEnv(v)
		}
	}

	cfg := spawn.Config{
		Command:     command,
		Env:         merged,
		InheritEnv:  true,
		Dir:         workdir,
		MergeStderr: st.MergeStderr,
	}
	if st.Workdir != "" {
		cfg.Dir = resolveWorkdir(workdir, os.ExpandEnv(st.Workdir))
	}

	var err error
	if cfg.Stdin, err = st.Stdin.toRedirect(false); err != nil {
		return Stage{}, fmt.Errorf("%s: stdin: %w", stageField(st, index), err)
	}
	if cfg.Stdout, err = st.Stdout.toRedirect(true); err != nil {
		return Stage{}, fmt.Errorf("%s: stdout: %w", stageField(st, index), err)
	}
	if cfg.Stderr, err = st.Stderr.toRedirect(true); err != nil {
		return Stage{}, fmt.Errorf("%s: stderr: %w", stageField(st, index), err)
	}
	if err := cfg.Validate(); err != nil {
		return Stage{}, fmt.Errorf("%s: %w", stageField(st, index), err)
	}

	return Stage{Name: name, Config: cfg}, nil
}

func stageField(st *StageSpec, index int) string {
	if st.Name != "" {
		return fmt.Sprintf("stage %q", st.Name)
	}
	return fmt.Sprintf("stage %d", index)
}

func resolveWorkdir(base, workdir string) string {
	if workdir == "" {
		return base
	}
	if filepath.IsAbs(workdir) {
		return filepath.Clean(workdir)
	}
	return filepath.Clean(filepath.Join(base, workdir))
}

func loadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	values := make(map[string]string)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if strings.HasPrefix(raw, "export ") {
			raw = strings.TrimSpace(raw[len("export "):])
		}
		sep := strings.IndexRune(raw, '=')
		if sep <= 0 {
			return nil, fmt.Errorf("load env file %q: invalid line %d", path, lineNo)
		}
		key := strings.TrimSpace(raw[:sep])
		if key == "" {
			return nil, fmt.Errorf("load env file %q: invalid key on line %d", path, lineNo)
		}
		value := strings.TrimSpace(raw[sep+1:])
		if strings.HasPrefix(value, "\"") {
			if len(value) < 2 || value[len(value)-1] != '"' {
				return nil, fmt.Errorf("load env file %q: unmatched quote on line %d", path, lineNo)
			}
			unquoted, err := strconv.Unquote(value)
			if err != nil {
				return nil, fmt.Errorf("load env file %q: parse value for %s on line %d: %w", path, key, lineNo, err)
			}
			value = unquoted
		} else if strings.HasPrefix(value, "'") {
			if len(value) < 2 || value[len(value)-1] != '\'' {
				return nil, fmt.Errorf("load env file %q: unmatched quote on line %d", path, lineNo)
			}
			value = value[1 : len(value)-1]
		} else if comment := strings.IndexRune(value, '#'); comment >= 0 {
			value = strings.TrimSpace(value[:comment])
		}
		values[key] = os.ExpandEnv(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	return values, nil
}
