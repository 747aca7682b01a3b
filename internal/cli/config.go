package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/procwire/procwire/internal/cliutil"
	"github.com/procwire/procwire/internal/config"
)

func newConfigCmd(cctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect pipeline manifests",
	}
	cmd.AddCommand(newConfigValidateCmd(cctx))
	cmd.AddCommand(newConfigShowCmd(cctx))
	return cmd
}

func newConfigValidateCmd(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a manifest without launching anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := config.Load(*cctx.manifestFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pipeline %q is valid: %d stage(s)\n", p.Name, len(p.Stages))
			return nil
		},
	}
}

func newConfigShowCmd(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved stage configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := config.Load(*cctx.manifestFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pipeline: %s\n", p.Name)
			if p.StopGracePeriod > 0 {
				fmt.Fprintf(out, "stopGracePeriod: %s\n", p.StopGracePeriod)
			}
			for _, st := range p.Stages {
				cfg := st.Config
				fmt.Fprintf(out, "stage %s:\n", st.Name)
				fmt.Fprintf(out, "  command: %s\n", cliutil.RedactSecrets(strings.Join(cfg.Command, " ")))
				if cfg.Dir != "" {
					fmt.Fprintf(out, "  workdir: %s\n", cfg.Dir)
				}
				fmt.Fprintf(out, "  stdin: %s  stdout: %s", cfg.Stdin, cfg.Stdout)
				if cfg.MergeStderr {
					fmt.Fprintf(out, "  stderr: merged\n")
				} else {
					fmt.Fprintf(out, "  stderr: %s\n", cfg.Stderr)
				}
				if len(cfg.Env) > 0 {
					env := cliutil.RedactEnv(cfg.Env)
					keys := make([]string, 0, len(env))
					for k := range env {
						keys = append(keys, k)
					}
					sort.Strings(keys)
					fmt.Fprintf(out, "  env:\n")
					for _, k := range keys {
						fmt.Fprintf(out, "    %s=%s\n", k, env[k])
					}
				}
			}
			return nil
		},
	}
}
