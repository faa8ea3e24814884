package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pitchbatch/internal/batch"
	"pitchbatch/internal/source"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var flags encodeFlags
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "plan [paths...]",
		Short: "Show the jobs a run would create without encoding",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg, err := flags.apply(cmd, base)
			if err != nil {
				return err
			}
			nodes, err := source.Scan(args, cfg.Encode.Extensions)
			if err != nil {
				return err
			}
			planned := batch.Plan(nodes, cfg.EncodeSettings())
			if jsonOutput {
				return writeJSON(cmd, newJobViews(planned))
			}
			out := cmd.OutOrStdout()
			if len(planned) == 0 {
				fmt.Fprintln(out, "No matching audio files found")
				return nil
			}
			s := cfg.EncodeSettings()
			fmt.Fprintln(out, renderJobTable(planned))
			fmt.Fprintf(out, "%d job(s), %s at pitch ratio %.4f, up to %d at a time, existing files: %s\n",
				len(planned), s.Format, s.Pitch(), s.MaxThreads, cfg.FileExistsAction())
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the plan as JSON")
	return cmd
}
