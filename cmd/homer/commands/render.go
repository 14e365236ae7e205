package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/homer-mine/homer/pkg/homergraph"
	"github.com/homer-mine/homer/pkg/render"
)

func newRenderCommand(flags *rootFlags) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Re-render artifacts from the existing store without re-analyzing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			store, err := homergraph.Open(cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
			}
			defer func() { _ = store.Close() }()

			renderers := []render.Renderer{
				render.NewAgentsRenderer(),
				render.NewRiskMapRenderer(),
				render.NewDashboardRenderer(),
			}

			results, err := render.WriteAll(cmd.Context(), store, cfg.Repository.Path, renderers, dryRun)
			if err != nil {
				return fmt.Errorf("render: %w", err)
			}

			out := cmd.OutOrStdout()

			for _, r := range results {
				if dryRun {
					fmt.Fprintf(out, "--- %s (%d bytes, not written)\n", r.Path, len(r.Content))

					continue
				}

				fmt.Fprintf(out, "wrote %s (%d bytes)\n", r.Path, len(r.Content))
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without touching disk")

	return cmd
}
