package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/homer-mine/homer/pkg/homergraph"
	"github.com/homer-mine/homer/pkg/snapshot"
)

func newSnapshotCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect and export graph snapshots",
	}

	cmd.AddCommand(
		newSnapshotListCommand(flags),
		newSnapshotDiffCommand(flags),
		newSnapshotExportCommand(flags),
	)

	return cmd
}

// withStore opens the configured store for a snapshot subcommand.
func withStore(flags *rootFlags, fn func(cmd *cobra.Command, args []string, store *homergraph.Store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(flags)
		if err != nil {
			return err
		}

		store, err := homergraph.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
		}
		defer func() { _ = store.Close() }()

		return fn(cmd, args, store)
	}
}

func newSnapshotListCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots, oldest first",
		RunE: withStore(flags, func(cmd *cobra.Command, _ []string, store *homergraph.Store) error {
			snapshots, err := store.ListSnapshots(cmd.Context())
			if err != nil {
				return fmt.Errorf("list snapshots: %w", err)
			}

			out := cmd.OutOrStdout()

			for _, snap := range snapshots {
				fmt.Fprintf(out, "%s\t%s\n", snap.Label, snap.CreatedAt.UTC().Format(time.RFC3339))
			}

			return nil
		}),
	}
}

func newSnapshotDiffCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <from> <to>",
		Short: "Show nodes and edges added/removed between two snapshots",
		Args:  cobra.ExactArgs(2),
		RunE: withStore(flags, func(cmd *cobra.Command, args []string, store *homergraph.Store) error {
			diff, err := store.DiffSnapshots(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("diff snapshots: %w", err)
			}

			out := cmd.OutOrStdout()

			for _, n := range diff.AddedNodes {
				fmt.Fprintf(out, "+node %s\n", n)
			}

			for _, n := range diff.RemovedNodes {
				fmt.Fprintf(out, "-node %s\n", n)
			}

			for _, e := range diff.AddedEdges {
				fmt.Fprintf(out, "+edge %s\n", e)
			}

			for _, e := range diff.RemovedEdges {
				fmt.Fprintf(out, "-edge %s\n", e)
			}

			return nil
		}),
	}
}

func newSnapshotExportCommand(flags *rootFlags) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "export <label>",
		Short: "Export a snapshot's identity sets as a compressed archive",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(flags, func(cmd *cobra.Command, args []string, store *homergraph.Store) error {
			path, err := snapshot.Export(cmd.Context(), store, args[0], outDir)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "exported %s\n", path)

			return nil
		}),
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", ".homer/snapshots", "directory to write the archive into")

	return cmd
}
