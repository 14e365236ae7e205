package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/homer-mine/homer/pkg/homergraph"
)

// errUnknownKind rejects a --kind value outside the closed node kind set.
var errUnknownKind = errors.New("unknown node kind")

func newSearchCommand(flags *rootFlags) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over node names",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(flags, func(cmd *cobra.Command, args []string, store *homergraph.Store) error {
			if kind != "" && !homergraph.IsNodeKind(kind) {
				return fmt.Errorf("%w: %s", errUnknownKind, kind)
			}

			results, err := store.Search(cmd.Context(), args[0], homergraph.NodeKind(kind))
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			out := cmd.OutOrStdout()

			for _, r := range results {
				fmt.Fprintf(out, "%s\t%s\n", r.Kind, r.Name)
			}

			return nil
		}),
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "restrict to one node kind (File, Function, Commit, ...)")

	return cmd
}
