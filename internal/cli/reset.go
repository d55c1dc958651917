package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artfolio/artfolio-sync/internal/platform/store"
)

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove every key in the configured namespace",
		Long: `Remove every follow, favorite, request, notification and profile stored
under the configured namespace, then drop the namespace's cached artist
summaries so running servers sharing the cache stop serving them. Other
namespaces in the same store are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}
			rt, err := openRuntime(cmd.Context(), rootOpts, cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := store.Purge(cmd.Context(), rt.store)
			if err != nil {
				return fmt.Errorf("reset after %d keys: %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d keys from namespace %q\n", n, rt.cfg.Namespace)

			dropped, err := rt.deps.Artists.Flush(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped %d cached artist summaries\n", dropped)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}
