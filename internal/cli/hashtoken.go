package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artfolio/artfolio-sync/internal/components/identity"
)

// NewHashTokenCommand creates the hash-token command, which prints the
// [[auth.tokens]] entry for an actor. Without --token a random token is
// generated and printed once.
func NewHashTokenCommand() *cobra.Command {
	var (
		actorID string
		token   string
		cost    int
	)

	cmd := &cobra.Command{
		Use:   "hash-token",
		Short: "Print a bearer token and its config entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				return fmt.Errorf("--actor is required")
			}
			generated := token == ""
			if generated {
				var err error
				if token, err = identity.GenerateToken(); err != nil {
					return err
				}
			}
			hash, err := identity.HashToken(token, cost)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if generated {
				fmt.Fprintf(out, "# token (shown once): %s\n", token)
			}
			fmt.Fprintf(out, "[[auth.tokens]]\nactor_id = %q\nhash = %q\n", actorID, hash)
			return nil
		},
	}

	cmd.Flags().StringVar(&actorID, "actor", "", "actor id the token authenticates as")
	cmd.Flags().StringVar(&token, "token", "", "token to hash (generated when empty)")
	cmd.Flags().IntVar(&cost, "cost", 0, "bcrypt cost (default bcrypt.DefaultCost)")
	return cmd
}
