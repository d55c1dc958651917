package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/artfolio/artfolio-sync/internal/components/artists"
	"github.com/artfolio/artfolio-sync/internal/components/identity"
	"github.com/artfolio/artfolio-sync/internal/components/requests"
	"github.com/artfolio/artfolio-sync/internal/components/social"
	"github.com/artfolio/artfolio-sync/internal/platform/deps"
)

// Fixtures is the seed file format.
//
//	profiles:
//	  - userId: ada
//	    displayName: Ada
//	follows:
//	  - follower: bob
//	    following: ada
//	favorites:
//	  - user: bob
//	    itemType: work
//	    itemId: w1
//	requests:
//	  - kind: collaboration
//	    projectId: p1
//	    requesterId: bob
//	    ownerId: ada
//	    status: approved
type Fixtures struct {
	Profiles  []ProfileFixture  `yaml:"profiles"`
	Follows   []FollowFixture   `yaml:"follows"`
	Favorites []FavoriteFixture `yaml:"favorites"`
	Requests  []RequestFixture  `yaml:"requests"`
}

type ProfileFixture struct {
	UserID      string `yaml:"userId"`
	DisplayName string `yaml:"displayName"`
	AvatarURL   string `yaml:"avatarUrl"`
	Bio         string `yaml:"bio"`
}

type FollowFixture struct {
	Follower  string `yaml:"follower"`
	Following string `yaml:"following"`
}

type FavoriteFixture struct {
	User     string `yaml:"user"`
	ItemType string `yaml:"itemType"`
	ItemID   string `yaml:"itemId"`
}

// RequestFixture creates one request. Status approved or denied resolves it
// as the owner afterwards; empty or pending leaves it open.
type RequestFixture struct {
	Kind          string `yaml:"kind"`
	ProjectID     string `yaml:"projectId"`
	ProjectName   string `yaml:"projectName"`
	RequesterID   string `yaml:"requesterId"`
	RequesterName string `yaml:"requesterName"`
	OwnerID       string `yaml:"ownerId"`
	OwnerName     string `yaml:"ownerName"`
	Message       string `yaml:"message"`
	Status        string `yaml:"status"`
}

// SeedReport counts what Seed applied.
type SeedReport struct {
	Profiles  int
	Follows   int
	Favorites int
	Requests  int
}

// LoadFixtures decodes a fixtures document. Unknown keys are rejected.
func LoadFixtures(r io.Reader) (*Fixtures, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f Fixtures
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return &f, nil
}

// Seed applies f through the public operations, so every event and
// notification a real caller would cause is produced. It stops at the first
// failure.
func Seed(ctx context.Context, d *deps.Deps, f *Fixtures) (SeedReport, error) {
	var rep SeedReport

	for i, p := range f.Profiles {
		if _, err := d.Artists.SetProfile(ctx, artists.Profile{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			AvatarURL:   p.AvatarURL,
			Bio:         p.Bio,
		}); err != nil {
			return rep, fmt.Errorf("profiles[%d]: %w", i, err)
		}
		rep.Profiles++
	}

	for i, fl := range f.Follows {
		if _, err := d.Graph.Follow(ctx, fl.Follower, fl.Following); err != nil {
			return rep, fmt.Errorf("follows[%d]: %w", i, err)
		}
		rep.Follows++
	}

	for i, fav := range f.Favorites {
		actorCtx := identity.WithActor(ctx, fav.User)
		if _, err := d.Graph.ToggleFavorite(actorCtx, social.ItemType(fav.ItemType), fav.ItemID, true); err != nil {
			return rep, fmt.Errorf("favorites[%d]: %w", i, err)
		}
		rep.Favorites++
	}

	for i, rf := range f.Requests {
		if err := seedRequest(ctx, d.Requests, rf); err != nil {
			return rep, fmt.Errorf("requests[%d]: %w", i, err)
		}
		rep.Requests++
	}
	return rep, nil
}

func seedRequest(ctx context.Context, set *requests.Set, rf RequestFixture) error {
	wf, err := set.For(rf.Kind)
	if err != nil {
		return err
	}
	r, err := wf.Create(ctx, requests.CreateInput{
		ProjectID:     rf.ProjectID,
		ProjectName:   rf.ProjectName,
		RequesterID:   rf.RequesterID,
		RequesterName: rf.RequesterName,
		OwnerID:       rf.OwnerID,
		OwnerName:     rf.OwnerName,
		Message:       rf.Message,
	})
	if err != nil {
		return err
	}

	switch requests.Status(rf.Status) {
	case "", requests.StatusPending:
	case requests.StatusApproved:
		_, err = wf.Approve(ctx, r.ID, r.OwnerID)
	case requests.StatusDenied:
		_, err = wf.Deny(ctx, r.ID, r.OwnerID)
	default:
		err = fmt.Errorf("unknown status %q", rf.Status)
	}
	return err
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load YAML fixtures through the public operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			fh, err := os.Open(file)
			if err != nil {
				return err
			}
			defer fh.Close()
			f, err := LoadFixtures(fh)
			if err != nil {
				return err
			}

			rt, err := openRuntime(cmd.Context(), rootOpts, cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			defer rt.Close()

			rep, err := Seed(cmd.Context(), rt.deps, f)
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d profiles, %d follows, %d favorites, %d requests\n",
				rep.Profiles, rep.Follows, rep.Favorites, rep.Requests)
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "fixtures YAML file")
	return cmd
}
