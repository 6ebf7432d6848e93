package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/viewshare/internal/client"
	"github.com/alfredjeanlab/viewshare/internal/model"
)

// parseViewFlags turns repeated key=value flags into a view state.
func parseViewFlags(pairs []string) (model.ViewState, error) {
	vs := make(model.ViewState, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid view entry %q (want key=value)", p)
		}
		vs[k] = v
	}
	return vs, nil
}

var shareCmd = &cobra.Command{
	Use:     "share",
	Short:   "Share a view as your session",
	GroupID: "sessions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		visibility, _ := cmd.Flags().GetString("visibility")
		pairs, _ := cmd.Flags().GetStringArray("view")

		vs, err := parseViewFlags(pairs)
		if err != nil {
			return err
		}
		s, err := registryClient.Share(context.Background(), &model.Session{
			OwnerUserID: actor,
			Mode:        model.Mode(strings.ToUpper(mode)),
			Visibility:  model.Visibility(strings.ToUpper(visibility)),
			ViewState:   vs.Encode(),
		})
		if err != nil {
			return err
		}
		return printSession(cmd.OutOrStdout(), s)
	},
}

var showCmd = &cobra.Command{
	Use:     "show [session-id]",
	Short:   "Show a session, or the one owned by --owner",
	GroupID: "sessions",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		ctx := context.Background()

		var s *model.Session
		var err error
		switch {
		case len(args) == 1:
			s, err = registryClient.Lookup(ctx, args[0])
		case owner != "":
			s, err = registryClient.FindByOwner(ctx, owner)
		default:
			s, err = registryClient.FindByOwner(ctx, actor)
		}
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("no such session")
		}
		if err != nil {
			return err
		}
		return printSession(cmd.OutOrStdout(), s)
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List shared sessions",
	GroupID: "sessions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lister, ok := registryClient.(interface {
			List(ctx context.Context, filter model.SessionFilter) ([]*model.Session, error)
		})
		if !ok {
			return fmt.Errorf("list needs the http transport")
		}
		owner, _ := cmd.Flags().GetString("owner")
		visibility, _ := cmd.Flags().GetString("visibility")
		limit, _ := cmd.Flags().GetInt("limit")

		sessions, err := lister.List(context.Background(), model.SessionFilter{
			OwnerUserID: owner,
			Visibility:  model.Visibility(strings.ToUpper(visibility)),
			Limit:       limit,
		})
		if err != nil {
			return err
		}
		return printSessionTable(cmd.OutOrStdout(), sessions)
	},
}

var updateCmd = &cobra.Command{
	Use:     "update",
	Short:   "Change the mode, visibility or view of your session",
	GroupID: "sessions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := registryClient.FindByOwner(ctx, actor)
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("%s is not sharing a session", actor)
		}
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("mode") {
			mode, _ := cmd.Flags().GetString("mode")
			s.Mode = model.Mode(strings.ToUpper(mode))
		}
		if cmd.Flags().Changed("visibility") {
			visibility, _ := cmd.Flags().GetString("visibility")
			s.Visibility = model.Visibility(strings.ToUpper(visibility))
		}
		if cmd.Flags().Changed("view") {
			pairs, _ := cmd.Flags().GetStringArray("view")
			vs, err := parseViewFlags(pairs)
			if err != nil {
				return err
			}
			s.ViewState = vs.Encode()
		}

		s, err = registryClient.Update(ctx, s)
		if err != nil {
			return err
		}
		return printSession(cmd.OutOrStdout(), s)
	},
}

var clearCmd = &cobra.Command{
	Use:     "clear",
	Short:   "Stop sharing your session",
	GroupID: "sessions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := registryClient.Clear(context.Background(), actor)
		if errors.Is(err, model.ErrNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is not sharing a session\n", actor)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "sharing cleared")
		return nil
	},
}

var transferCmd = &cobra.Command{
	Use:     "transfer <session-id> <new-owner>",
	Short:   "Hand a session to another owner under the same id",
	GroupID: "sessions",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := registryClient.Transfer(context.Background(), args[0], args[1])
		if err != nil {
			return err
		}
		return printSession(cmd.OutOrStdout(), s)
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the server",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := registryClient.Health(context.Background())
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) {
				return fmt.Errorf("server unhealthy: %s", apiErr.Message)
			}
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), status)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{shareCmd, updateCmd} {
		c.Flags().String("mode", string(model.ModeTeam), "session mode (TEAM or SOLO)")
		c.Flags().String("visibility", string(model.VisibilityPublic), "session visibility (PUBLIC or PRIVATE)")
		c.Flags().StringArray("view", nil, "view state entry key=value (repeatable)")
	}
	showCmd.Flags().String("owner", "", "look up the session owned by this user")

	listCmd.Flags().String("owner", "", "only this owner's session")
	listCmd.Flags().String("visibility", "", "filter by visibility")
	listCmd.Flags().Int("limit", 0, "maximum sessions to list")
}
