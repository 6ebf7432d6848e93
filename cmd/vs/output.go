package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/viewshare/internal/model"
	"github.com/alfredjeanlab/viewshare/internal/ui"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSession(w io.Writer, s *model.Session) error {
	if jsonOutput {
		return printJSON(w, s)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "session:\t%s\n", ui.RenderAccent(s.ID))
	fmt.Fprintf(tw, "owner:\t%s\n", s.OwnerUserID)
	fmt.Fprintf(tw, "mode:\t%s\n", ui.RenderMode(s.Mode))
	fmt.Fprintf(tw, "visibility:\t%s\n", ui.RenderVisibility(s.Visibility))
	if s.ViewState != "" {
		vs, err := model.ParseViewState(s.ViewState)
		if err == nil && len(vs) > 0 {
			fmt.Fprintf(tw, "view:\t%s\n", describeView(vs))
		}
	}
	if !s.UpdatedAt.IsZero() {
		fmt.Fprintf(tw, "updated:\t%s\n", ui.RenderMuted(s.UpdatedAt.Local().Format(time.RFC3339)))
	}
	return tw.Flush()
}

func printSessionTable(w io.Writer, sessions []*model.Session) error {
	if jsonOutput {
		if sessions == nil {
			sessions = []*model.Session{}
		}
		return printJSON(w, sessions)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no sessions")
		return nil
	}
	width := ui.Width()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tOWNER\tMODE\tVISIBILITY\tVIEW")
	for _, s := range sessions {
		view := ""
		if vs, err := model.ParseViewState(s.ViewState); err == nil {
			view = ui.Truncate(describeView(vs), width/3)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.OwnerUserID, ui.RenderMode(s.Mode), ui.RenderVisibility(s.Visibility), view)
	}
	return tw.Flush()
}

// describeView renders a view state as its decoded query string.
func describeView(vs model.ViewState) string {
	d, err := url.QueryUnescape(vs.Encode())
	if err != nil {
		return vs.Encode()
	}
	return d
}
