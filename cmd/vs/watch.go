package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/viewshare/internal/config"
	"github.com/alfredjeanlab/viewshare/internal/control"
	"github.com/alfredjeanlab/viewshare/internal/events"
	"github.com/alfredjeanlab/viewshare/internal/model"
	"github.com/alfredjeanlab/viewshare/internal/session"
	"github.com/alfredjeanlab/viewshare/internal/ui"
	"github.com/alfredjeanlab/viewshare/internal/viewport"
)

func watchNATSURL(flag string) string {
	if flag != "" {
		return flag
	}
	if s := os.Getenv("VIEWSHARE_NATS_URL"); s != "" {
		return s
	}
	if r, ok := activeRemote(); ok {
		return r.NATSURL
	}
	return ""
}

// formatStatus renders one status line for the watch stream.
func formatStatus(st session.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", ui.RenderMuted(time.Now().Format("15:04:05")), st.State)
	if st.Session != nil {
		fmt.Fprintf(&b, " %s %s", ui.RenderAccent(st.Session.ID), ui.RenderMode(st.Session.Mode))
	} else if st.SessionID != "" {
		fmt.Fprintf(&b, " %s", ui.RenderAccent(st.SessionID))
	}
	if !st.Connected {
		b.WriteString(" " + ui.RenderWarning("disconnected"))
	}
	if st.Control.SharingUserID != "" {
		fmt.Fprintf(&b, " control=%s", st.Control.SharingUserID)
	}
	if len(st.Roster) > 0 {
		names := make([]string, 0, len(st.Roster))
		for _, e := range st.Roster {
			name := e.DisplayName
			if e.Connections > 1 {
				name = fmt.Sprintf("%s(%d)", name, e.Connections)
			}
			if e.IsSharing {
				name = "*" + name
			}
			names = append(names, name)
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(names, ", "))
	}
	return b.String()
}

func statusPrinter(w io.Writer) func(session.Status) {
	return func(st session.Status) {
		if jsonOutput {
			_ = printJSON(w, st)
			return
		}
		fmt.Fprintln(w, formatStatus(st))
	}
}

var watchCmd = &cobra.Command{
	Use:     "watch [session-id]",
	Short:   "Join a session headless and print its presence and control",
	GroupID: "sessions",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		natsFlag, _ := cmd.Flags().GetString("nats")
		name, _ := cmd.Flags().GetString("name")
		takeControl, _ := cmd.Flags().GetBool("control")

		natsURL := watchNATSURL(natsFlag)
		if natsURL == "" {
			return errors.New("watch needs a NATS URL (--nats, VIEWSHARE_NATS_URL or a remote)")
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		bus, err := events.NewNATSBus(natsURL)
		if err != nil {
			return err
		}
		defer bus.Close()

		out := cmd.OutOrStdout()
		who := model.Identity{UserID: actor, Name: name}
		m, err := session.New(session.Options{
			Bus:      bus,
			Registry: registryClient,
			Renderer: viewport.NewGrid(viewport.NewStack("viewport-0", nil, viewport.VOIRange{})),
			Identity: who,
			Notifier: control.NotifierFunc(func(n control.Notice) {
				fmt.Fprintln(out, ui.RenderAccent(n.Message()))
			}),
			OnStatus:  statusPrinter(out),
			Presence:  cfg.Presence(),
			Replicate: cfg.Replicate(),
			Logger:    logger,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		// The loop outlives ctx so Close can still leave the channels.
		runCtx, cancelRun := context.WithCancel(context.Background())
		defer cancelRun()
		runErr := make(chan error, 1)
		go func() { runErr <- m.Run(runCtx) }()

		if len(args) == 1 {
			if err := m.Start(ctx, args[0]); err != nil {
				return err
			}
		} else if err := m.IdentityResolved(ctx, who); err != nil {
			return err
		}

		if takeControl {
			if err := m.Flush(ctx); err != nil {
				return err
			}
			if err := m.RequestControl(ctx); err != nil {
				return err
			}
		}

		<-ctx.Done()
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.Close(closeCtx); err != nil {
			logger.Warn("watch: close failed", "err", err)
		}
		cancelRun()
		if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().String("nats", "", "NATS URL for the session transport")
	watchCmd.Flags().String("name", "", "display name shown to other participants")
	watchCmd.Flags().Bool("control", false, "request control once joined")
}
