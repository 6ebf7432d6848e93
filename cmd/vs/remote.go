package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// RemotesConfig holds all named remotes and tracks which one is active.
type RemotesConfig struct {
	Active  string            `toml:"active" json:"active"`
	Remotes map[string]Remote `toml:"remotes" json:"remotes"`
}

// Remote is a named viewshare deployment: its registry endpoints, the NATS
// server participants join sessions through, and the bearer token.
type Remote struct {
	URL         string `toml:"url" json:"url"`
	GRPCAddr    string `toml:"grpc_addr,omitempty" json:"grpcAddr,omitempty"`
	Token       string `toml:"token,omitempty" json:"token,omitempty"`
	NATSURL     string `toml:"nats_url,omitempty" json:"natsUrl,omitempty"`
	Description string `toml:"description,omitempty" json:"description,omitempty"`
}

func (r Remote) validate() error {
	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid registry URL %q: want http(s)://host[:port]", r.URL)
	}
	if r.NATSURL != "" {
		if u, err := url.Parse(r.NATSURL); err != nil || u.Host == "" {
			return fmt.Errorf("invalid NATS URL %q", r.NATSURL)
		}
	}
	return nil
}

func (c *RemotesConfig) names() []string {
	names := make([]string, 0, len(c.Remotes))
	for name := range c.Remotes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *RemotesConfig) lookup(name string) (Remote, error) {
	r, ok := c.Remotes[name]
	if !ok {
		return Remote{}, fmt.Errorf("remote %q not found", name)
	}
	return r, nil
}

func validRemoteName(name string) error {
	if name == "" || strings.ContainsAny(name, " \t\n/\\\"") {
		return fmt.Errorf("invalid remote name %q", name)
	}
	return nil
}

// remotesFile is the on-disk profile store. VIEWSHARE_REMOTES overrides
// the default ~/.local/state/viewshare/remotes.toml.
type remotesFile struct {
	path string
}

func openRemotes() (remotesFile, error) {
	if p := os.Getenv("VIEWSHARE_REMOTES"); p != "" {
		return remotesFile{path: p}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return remotesFile{}, fmt.Errorf("locating remotes file: %w", err)
	}
	return remotesFile{path: filepath.Join(home, ".local", "state", "viewshare", "remotes.toml")}, nil
}

func (f remotesFile) load() (RemotesConfig, error) {
	cfg := RemotesConfig{}
	if _, err := toml.DecodeFile(f.path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return RemotesConfig{}, fmt.Errorf("reading %s: %w", f.path, err)
	}
	if cfg.Remotes == nil {
		cfg.Remotes = map[string]Remote{}
	}
	return cfg, nil
}

// save replaces the file atomically; it holds tokens, so it is 0600 in a
// 0700 directory.
func (f remotesFile) save(cfg RemotesConfig) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".remotes-*.toml")
	if err != nil {
		return fmt.Errorf("writing remotes: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := toml.NewEncoder(tmp).Encode(cfg); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding remotes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing remotes: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("writing remotes: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}

// update loads the profiles, applies fn and saves the result unless fn
// fails.
func (f remotesFile) update(fn func(*RemotesConfig) error) error {
	cfg, err := f.load()
	if err != nil {
		return err
	}
	if err := fn(&cfg); err != nil {
		return err
	}
	return f.save(cfg)
}

func loadRemotesConfig() (RemotesConfig, error) {
	f, err := openRemotes()
	if err != nil {
		return RemotesConfig{}, err
	}
	return f.load()
}

func updateRemotes(fn func(*RemotesConfig) error) error {
	f, err := openRemotes()
	if err != nil {
		return err
	}
	return f.update(fn)
}

var (
	remoteOnce   sync.Once
	cachedRemote Remote
	haveRemote   bool
)

// activeRemote returns the active profile, loaded once per process.
func activeRemote() (Remote, bool) {
	remoteOnce.Do(func() {
		cfg, err := loadRemotesConfig()
		if err != nil || cfg.Active == "" {
			return
		}
		cachedRemote, haveRemote = cfg.Remotes[cfg.Active]
	})
	return cachedRemote, haveRemote
}

// maskToken keeps the first keep characters of tok. An empty fill
// truncates with "..."; otherwise every hidden character becomes fill.
func maskToken(tok string, keep int, fill string) string {
	if len(tok) <= keep {
		return tok
	}
	if fill == "" {
		return tok[:keep] + "..."
	}
	return tok[:keep] + strings.Repeat(fill, len(tok)-keep)
}

var remoteCmd = &cobra.Command{
	Use:               "remote",
	Short:             "Manage named viewshare deployments",
	GroupID:           "system",
	PersistentPreRunE: noConnect,
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <http-url>",
	Short: "Add or update a named remote",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := validRemoteName(name); err != nil {
			return err
		}
		flags := cmd.Flags()
		r := Remote{URL: strings.TrimRight(args[1], "/")}
		r.GRPCAddr, _ = flags.GetString("grpc")
		r.Token, _ = flags.GetString("token")
		r.NATSURL, _ = flags.GetString("nats")
		r.Description, _ = flags.GetString("description")
		activate, _ := flags.GetBool("use")
		if err := r.validate(); err != nil {
			return err
		}

		err := updateRemotes(func(cfg *RemotesConfig) error {
			cfg.Remotes[name] = r
			if activate {
				cfg.Active = name
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q saved (%s)\n", name, r.URL)
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a named remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		err := updateRemotes(func(cfg *RemotesConfig) error {
			if _, err := cfg.lookup(name); err != nil {
				return err
			}
			delete(cfg.Remotes, name)
			if cfg.Active == name {
				cfg.Active = ""
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q removed\n", name)
		return nil
	},
}

var remoteRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a remote, keeping it active if it was",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to := args[0], args[1]
		if err := validRemoteName(to); err != nil {
			return err
		}
		err := updateRemotes(func(cfg *RemotesConfig) error {
			r, err := cfg.lookup(from)
			if err != nil {
				return err
			}
			if _, taken := cfg.Remotes[to]; taken {
				return fmt.Errorf("remote %q already exists", to)
			}
			delete(cfg.Remotes, from)
			cfg.Remotes[to] = r
			if cfg.Active == from {
				cfg.Active = to
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q renamed to %q\n", from, to)
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all remotes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			for name, r := range cfg.Remotes {
				r.Token = maskToken(r.Token, 8, "")
				cfg.Remotes[name] = r
			}
			return printJSON(out, cfg)
		}
		if len(cfg.Remotes) == 0 {
			fmt.Fprintln(out, "no remotes configured")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tURL\tNATS\tTOKEN\tDESCRIPTION")
		for _, name := range cfg.names() {
			r := cfg.Remotes[name]
			marker := "  "
			if name == cfg.Active {
				marker = "* "
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%s\n", marker, name, r.URL, r.NATSURL, maskToken(r.Token, 8, ""), r.Description)
		}
		return w.Flush()
	},
}

var remoteUseCmd = &cobra.Command{
	Use:   "use [name]",
	Short: "Set the active remote (no args clears it)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var name string
		if len(args) == 1 {
			name = args[0]
		}
		err := updateRemotes(func(cfg *RemotesConfig) error {
			if name != "" {
				if _, err := cfg.lookup(name); err != nil {
					return err
				}
			}
			cfg.Active = name
			return nil
		})
		if err != nil {
			return err
		}
		if name == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "active remote cleared")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "active remote set to %q\n", name)
		}
		return nil
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show details for a remote (defaults to active)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		name := cfg.Active
		if len(args) == 1 {
			name = args[0]
		}
		if name == "" {
			return fmt.Errorf("no active remote; name one or run 'vs remote use <name>'")
		}
		r, err := cfg.lookup(name)
		if err != nil {
			return err
		}

		rows := [][2]string{{"name", name}}
		if name == cfg.Active {
			rows[0][1] += " (active)"
		}
		for _, kv := range [][2]string{
			{"description", r.Description},
			{"url", r.URL},
			{"grpc_addr", r.GRPCAddr},
			{"nats_url", r.NATSURL},
			{"token", maskToken(r.Token, 8, "*")},
		} {
			if kv[1] != "" {
				rows = append(rows, kv)
			}
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		for _, kv := range rows {
			fmt.Fprintf(w, "%s:\t%s\n", kv[0], kv[1])
		}
		return w.Flush()
	},
}

func init() {
	f := remoteAddCmd.Flags()
	f.String("grpc", "", "gRPC address of the registry")
	f.String("token", "", "bearer token for the registry and gateway")
	f.String("nats", "", "NATS URL participants join sessions through")
	f.String("description", "", "human-readable description")
	f.Bool("use", false, "make this the active remote")

	remoteCmd.AddCommand(remoteAddCmd, remoteRemoveCmd, remoteRenameCmd, remoteListCmd, remoteUseCmd, remoteShowCmd)
}
