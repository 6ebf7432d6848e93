package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// useTempRemotes points the profile store at a fresh file.
func useTempRemotes(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "remotes.toml")
	t.Setenv("VIEWSHARE_REMOTES", path)
	return path
}

func TestRemotesFileRoundTrip(t *testing.T) {
	f := remotesFile{path: useTempRemotes(t)}

	in := RemotesConfig{
		Active: "prod",
		Remotes: map[string]Remote{
			"prod":  {URL: "https://vs.example.com", GRPCAddr: "vs.example.com:9090", Token: "tok_abc", NATSURL: "nats://prod:4222"},
			"local": {URL: "http://localhost:8080"},
		},
	}
	if err := f.save(in); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := f.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Active != "prod" || got.Remotes["prod"] != in.Remotes["prod"] {
		t.Errorf("loaded %+v", got)
	}
	if names := got.names(); len(names) != 2 || names[0] != "local" {
		t.Errorf("names = %v", names)
	}
}

func TestRemotesFileMissing(t *testing.T) {
	cfg, err := remotesFile{path: filepath.Join(t.TempDir(), "none.toml")}.load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Active != "" || cfg.Remotes == nil || len(cfg.Remotes) != 0 {
		t.Errorf("expected empty config, got %+v", cfg)
	}
}

func TestRemotesFilePermissions(t *testing.T) {
	path := useTempRemotes(t)
	if err := (remotesFile{path: path}).save(RemotesConfig{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	for p, want := range map[string]os.FileMode{path: 0o600, filepath.Dir(path): 0o700} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if got := info.Mode().Perm(); got != want {
			t.Errorf("%s permissions = %04o, want %04o", p, got, want)
		}
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestDefaultRemotesPath(t *testing.T) {
	t.Setenv("VIEWSHARE_REMOTES", "")
	t.Setenv("HOME", t.TempDir())
	f, err := openRemotes()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(f.path, filepath.Join(".local", "state", "viewshare", "remotes.toml")) {
		t.Errorf("path = %s", f.path)
	}
}

func TestRemoteValidate(t *testing.T) {
	tests := []struct {
		r  Remote
		ok bool
	}{
		{Remote{URL: "http://localhost:8080"}, true},
		{Remote{URL: "https://vs.example.com", NATSURL: "nats://n:4222"}, true},
		{Remote{URL: "localhost:8080"}, false},
		{Remote{URL: "ftp://host"}, false},
		{Remote{URL: "http://"}, false},
		{Remote{URL: "http://h", NATSURL: "not a url"}, false},
	}
	for _, tt := range tests {
		if err := tt.r.validate(); (err == nil) != tt.ok {
			t.Errorf("validate(%+v) = %v, want ok=%v", tt.r, err, tt.ok)
		}
	}
}

// runRemote executes a remote subcommand with args and returns its output.
func runRemote(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd, rest, err := remoteCmd.Find(args)
	if err != nil {
		t.Fatal(err)
	}
	cmd.SetOut(&buf)
	if err := cmd.ParseFlags(rest); err != nil {
		t.Fatal(err)
	}
	err = cmd.RunE(cmd, cmd.Flags().Args())
	return buf.String(), err
}

func TestRemoteLifecycle(t *testing.T) {
	useTempRemotes(t)
	t.Cleanup(func() { _ = remoteAddCmd.Flags().Set("use", "false") })

	mustRun := func(args ...string) string {
		t.Helper()
		out, err := runRemote(t, args...)
		if err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		return out
	}

	mustRun("add", "local", "http://localhost:8080/", "--use")
	mustRun("add", "local", "http://localhost:8080") // upsert
	cfg, _ := loadRemotesConfig()
	if cfg.Active != "local" || cfg.Remotes["local"].URL != "http://localhost:8080" {
		t.Fatalf("after add: %+v", cfg)
	}

	if out := mustRun("list"); !strings.Contains(out, "* local") {
		t.Errorf("list missing active marker; got:\n%s", out)
	}

	mustRun("rename", "local", "dev")
	if out := mustRun("show"); !strings.Contains(out, "dev (active)") || !strings.Contains(out, "http://localhost:8080") {
		t.Errorf("show after rename; got:\n%s", out)
	}

	mustRun("use")
	cfg, _ = loadRemotesConfig()
	if cfg.Active != "" {
		t.Errorf("Active = %q after clearing", cfg.Active)
	}

	mustRun("use", "dev")
	mustRun("remove", "dev")
	cfg, _ = loadRemotesConfig()
	if len(cfg.Remotes) != 0 || cfg.Active != "" {
		t.Errorf("after remove: %+v", cfg)
	}
}

func TestRemoteTokenMasking(t *testing.T) {
	useTempRemotes(t)
	t.Cleanup(func() {
		_ = remoteAddCmd.Flags().Set("token", "")
		_ = remoteAddCmd.Flags().Set("use", "false")
	})

	if _, err := runRemote(t, "add", "prod", "https://vs.example.com", "--token", "tok_verylongsecret", "--use"); err != nil {
		t.Fatal(err)
	}

	out, err := runRemote(t, "list")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "tok_verylongsecret") || !strings.Contains(out, "tok_very...") {
		t.Errorf("list token not truncated; got:\n%s", out)
	}

	out, err = runRemote(t, "show")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "tok_verylongsecret") || !strings.Contains(out, "tok_very**********") {
		t.Errorf("show token not masked; got:\n%s", out)
	}
}

func TestRemoteErrorCases(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"use unknown", []string{"use", "ghost"}},
		{"remove unknown", []string{"remove", "ghost"}},
		{"rename unknown", []string{"rename", "ghost", "spirit"}},
		{"show no active", []string{"show"}},
		{"bad name", []string{"add", "my remote", "http://h"}},
		{"bad url", []string{"add", "x", "localhost:8080"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			useTempRemotes(t)
			if _, err := runRemote(t, tc.args...); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}
