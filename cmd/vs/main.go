package main

import (
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/viewshare/internal/client"
	"github.com/alfredjeanlab/viewshare/internal/ui"
)

var (
	serverAddr string
	httpURL    string
	transport  string
	authToken  string
	jsonOutput bool
	actor      string

	registryClient client.RegistryClient
)

func defaultActor() string {
	if s := os.Getenv("VIEWSHARE_USER"); s != "" {
		return s
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

func defaultHTTPURL() string {
	if s := os.Getenv("VIEWSHARE_HTTP_URL"); s != "" {
		return s
	}
	if r, ok := activeRemote(); ok && r.URL != "" {
		return r.URL
	}
	return "http://localhost:8080"
}

func defaultServer() string {
	if s := os.Getenv("VIEWSHARE_SERVER"); s != "" {
		return s
	}
	if r, ok := activeRemote(); ok && r.GRPCAddr != "" {
		return r.GRPCAddr
	}
	return "localhost:9090"
}

func defaultToken() string {
	if s := os.Getenv("VIEWSHARE_TOKEN"); s != "" {
		return s
	}
	if r, ok := activeRemote(); ok {
		return r.Token
	}
	return ""
}

// connect opens the registry client for commands that talk to a server.
func connect(cmd *cobra.Command, args []string) error {
	switch transport {
	case "http":
		registryClient = client.NewHTTPClient(httpURL, authToken)
	case "grpc":
		c, err := client.NewGRPCClient(serverAddr, authToken)
		if err != nil {
			return fmt.Errorf("failed to connect to server: %w", err)
		}
		registryClient = c
	default:
		return fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
	}
	return nil
}

// noConnect overrides connect for commands that run locally.
func noConnect(cmd *cobra.Command, args []string) error { return nil }

var rootCmd = &cobra.Command{
	Use:               "vs <command>",
	Short:             "Shared image viewing sessions",
	SilenceUsage:      true,
	PersistentPreRunE: connect,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if registryClient != nil {
			registryClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultServer(), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "http", "transport protocol (http or grpc)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(), "bearer token")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().StringVar(&actor, "user", defaultActor(), "user id acting on sessions")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sessions", Title: "Sessions:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Sessions
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(watchCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	ui.Init()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
