package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"personachat/client"
	"personachat/config"
	"personachat/logging"
	"personachat/personas"
	"personachat/session"
)

func main() {
	var (
		configPath string
		serverURL  string
		persona    string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a persona through the relay server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if serverURL != "" {
				cfg.Client.ServerURL = serverURL
			}
			logger := logging.New(cfg.Log.Level, "auto", cmd.ErrOrStderr())

			templates := personas.DefaultTemplates()
			state := session.New(templates)
			if err := state.Select(persona); err != nil {
				return err
			}
			c := client.New(client.Config{
				ServerURL: cfg.Client.ServerURL,
				Timeout:   cfg.Client.Timeout,
			}, templates, logger)

			r := &repl{
				state:    state,
				streamer: c,
				in:       cmd.InOrStdin(),
				out:      cmd.OutOrStdout(),
			}
			return r.run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&serverURL, "server", "", "relay server URL (overrides client.server_url)")
	cmd.Flags().StringVar(&persona, "persona", personas.Hitesh, "persona to start with")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
