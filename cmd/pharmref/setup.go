package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pharmref-mcp-server/internal/setup"
)

func setupCmd(a *app) *cobra.Command {
	var clientConfig string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the stdio server with Claude Desktop",
	}
	cmd.PersistentFlags().StringVar(&clientConfig, "client-config", "", "Path to claude_desktop_config.json (default: OS location)")

	var binary string
	install := &cobra.Command{
		Use:   "install",
		Short: "Add or replace the pharmref entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, path, err := setup.Register(setup.Options{
				ConfigPath: clientConfig,
				BinaryPath: binary,
				DataDir:    a.cfg.Storage.DataDir,
				RedisURL:   a.cfg.Cache.RedisURL,
				LogLevel:   a.cfg.Logging.Level,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s -> %s in %s\n", setup.ServerName, entry.Command, path)
			return nil
		},
	}
	install.Flags().StringVar(&binary, "binary", "", "Path to mcp-server-lite (default: PATH lookup)")

	uninstall := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the pharmref entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := setup.Unregister(clientConfig)
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintln(cmd.OutOrStdout(), "pharmref was not registered.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Removed pharmref.")
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the registration and data directory state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := setup.Inspect(clientConfig, a.cfg.Storage.DataDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Client config: %s\n", st.ConfigPath)
			fmt.Fprintf(out, "Registered:    %t\n", st.Registered)
			if st.Registered {
				fmt.Fprintf(out, "Binary:        %s (found: %t)\n", st.BinaryPath, st.BinaryExists)
			}
			fmt.Fprintf(out, "Data dir:      %s (found: %t)\n", st.DataDir, st.DataDirFound)
			for _, issue := range st.Issues {
				fmt.Fprintf(out, "  ! %s\n", issue)
			}
			return nil
		},
	}

	cmd.AddCommand(install, uninstall, status)
	return cmd
}
