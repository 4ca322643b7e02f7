package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and wires the subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	createFlags := &CreateFlags{}
	sessionFlags := &SessionFlags{}
	logsFlags := &LogsFlags{}
	serveFlags := &ServeFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags, serveFlags),
		createCreateCommand(createFlags),
		createListCommand(sessionFlags),
		createGetCommand(sessionFlags),
		createStopCommand(sessionFlags),
		createRestartCommand(sessionFlags),
		createDeleteCommand(sessionFlags),
		createLogsCommand(logsFlags),
		createRecentCommand(logsFlags),
		createClearLogsCommand(logsFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags.
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "tmated",
		Short: "Terminal session sharing daemon",
		Long: `Tmated manages shared terminal sessions: it spawns one backing process
per session, streams its output to connected observers and exposes an
HTTP API for lifecycle control.

Examples:
  tmated serve --config=tmated.toml   # Start daemon
  tmated create --name=pairing        # New session via local daemon
  tmated list                         # Sessions, newest first
  tmated logs <session-id>            # Retained log records`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createCreateCommand(flags *CreateFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new shared session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Name, "name", "", "human-readable session name")
	cmd.Flags().StringVar(&flags.Region, "region", "", "region tag (defaults to daemon region)")
	cmd.Flags().StringVar(&flags.Command, "command", "", "override the backing process command")
	cmd.Flags().StringVar(&flags.WorkDir, "work-dir", "", "working directory for the backing process")
	addClientFlags(cmd, &flags.Client)
	return cmd
}

func createListCommand(flags *SessionFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(*flags)
		},
	}
	cmd.Flags().BoolVar(&flags.ActiveOnly, "active", false, "only running sessions")
	addClientFlags(cmd, &flags.Client)
	return cmd
}

func createGetCommand(flags *SessionFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <session-id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(*flags, args[0])
		},
	}
	addClientFlags(cmd, &flags.Client)
	return cmd
}

func createStopCommand(flags *SessionFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop <session-id>",
		Short: "Stop a session's backing process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(*flags, args[0])
		},
	}
	addClientFlags(cmd, &flags.Client)
	return cmd
}

func createRestartCommand(flags *SessionFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart <session-id>",
		Short: "Restart a session with a fresh backing process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestart(*flags, args[0])
		},
	}
	addClientFlags(cmd, &flags.Client)
	return cmd
}

func createDeleteCommand(flags *SessionFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Stop and remove a session and its logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(*flags, args[0])
		},
	}
	addClientFlags(cmd, &flags.Client)
	return cmd
}

func createLogsCommand(flags *LogsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs <session-id>",
		Short: "Show a session's retained log records, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(*flags, args[0])
		},
	}
	addClientFlags(cmd, &flags.Client)
	return cmd
}

func createRecentCommand(flags *LogsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show recent log records across sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecent(*flags)
		},
	}
	cmd.Flags().IntVar(&flags.Limit, "limit", 100, "maximum records to return")
	addClientFlags(cmd, &flags.Client)
	return cmd
}

func createClearLogsCommand(flags *LogsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear-logs [session-id]",
		Short: "Clear log records for one session, or all records",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) > 0 {
				id = args[0]
			}
			return runClearLogs(*flags, id)
		},
	}
	addClientFlags(cmd, &flags.Client)
	return cmd
}
