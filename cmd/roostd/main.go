package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot assembles the CLI command tree.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	roostdCommand := command{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createListCommand(roostdCommand),
		createStatusCommand(roostdCommand),
		createCreateCommand(roostdCommand, false),
		createCreateCommand(roostdCommand, true),
		createInstallCommand(roostdCommand),
		createLabelCommand(roostdCommand, "start", "Start a launch agent",
			"Start the agent's process via the daemon.\n\nExamples:\n  roostd start --label=com.roostd.checkout-kiosk"),
		createLabelCommand(roostdCommand, "stop", "Stop a launch agent",
			"Stop the agent's process. Stopping an already stopped agent succeeds.\n\nExamples:\n  roostd stop --label=com.roostd.checkout-kiosk"),
		createLabelCommand(roostdCommand, "restart", "Restart a launch agent",
			"Stop then start the agent's process.\n\nExamples:\n  roostd restart --label=com.roostd.checkout-kiosk"),
		createLabelCommand(roostdCommand, "delete", "Delete a launch agent",
			"Unload the agent, remove its plist and forget it. Deleting an unknown\nlabel succeeds.\n\nExamples:\n  roostd delete --label=com.roostd.checkout-kiosk"),
		createTestCommand(roostdCommand),
		createViewCommand(roostdCommand),
		createUpdateCommand(roostdCommand),
		createExportCommand(roostdCommand),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "roostd",
		Short: "Kiosk launch agent manager for macOS",
		Long: `Roostd manages macOS Launch Agents that keep kiosk apps and web
dashboards running, and serves the REST API the reliability dashboard polls.

Examples:
  roostd serve                                    # Start daemon
  roostd create --target=/Applications/Kiosk.app
  roostd install --label=com.roostd.kiosk
  roostd status --api-url=http://kiosk-7:8080/api # Remote status`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createListCommand(roostdCommand command) *cobra.Command {
	apiFlags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered launch agents",
		Long: `List all descriptors known to the daemon.

Examples:
  roostd list
  roostd list --api-url=http://kiosk-7:8080/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return roostdCommand.List(*apiFlags)
		},
	}
	addAPIFlags(cmd, apiFlags)
	return cmd
}

func createStatusCommand(roostdCommand command) *cobra.Command {
	apiFlags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show launch agent status",
		Long: `Show the loaded/running state of every managed agent, as launchd
reports it.

Examples:
  roostd status
  roostd status --watch --interval=5s
  roostd status --api-url=http://kiosk-7:8080/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			watch, _ := cmd.Flags().GetBool("watch")
			interval, _ := cmd.Flags().GetDuration("interval")
			return roostdCommand.Status(*apiFlags, watch, interval)
		},
	}
	addAPIFlags(cmd, apiFlags)
	cmd.Flags().Bool("watch", false, "poll continuously, printing on change")
	cmd.Flags().Duration("interval", 5*time.Second, "watch poll interval")
	return cmd
}

func createCreateCommand(roostdCommand command, web bool) *cobra.Command {
	createFlags := &CreateFlags{}
	use, short := "create", "Create a desktop app launch agent"
	long := `Compile a launch agent plist for a desktop application. The agent is
written to the agents directory but not installed with launchd.

Examples:
  roostd create --target=/Applications/Kiosk.app
  roostd create --target=/Applications/Kiosk.app --keep-alive --run-at-load`
	if web {
		use, short = "create-web", "Create a web kiosk launch agent"
		long = `Compile a launch agent plist that opens a URL in a kiosk-mode browser.
The agent is written to the agents directory but not installed with launchd.

Examples:
  roostd create-web --target=https://dashboard.example.com
  roostd create-web --target=https://dashboard.example.com --browser="/Applications/Firefox.app/Contents/MacOS/firefox"`
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		RunE: func(cmd *cobra.Command, args []string) error {
			return roostdCommand.Create(*createFlags, web)
		},
	}
	addCreateFlags(cmd, createFlags)
	if err := cmd.MarkFlagRequired("target"); err != nil {
		panic(err)
	}
	return cmd
}

func createInstallCommand(roostdCommand command) *cobra.Command {
	createFlags := &CreateFlags{}
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install a launch agent with launchd",
		Long: `Register the agent's plist with launchd (launchctl load -w). When a
target is given and no descriptor exists yet, the plist is compiled first.

Examples:
  roostd install --label=com.roostd.checkout-kiosk
  roostd install --target=/Applications/Kiosk.app --keep-alive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return roostdCommand.Install(*createFlags)
		},
	}
	addCreateFlags(cmd, createFlags)
	return cmd
}

func createLabelCommand(roostdCommand command, verb, short, long string) *cobra.Command {
	labelFlags := &LabelFlags{}
	cmd := &cobra.Command{
		Use:   verb,
		Short: short,
		Long:  long,
		RunE: func(cmd *cobra.Command, args []string) error {
			return roostdCommand.LabelVerb(verb, *labelFlags)
		},
	}
	cmd.Flags().StringVar(&labelFlags.Label, "label", "", "agent label (required)")
	addAPIFlags(cmd, &labelFlags.API)
	if err := cmd.MarkFlagRequired("label"); err != nil {
		panic(err)
	}
	return cmd
}

func createTestCommand(roostdCommand command) *cobra.Command {
	labelFlags := &LabelFlags{}
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Trial-start a launch agent",
		Long: `Start the agent and watch it briefly, reporting whether it reached a
running state or crashed inside the window.

Examples:
  roostd test --label=com.roostd.checkout-kiosk`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return roostdCommand.Test(*labelFlags)
		},
	}
	cmd.Flags().StringVar(&labelFlags.Label, "label", "", "agent label (required)")
	addAPIFlags(cmd, &labelFlags.API)
	if err := cmd.MarkFlagRequired("label"); err != nil {
		panic(err)
	}
	return cmd
}

func createViewCommand(roostdCommand command) *cobra.Command {
	labelFlags := &LabelFlags{}
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Print a launch agent's plist",
		Long: `Print the descriptor file contents for an agent.

Examples:
  roostd view --label=com.roostd.checkout-kiosk`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return roostdCommand.View(*labelFlags)
		},
	}
	cmd.Flags().StringVar(&labelFlags.Label, "label", "", "agent label (required)")
	addAPIFlags(cmd, &labelFlags.API)
	if err := cmd.MarkFlagRequired("label"); err != nil {
		panic(err)
	}
	return cmd
}

func createUpdateCommand(roostdCommand command) *cobra.Command {
	updateFlags := &UpdateFlags{}
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Replace a launch agent's plist",
		Long: `Replace the descriptor file contents for an agent from a local file.
The new contents must be a valid plist keeping the same label.

Examples:
  roostd update --label=com.roostd.checkout-kiosk --file=./kiosk.plist`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return roostdCommand.Update(*updateFlags)
		},
	}
	cmd.Flags().StringVar(&updateFlags.Label, "label", "", "agent label (required)")
	cmd.Flags().StringVar(&updateFlags.File, "file", "", "path to new plist contents (required)")
	addAPIFlags(cmd, &updateFlags.API)
	for _, f := range []string{"label", "file"} {
		if err := cmd.MarkFlagRequired(f); err != nil {
			panic(err)
		}
	}
	return cmd
}

func createExportCommand(roostdCommand command) *cobra.Command {
	exportFlags := &ExportFlags{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download a launch agent's plist",
		Long: `Fetch the descriptor file for an agent and write it locally, using the
daemon-suggested filename unless --out is given.

Examples:
  roostd export --label=com.roostd.checkout-kiosk
  roostd export --label=com.roostd.checkout-kiosk --out=./kiosk.plist`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return roostdCommand.Export(*exportFlags)
		},
	}
	cmd.Flags().StringVar(&exportFlags.Label, "label", "", "agent label (required)")
	cmd.Flags().StringVar(&exportFlags.Out, "out", "", "output path (default: daemon-suggested filename)")
	addAPIFlags(cmd, &exportFlags.API)
	if err := cmd.MarkFlagRequired("label"); err != nil {
		panic(err)
	}
	return cmd
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the roostd daemon",
		Long: `Start the roostd daemon: the launch agent controller, the status
reconciler and the REST API. Without a config file built-in defaults are
used (agents in ~/Library/LaunchAgents, state in ~/.roostd).

Examples:
  roostd serve
  roostd serve config.toml
  roostd serve --daemonize --pidfile=/tmp/roostd.pid`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServeCommand(serveFlags, args)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write daemon PID to file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon logs to file")
	return cmd
}

func addAPIFlags(cmd *cobra.Command, flags *APIFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (default http://127.0.0.1:8080/api)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().BoolVar(&flags.Insecure, "insecure", false, "skip TLS certificate verification")
}

func addCreateFlags(cmd *cobra.Command, flags *CreateFlags) {
	cmd.Flags().StringVar(&flags.Label, "label", "", "agent label (derived from target when empty)")
	cmd.Flags().StringVar(&flags.Target, "target", "", "application path or URL")
	cmd.Flags().StringVar(&flags.Browser, "browser", "", "browser executable for web agents")
	cmd.Flags().BoolVar(&flags.KeepAlive, "keep-alive", false, "restart the process when it exits")
	cmd.Flags().BoolVar(&flags.RunAtLoad, "run-at-load", false, "start the process as soon as it is loaded")
	cmd.Flags().BoolVar(&flags.SuccessfulExitOnly, "successful-exit-only", false, "keep alive only after unsuccessful exits")
	addAPIFlags(cmd, &flags.API)
}
