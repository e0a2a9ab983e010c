package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/llamactl/pkg/client"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	apiFlags := &APIFlags{}
	root := createRootCommand(apiFlags)
	cmd := command{api: apiFlags, out: os.Stdout}

	root.AddCommand(
		createServeCommand(&ServeFlags{}),
		createLaunchCommand(cmd, &LaunchFlags{}, false),
		createLaunchCommand(cmd, &LaunchFlags{}, true),
		createPsCommand(cmd),
		createLogsCommand(cmd, &LogsFlags{}),
		createKillCommand(cmd, &IDFlags{}),
		createRmCommand(cmd, &IDFlags{}),
		createCleanupCommand(cmd),
		createVersionsCommand(cmd),
		createModelsCommand(cmd),
	)
	return root
}

func createRootCommand(flags *APIFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "llamactl",
		Short: "Launch and supervise llama-server model processes",
		Long: `llamactl runs llama-server instances for local GGUF models and
exposes their lifecycle and output over an HTTP API.

Examples:
  llamactl serve config.toml
  llamactl launch --model=/models/llama-3-8b.gguf
  llamactl logs --id=<process-id> --follow
  llamactl ps --api-url=http://remote:7070/api`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.URL, "api-url", client.DefaultBaseURL, "daemon API URL")
	root.PersistentFlags().DurationVar(&flags.Timeout, "api-timeout", client.DefaultTimeout, "request timeout")
	root.PersistentFlags().StringVar(&flags.CACert, "api-ca-cert", "", "CA certificate for an HTTPS daemon")
	root.PersistentFlags().BoolVar(&flags.SkipVerify, "api-insecure", false, "skip TLS certificate verification")
	return root
}

func createServeCommand(flags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the llamactl daemon",
		Long: `Run the daemon in the foreground. On SIGINT or SIGTERM every model
server is stopped; a second signal kills them immediately. Set
LLAMA_OS_INSTANT_EXIT to skip the graceful phase.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runServe(path, *flags, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&flags.CleanupTimeout, "cleanup-timeout", 10*time.Second, "time allowed to reap model servers on shutdown")
	return cmd
}

func createLaunchCommand(c command, flags *LaunchFlags, external bool) *cobra.Command {
	use, short := "launch", "Launch a model server"
	if external {
		use, short = "launch-external", "Launch a model server in a terminal window"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd).Launch(cmd.Context(), *flags, external)
		},
	}
	cmd.Flags().StringVar(&flags.ModelPath, "model", "", "path to the model file (required)")
	if err := cmd.MarkFlagRequired("model"); err != nil {
		panic(err)
	}
	return cmd
}

func createPsCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "List managed processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd).List(cmd.Context())
		},
	}
}

func createLogsCommand(c command, flags *LogsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print captured output of a process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd).Logs(cmd.Context(), *flags)
		},
	}
	cmd.Flags().StringVar(&flags.ID, "id", "", "process id (required)")
	cmd.Flags().BoolVarP(&flags.Follow, "follow", "f", false, "keep printing until the process exits")
	cmd.Flags().DurationVar(&flags.Interval, "interval", 500*time.Millisecond, "poll interval with --follow")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createKillCommand(c command, flags *IDFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Terminate a process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd).Kill(cmd.Context(), *flags)
		},
	}
	cmd.Flags().StringVar(&flags.ID, "id", "", "process id (required)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createRmCommand(c command, flags *IDFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Remove the record of an exited process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd).Remove(cmd.Context(), *flags)
		},
	}
	cmd.Flags().StringVar(&flags.ID, "id", "", "process id (required)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createCleanupCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Stop every managed process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd).Cleanup(cmd.Context())
		},
	}
}

func createVersionsCommand(c command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "Manage installed llama.cpp builds",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List installed versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd).Versions(cmd.Context())
		},
	}

	useFlags := &VersionFlags{}
	use := &cobra.Command{
		Use:   "use",
		Short: "Activate an installed version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd).UseVersion(cmd.Context(), *useFlags)
		},
	}
	use.Flags().StringVar(&useFlags.Path, "path", "", "version folder (required)")

	delFlags := &VersionFlags{}
	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete an installed version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd).DeleteVersion(cmd.Context(), *delFlags)
		},
	}
	del.Flags().StringVar(&delFlags.Path, "path", "", "version folder (required)")

	for _, sub := range []*cobra.Command{use, del} {
		if err := sub.MarkFlagRequired("path"); err != nil {
			panic(err)
		}
	}
	cmd.AddCommand(list, use, del)
	return cmd
}

func createModelsCommand(c command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Show or change per-model launch settings",
	}

	getFlags := &ModelFlags{}
	get := &cobra.Command{
		Use:   "get",
		Short: "Show the settings of a model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd).GetModel(cmd.Context(), *getFlags)
		},
	}
	get.Flags().StringVar(&getFlags.Path, "path", "", "model file (required)")

	setFlags := &ModelFlags{}
	set := &cobra.Command{
		Use:   "set",
		Short: "Update the settings of a model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.with(cmd).SetModel(cmd.Context(), *setFlags, cmd.Flags().Changed)
		},
	}
	set.Flags().StringVar(&setFlags.Path, "path", "", "model file (required)")
	set.Flags().StringVar(&setFlags.Args, "args", "", "extra llama-server arguments")
	set.Flags().StringVar(&setFlags.Host, "host", "", "bind host")
	set.Flags().Uint16Var(&setFlags.Port, "port", 0, "preferred port")
	set.Flags().StringArrayVar(&setFlags.Env, "env", nil, "KEY=VALUE environment entry (repeatable)")

	for _, sub := range []*cobra.Command{get, set} {
		if err := sub.MarkFlagRequired("path"); err != nil {
			panic(err)
		}
	}
	cmd.AddCommand(get, set)
	return cmd
}
