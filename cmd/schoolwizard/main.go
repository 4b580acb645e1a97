package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	schoolwizard "github.com/goliatone/go-schoolwizard"
	"github.com/goliatone/go-schoolwizard/internal/config"
	"github.com/goliatone/go-schoolwizard/internal/logging"
	"github.com/goliatone/go-schoolwizard/pkg/model"
	"github.com/goliatone/go-schoolwizard/pkg/orchestrator"
	"github.com/goliatone/go-schoolwizard/pkg/renderers/tui"
)

// Version set via ldflags during build
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "schoolwizard",
	Short:         "Create and edit school directory objects from the terminal",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default ./"+config.ProjectFile+" when present)")
	flags.String("transport", config.TransportNATS, "backend transport: nats or http")
	flags.String("nats-url", "", "NATS server URL")
	flags.String("subject-prefix", "", "NATS subject prefix")
	flags.String("endpoint", "", "HTTP endpoint base URL")
	flags.Duration("timeout", 0, "timeout for each backend call")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("log-human", false, "human readable logs")
	flags.String("school", "", "preselect this school")

	rootCmd.AddCommand(wizardCmd(orchestrator.WizardComputer, "Manage computers"))
	rootCmd.AddCommand(wizardCmd(orchestrator.WizardUser, "Manage users"))
	rootCmd.AddCommand(configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, tui.ErrAborted) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

func wizardCmd(name, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create new " + name + " objects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWizard(cmd, orchestrator.Request{Wizard: name})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "edit <dn>",
		Short: "Edit an existing " + name,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWizard(cmd, orchestrator.Request{Wizard: name, Target: args[0]})
		},
	})
	return cmd
}

func runWizard(cmd *cobra.Command, req orchestrator.Request) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	channel, closeChannel, err := schoolwizard.Dial(ctx, schoolwizard.TransportOptions{
		Transport:     cfg.Transport,
		NATSURL:       cfg.NATSURL,
		SubjectPrefix: cfg.SubjectPrefix,
		Endpoint:      cfg.Endpoint,
		Timeout:       cfg.Timeout,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer closeChannel()

	if cfg.School != "" && req.Target == "" {
		req.Values = model.Values{"school": cfg.School}
	}

	o := schoolwizard.NewOrchestrator(
		orchestrator.WithChannel(channel),
		orchestrator.WithLogger(logger),
		orchestrator.WithRunner(tui.New(tui.WithOutput(cmd.OutOrStdout()), tui.WithLogger(logger))),
	)
	summary, err := o.Run(ctx, req)
	if err != nil {
		return err
	}
	switch {
	case summary.Cancelled && summary.Created == 0:
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
	case summary.Created > 0:
		fmt.Fprintf(cmd.OutOrStdout(), "Created %d %s object(s).\n", summary.Created, req.Wizard)
	}
	return nil
}

func setup(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	logger, err := logging.New(logging.Options{
		Level:         cfg.LogLevel,
		HumanReadable: cfg.LogHuman,
	})
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or write the configuration",
}

func init() {
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "transport: %s\nnats_url: %s\nendpoint: %s\nsubject_prefix: %s\ntimeout: %s\nschool: %s\n",
				cfg.Transport, cfg.NATSURL, cfg.Endpoint, cfg.SubjectPrefix, cfg.Timeout, cfg.School)
			return nil
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the effective configuration to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			path := config.ProjectFile
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.Write(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	})
}
