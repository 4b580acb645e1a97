package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-schoolwizard/internal/backend"
	"github.com/goliatone/go-schoolwizard/internal/config"
	"github.com/goliatone/go-schoolwizard/internal/logging"
	"github.com/goliatone/go-schoolwizard/pkg/remote/httprpc"
	"github.com/goliatone/go-schoolwizard/pkg/remote/natsrpc"
)

// Version set via ldflags during build
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "schoolwizard-backend",
	Short:         "Serve a sqlite backed school directory for the wizards",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the embedded NATS server and answer wizard commands",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default ./"+config.ProjectFile+" when present)")
	flags.String("database", "", "sqlite database path")
	flags.String("seed", "", "seed file applied on start (built-in demo data when empty)")
	flags.String("listen", "", "NATS listen address host:port")
	flags.String("subject-prefix", "", "NATS subject prefix")
	flags.String("http-addr", "", "also serve commands over HTTP on this address")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("log-human", false, "human readable logs")

	rootCmd.AddCommand(serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, HumanReadable: cfg.LogHuman})
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	opts, err := serverOptions(cfg.Listen)
	if err != nil {
		return err
	}
	ns, err := natsrpc.StartServer(opts, 5*time.Second)
	if err != nil {
		return err
	}
	conn, err := natsrpc.ConnectInProcess(ns)
	if err != nil {
		ns.Shutdown()
		return err
	}
	defer natsrpc.Shutdown(conn, ns)

	mux := backend.NewService(store, logger).Mux()
	sub, err := natsrpc.Serve(ctx, conn, mux,
		natsrpc.WithPrefix(cfg.SubjectPrefix),
		natsrpc.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer func() { _ = sub.Unsubscribe() }()
	logger.Info().Str("url", ns.ClientURL()).Str("prefix", cfg.SubjectPrefix).Msg("backend listening")

	g, gctx := errgroup.WithContext(ctx)
	if cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           httprpc.Handler(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		return nil
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*backend.Store, error) {
	store, err := backend.Open(ctx, cfg.Database, backend.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	seed, err := backend.LoadSeed(cfg.Seed)
	if err == nil {
		err = store.Apply(ctx, seed)
	}
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func serverOptions(listen string) (*server.Options, error) {
	host, portText, err := net.SplitHostPort(listen)
	if err != nil {
		return nil, fmt.Errorf("listen address %q: %w", listen, err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return nil, fmt.Errorf("listen port %q: %w", portText, err)
	}
	return &server.Options{
		ServerName: "schoolwizard-backend",
		Host:       host,
		Port:       port,
		NoSigs:     true,
		NoLog:      true,
	}, nil
}
