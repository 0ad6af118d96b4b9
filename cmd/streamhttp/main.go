// Command streamhttp sends every record of a stream to an HTTP endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/homemade/streamhttp/sink"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitConfigError  = 1
	ExitRuntimeError = 2
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, sink.ErrConfig) {
			os.Exit(ExitConfigError)
		}
		os.Exit(ExitRuntimeError)
	}
}

type rootFlags struct {
	configFiles []string
	envVar      string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:   "streamhttp",
		Short: "Send each record of a stream to an HTTP endpoint",
		Long: `streamhttp reads records from stdin, a file or NATS JetStream subjects and sends
each one, in order, as the body of one HTTP request. Query parameters can be
taken from fields of JSON records.

Examples:
  # Send newline-delimited records from stdin
  streamhttp run -c sink.yaml < records.jsonl

  # Layer an environment specific override on top of a base config
  streamhttp run -c sink.yaml -c sink.prod.yaml

  # Show the request template without sending anything
  streamhttp check -c sink.yaml`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringArrayVarP(&flags.configFiles, "config", "c", nil, "config file, may be repeated; later files override earlier ones")
	root.PersistentFlags().StringVar(&flags.envVar, "env-json", "", "env var holding a JSON object used to expand ${VAR} references")

	root.AddCommand(newRunCmd(&flags), newCheckCmd(&flags), newSendCmd(&flags))
	return root
}

func loadConfig(flags *rootFlags) (sink.Config, error) {
	var opts []sink.ConfigOption
	if flags.envVar != "" {
		opts = append(opts, sink.ConfigWithJSONEnvVar(flags.envVar))
	}
	return sink.LoadConfig(flags.configFiles, opts...)
}

func sinkOptions(config sink.Config, logger *zap.Logger, metrics *sink.Metrics) []sink.Option {
	opts := []sink.Option{sink.WithLogger(logger), sink.WithMetrics(metrics)}
	if config.RecordRequests != "" {
		opts = append(opts, sink.WithTemplateOptions(sink.TemplateWithRecordedRequests(config.RecordRequests)))
	}
	return opts
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Consume the configured source until it closes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger, err := sink.NewLogger(config.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, config, cmd.InOrStdin(), logger)
		},
	}
}

// run starts one sink per stream and returns once every stream has ended.
// Sinks share nothing but the metrics.
func run(ctx context.Context, config sink.Config, stdin io.Reader, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := sink.NewMetrics(reg)
	if err != nil {
		return err
	}

	var servers errgroup.Group
	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()
	if config.Metrics.Address != "" {
		serveMetrics(serveCtx, &servers, config.Metrics.Address, reg, logger)
	}

	g, ctx := errgroup.WithContext(ctx)

	switch config.Source.Type {
	case sink.SourceStdin, sink.SourceFile:
		r := stdin
		if config.Source.Type == sink.SourceFile {
			f, err := os.Open(config.Source.Path)
			if err != nil {
				return fmt.Errorf("failed to open source %w", err)
			}
			defer f.Close()
			r = f
		}
		s, err := sink.New(config.HTTP, sinkOptions(config, logger, metrics)...)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return s.Run(ctx, sink.NewLineSource(r))
		})

	case sink.SourceNATS:
		nc, err := nats.Connect(config.Source.URL, nats.Name("streamhttp"))
		if err != nil {
			return fmt.Errorf("failed to connect to nats %w", err)
		}
		defer nc.Close()
		js, err := jetstream.New(nc)
		if err != nil {
			return fmt.Errorf("failed to open jetstream %w", err)
		}
		for _, subject := range config.Source.Subjects {
			src, err := sink.NewNATSSource(ctx, js, config.Source.Stream, subject, config.Source.Durable)
			if err != nil {
				return err
			}
			s, err := sink.New(config.HTTP, sinkOptions(config, logger.With(zap.String("subject", src.Subject())), metrics)...)
			if err != nil {
				return err
			}
			g.Go(func() error {
				return s.Run(ctx, src)
			})
		}
	}

	err = g.Wait()
	stopServing()
	return errors.Join(err, servers.Wait())
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		logger.Info("serving metrics", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func newCheckCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Build the request template and print it without sending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig(flags)
			if err != nil {
				return err
			}
			s, err := sink.New(config.HTTP)
			if err != nil {
				return err
			}
			req, err := s.State().Template.Request(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", req.Method, req.URL)
			if err = req.Header.Write(out); err != nil {
				return err
			}
			for _, p := range s.State().Parameters {
				fmt.Fprintf(out, "param %s <- %s\n", p.QueryKey(), p.RecordKey)
			}
			return nil
		},
	}
}

func newSendCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "send <record>...",
		Short: "Send the given records, in order, and report each status",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger, err := sink.NewLogger(config.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			s, err := sink.New(config.HTTP, sinkOptions(config, logger, nil)...)
			if err != nil {
				return err
			}
			state := s.State()
			for i, record := range args {
				var outcome sink.Outcome
				state, outcome, err = s.Process(cmd.Context(), state, record)
				if err != nil {
					return fmt.Errorf("record %d: %w", i+1, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", i+1, outcome.Status)
			}
			return nil
		},
	}
}
