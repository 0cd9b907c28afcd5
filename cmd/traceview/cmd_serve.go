package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/panoptic/traceview/internal/history"
	"github.com/panoptic/traceview/internal/projectconfig"
	"github.com/panoptic/traceview/internal/render"
	"github.com/panoptic/traceview/internal/webserver"
)

func newServeCommand() *cobra.Command {
	var port int
	var dataDir string
	var backend string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the trace aggregation API over HTTP",
		Long: `Serve the trace aggregation API over HTTP.

Settings come from .traceview.yaml (found by walking up from the current
directory); flags override the file. With the default file backend,
transcripts live as compressed JSON under the configured data directory.
With --backend dynamo they are stored in a DynamoDB table.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := projectconfig.Load(".")
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if dataDir != "" {
				cfg.Storage.Dir = dataDir
			}
			if backend != "" {
				cfg.Storage.Backend = backend
			}

			return runServe(cmd, cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (overrides config)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Transcript directory for the file backend")
	cmd.Flags().StringVar(&backend, "backend", "", "Storage backend: file | dynamo")

	return cmd
}

func runServe(cmd *cobra.Command, cfg *projectconfig.ProjectConfig) error {
	logger := slog.Default()

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	var signer render.Signer
	if cfg.Render.SignImageURL != nil && *cfg.Render.SignImageURL {
		sess, err := awssession.NewSession(&aws.Config{Region: aws.String(cfg.Render.ImageRegion)})
		if err != nil {
			return fmt.Errorf("creating AWS session: %w", err)
		}
		signer = render.NewS3Signer(sess, time.Duration(cfg.Render.ImageURLTTL)*time.Second)
	}

	srv, err := webserver.New(webserver.Config{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
		History:        store,
		Renderer:       render.New(signer),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})
	return g.Wait()
}

// buildStore creates the transcript store named by the config.
func buildStore(cfg *projectconfig.ProjectConfig) (history.Store, error) {
	switch cfg.Storage.Backend {
	case "file", "":
		return history.NewFileStore(cfg.Storage.Dir), nil
	case "dynamo":
		sess, err := awssession.NewSession(&aws.Config{Region: aws.String(cfg.Storage.Region)})
		if err != nil {
			return nil, fmt.Errorf("creating AWS session: %w", err)
		}
		return history.NewDynamoStore(sess, cfg.Storage.Table), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want file or dynamo)", cfg.Storage.Backend)
	}
}
