package main

import (
	"context"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nestauk/discovery-genai/internal/builder"
	"github.com/nestauk/discovery-genai/internal/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /v1/generate with health and readiness probes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}

			ctx := cmd.Context()
			app, err := builder.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}

			gc, err := app.GeneratorConfig()
			if err != nil {
				return err
			}

			watcher := app.Watcher()
			inMemory := cfg.Vector.Backend != "qdrant"
			if cfg.Retrieval.Enabled && inMemory {
				if _, err := app.LoadCorpus(ctx, afero.NewOsFs()); err != nil {
					if watcher == nil {
						return err
					}
					// The watcher publishes once the file is fixed; until
					// then /readyz stays red.
					logger.Error("initial corpus load failed", zap.Error(err))
				}
			}

			health := server.NewHealthServer(version)
			health.RegisterReadiness("index", server.IndexHealthChecker(app.Handle, cfg.Retrieval.Enabled && inMemory))
			if app.Qdrant != nil {
				health.RegisterReadiness("qdrant", server.VectorStoreHealthChecker(app.Qdrant.Ping))
			}
			health.RegisterCheck("llm", server.LLMHealthChecker(app.Provider.Name(), app.Status.Check))

			srv := server.New(server.Config{
				Addr:           cfg.Server.Addr,
				ReadTimeout:    cfg.Server.ReadTimeout,
				WriteTimeout:   cfg.Server.WriteTimeout,
				RequestTimeout: cfg.Server.RequestTimeout,
			}, server.NewHandler(app.Generator, gc), health, logger.Named("http"))

			watchCtx, stopWatch := context.WithCancel(context.Background())
			defer stopWatch()
			if watcher != nil {
				go func() {
					if err := watcher.Run(watchCtx); err != nil {
						logger.Error("corpus watcher stopped", zap.Error(err))
					}
				}()
			}

			shutdown := server.NewShutdownHandler(&server.ShutdownConfig{
				Timeout: cfg.Server.ShutdownTimeout,
				Logger:  logger,
			})
			shutdown.Register(
				server.HTTPServerShutdownHook("http", srv.Shutdown),
				server.WatcherShutdownHook(stopWatch),
				server.TracingShutdownHook(app.Tracing.Shutdown),
				server.LoggerSyncHook(logger),
			)
			if app.Qdrant != nil {
				shutdown.Register(server.VectorStoreShutdownHook(app.Qdrant.Close))
			}
			shutdown.Start()

			if err := srv.ListenAndServe(); err != nil {
				shutdown.Shutdown()
				shutdown.Wait()
				return err
			}
			shutdown.Wait()
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default server.addr)")
	return cmd
}
