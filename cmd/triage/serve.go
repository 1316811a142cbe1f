// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/AleutianAI/AleutianTriage/pkg/logging"
	"github.com/AleutianAI/AleutianTriage/services/triage/analysisstore"
	"github.com/AleutianAI/AleutianTriage/services/triage/collab"
	"github.com/AleutianAI/AleutianTriage/services/triage/config"
	"github.com/AleutianAI/AleutianTriage/services/triage/embed"
	"github.com/AleutianAI/AleutianTriage/services/triage/pipeline"
	"github.com/AleutianAI/AleutianTriage/services/triage/ratelimit"
	"github.com/AleutianAI/AleutianTriage/services/triage/routes"
	storage "github.com/AleutianAI/AleutianTriage/services/triage/storage/badger"
	"github.com/AleutianAI/AleutianTriage/services/triage/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the triage HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func initTracer(ctx context.Context, endpoint string) (func(context.Context), error) {
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("triage-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newVectorStore selects the vector backend. Weaviate is used when a
// valid URL is configured; otherwise the embedded badger store serves
// both the counters and the embeddings.
func newVectorStore(ctx context.Context, weaviateURL string, db *storage.DB) (vectorstore.Store, error) {
	weaviateURL = strings.Trim(weaviateURL, "\"' ")
	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("WEAVIATE_SERVICE_URL not set. Running on the embedded vector store.")
		return vectorstore.NewBadgerStore(db), nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid. Running on the embedded vector store.",
			"url", weaviateURL, "error", err)
		return vectorstore.NewBadgerStore(db), nil
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	store := vectorstore.NewWeaviateStore(client)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure weaviate schema: %w", err)
	}
	slog.Info("Using weaviate vector store", "host", parsedURL.Host)
	return store, nil
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(logLevel),
		Service: "triage",
	})
	defer logger.Close()
	logger.SetDefault()

	if cfg.OTLPEndpoint != "" {
		cleanup, err := initTracer(ctx, cfg.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("setup OTLP tracer: %w", err)
		}
		defer cleanup(context.Background())
	}

	dbCfg := storage.DefaultConfig()
	dbCfg.Path = cfg.DataDir
	dbCfg.Logger = logger.Slog()
	db, err := storage.OpenDB(dbCfg)
	if err != nil {
		return fmt.Errorf("open storage at %s: %w", cfg.DataDir, err)
	}
	defer db.Close()

	vectors, err := newVectorStore(ctx, cfg.WeaviateURL, db)
	if err != nil {
		return err
	}

	var embedder embed.Provider
	if cfg.OpenAIAPIKey != "" {
		embedder = embed.NewOpenAIProvider(cfg.OpenAIAPIKey, "")
	} else {
		slog.Warn("OPENAI_API_KEY not set. Every item will be triaged in degraded mode.")
		embedder = embed.UnavailableProvider{}
	}

	watcher, err := config.NewPolicyWatcher(cfg.PolicyPath)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}

	platform := collab.NewHTTPClient(cfg.CollabBaseURL, cfg.CollabToken)
	p := pipeline.New(pipeline.Deps{
		Vectors:  vectors,
		Analyses: analysisstore.New(db),
		Limiter:  ratelimit.New(db),
		Embedder: embedder,
		Labels:   platform,
		Comments: platform,
		Policy:   watcher.Current,
		Logger:   logger.Slog(),
	})

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("triage-service"))
	routes.SetupRoutes(router, p, cfg.WebhookSecret)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		watcher.Start(ctx)
		return nil
	})
	group.Go(func() error {
		slog.Info("Starting triage server", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = group.Wait()
	slog.Info("Triage server stopped")
	return err
}
