package api

import (
	"context"
	"net/http"
	"time"

	"github.com/clipfab/shorts-api/config"
	"github.com/clipfab/shorts-api/handlers"
	"github.com/clipfab/shorts-api/log"
	"github.com/clipfab/shorts-api/middleware"
	"github.com/clipfab/shorts-api/pipeline"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func ListenAndServe(ctx context.Context, addr, apiToken string, coordinator *pipeline.Coordinator, outputsDir string) error {
	router := NewShortsAPIRouter(coordinator, apiToken, outputsDir)
	server := http.Server{Addr: addr, Handler: router}
	ctx, cancel := context.WithCancel(ctx)

	log.LogNoJobID(
		"Starting Shorts API!",
		"version", config.Version,
		"host", addr,
	)

	var err error
	go func() {
		err = server.ListenAndServe()
		cancel()
	}()

	<-ctx.Done()
	if err != nil {
		return err
	}

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func NewShortsAPIRouter(coordinator *pipeline.Coordinator, apiToken, outputsDir string) *httprouter.Router {
	router := httprouter.New()
	withLogging := middleware.LogRequest()
	withAuth := middleware.IsAuthorized

	apiHandlers := &handlers.ShortsAPIHandlersCollection{Coordinator: coordinator, OutputsDir: outputsDir}

	// Unauthenticated service endpoints
	router.GET("/ok", withLogging(apiHandlers.Ok()))
	router.GET("/healthz", withLogging(apiHandlers.Healthz()))
	router.GET("/version", withLogging(apiHandlers.Version()))
	router.Handler("GET", "/metrics", promhttp.Handler())

	// Job API
	router.POST("/jobs", withLogging(withAuth(apiToken, apiHandlers.CreateJob())))
	router.GET("/jobs/:id", withLogging(withAuth(apiToken, apiHandlers.GetJob())))
	router.POST("/jobs/:id/retry", withLogging(withAuth(apiToken, apiHandlers.RetryJob())))

	// Clip downloads for deployments without a drive bucket
	router.GET("/download/:filename", withLogging(withAuth(apiToken, apiHandlers.Download())))

	return router
}
