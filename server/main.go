package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/user0608/subjectcrop"
)

func main() {

	cfg := LoadConfig()
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		panic(err)
	}

	registry := subjectcrop.NewRegistry(subjectcrop.ModelConfig{
		RuntimeLib: cfg.RuntimeLib,
		ModelDir:   cfg.ModelDir,
		Threads:    cfg.Threads,
	}, nil)
	defer registry.Close()

	engine := subjectcrop.NewEngine(registry, &subjectcrop.Options{
		InferenceTimeout: cfg.InferenceTimeout,
	})

	e := echo.New()
	e.Logger.SetLevel(log.INFO)
	e.HideBanner = true

	h := &CropHandler{Engine: engine, OutputDir: cfg.OutputDir}

	e.GET("/", func(c echo.Context) error { return c.JSON(http.StatusOK, "OK") })
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	e.POST("/crop", h.Crop)
	e.POST("/batchcrop", h.BatchCrop)
	e.Static("/outputs", cfg.OutputDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}
}
