package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/NicoNav/igsaw-puzzle-app/internal/comfy"
	"github.com/NicoNav/igsaw-puzzle-app/internal/http/handlers"
	httpapi "github.com/NicoNav/igsaw-puzzle-app/internal/http/httpapi"
	"github.com/NicoNav/igsaw-puzzle-app/internal/infra"
	"github.com/NicoNav/igsaw-puzzle-app/internal/puzzle"
	"github.com/NicoNav/igsaw-puzzle-app/internal/vision"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	templateData, err := os.ReadFile(cfg.TemplatePath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.TemplatePath).Msg("failed to read workflow template")
	}
	template, err := comfy.ParseGraph(templateData)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.TemplatePath).Msg("failed to parse workflow template")
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	comfyClient := comfy.NewClient(comfy.Options{
		BaseURL:      cfg.ComfyBaseURL,
		HTTPClient:   httpClient,
		Logger:       &logger,
		PollInterval: cfg.PollInterval,
		PollTimeout:  cfg.PollTimeout,
	})
	visionClient := vision.NewClient(vision.Options{
		BaseURL: cfg.OllamaBaseURL,
		Model:   cfg.OllamaModel,
		Logger:  &logger,
	})

	wsBaseURL := cfg.ComfyWSBaseURL
	if wsBaseURL == "" {
		wsBaseURL = cfg.ComfyBaseURL
	}
	generator, err := puzzle.NewGenerator(puzzle.Options{
		Client:   comfyClient,
		Template: template,
		Bindings: comfy.Bindings{
			LoadImageNode:      "load_image",
			PositivePromptNode: "positive_prompt",
			NegativePromptNode: "negative_prompt",
			SamplerNode:        "sampler",
		},
		Dialer:      comfy.NewWebsocketDialer(wsBaseURL),
		CaptureNode: cfg.CaptureNodeID,
		Logger:      &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure generator")
	}

	app := handlers.NewApp(logger, comfyClient, visionClient, generator, puzzle.NewBatchStore(generator))
	router := httpapi.NewRouter(app, cfg.AllowedOrigins)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
