package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/NicoNav/igsaw-puzzle-app/internal/comfy"
	"github.com/NicoNav/igsaw-puzzle-app/internal/infra"
	"github.com/NicoNav/igsaw-puzzle-app/internal/puzzle"
	"github.com/NicoNav/igsaw-puzzle-app/internal/vision"
)

// App bundles the dependencies the HTTP handlers share.
type App struct {
	Logger    infra.Logger
	Comfy     *comfy.Client
	Vision    *vision.Client
	Generator *puzzle.Generator
	Batches   *puzzle.BatchStore
}

func NewApp(logger infra.Logger, comfyClient *comfy.Client, visionClient *vision.Client, generator *puzzle.Generator, batches *puzzle.BatchStore) *App {
	return &App{
		Logger:    logger,
		Comfy:     comfyClient,
		Vision:    visionClient,
		Generator: generator,
		Batches:   batches,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) jsonError(w http.ResponseWriter, code int, message string) {
	a.json(w, code, map[string]string{"error": message})
}
