package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

// AnalyzeRequest carries a base64 image and an instruction prompt for the
// vision model.
type AnalyzeRequest struct {
	Prompt string `json:"prompt"`
	Image  string `json:"image"`
	Model  string `json:"model,omitempty"`
}

// Analyze asks the vision/language service to describe the uploaded photo.
// An optional model override binds a fresh client value for this call only.
func (a *App) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	imageData, err := base64.StdEncoding.DecodeString(strings.TrimSpace(req.Image))
	if err != nil || len(imageData) == 0 {
		a.jsonError(w, http.StatusBadRequest, "image must be non-empty base64")
		return
	}

	client := a.Vision
	if req.Model != "" {
		client = client.WithModel(req.Model)
	}
	description, err := client.AnalyzeImage(r.Context(), req.Prompt, imageData)
	if err != nil {
		a.Logger.Error().Err(err).Str("model", client.Model()).Msg("handlers: image analysis failed")
		a.jsonError(w, http.StatusBadGateway, "image analysis failed")
		return
	}
	a.json(w, http.StatusOK, map[string]string{
		"model":       client.Model(),
		"description": description,
	})
}

// Models lists the vision service's available models.
func (a *App) Models(w http.ResponseWriter, r *http.Request) {
	models, err := a.Vision.ListModels(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: model listing failed")
		a.jsonError(w, http.StatusBadGateway, "model listing failed")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"models": models})
}
