package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/NicoNav/igsaw-puzzle-app/internal/domain"
)

// StreamPieceRequest generates one piece through a workflow whose output node
// streams the image over the event channel. The response body is the raw
// image, not JSON.
type StreamPieceRequest struct {
	ID            int    `json:"id"`
	SubjectID     int    `json:"subject_id"`
	Prompt        string `json:"prompt"`
	ImageFilename string `json:"image_filename"`
}

// StreamPiece runs a single streaming generation and writes the first
// captured image back to the caller.
func (a *App) StreamPiece(w http.ResponseWriter, r *http.Request) {
	var req StreamPieceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ImageFilename) == "" {
		a.jsonError(w, http.StatusBadRequest, "image_filename is required")
		return
	}

	piece := domain.Piece{ID: req.ID, SubjectID: req.SubjectID, Prompt: req.Prompt}
	images, err := a.Generator.GenerateStream(r.Context(), piece, req.ImageFilename)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoArtifacts):
			a.jsonError(w, http.StatusBadGateway, err.Error())
		case errors.Is(err, domain.ErrAmbiguousCompletion):
			a.jsonError(w, http.StatusBadGateway, err.Error())
		default:
			a.Logger.Error().Err(err).Int("piece_id", piece.ID).Msg("handlers: streaming generation failed")
			a.jsonError(w, http.StatusBadGateway, "generation failed")
		}
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(images[0])
}
