package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/NicoNav/igsaw-puzzle-app/internal/domain"
)

// StartBatchRequest is the UI's multi-subject generation request. Each
// subject becomes one puzzle piece tracked end-to-end.
type StartBatchRequest struct {
	ImageFilename string              `json:"image_filename"`
	Pieces        []StartPieceRequest `json:"pieces"`
}

type StartPieceRequest struct {
	ID        int    `json:"id"`
	SubjectID int    `json:"subject_id"`
	Prompt    string `json:"prompt"`
}

// StartBatch launches a generation batch and returns its id. The run
// continues after this request: callers poll BatchStatus for progress.
func (a *App) StartBatch(w http.ResponseWriter, r *http.Request) {
	var req StartBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ImageFilename) == "" {
		a.jsonError(w, http.StatusBadRequest, "image_filename is required")
		return
	}

	pieces := make([]domain.Piece, len(req.Pieces))
	for i, p := range req.Pieces {
		pieces[i] = domain.Piece{
			ID:        p.ID,
			SubjectID: p.SubjectID,
			Prompt:    p.Prompt,
			Status:    domain.PieceStatusPending,
		}
	}

	// The batch outlives this request's context.
	id, err := a.Batches.Start(context.Background(), pieces, req.ImageFilename)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyBatch) {
			a.jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.Logger.Error().Err(err).Msg("handlers: start batch failed")
		a.jsonError(w, http.StatusInternalServerError, "failed to start batch")
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{"batch_id": id})
}

// BatchStatus returns a snapshot of a running or finished batch.
func (a *App) BatchStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	batch, err := a.Batches.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrBatchNotFound) {
			a.jsonError(w, http.StatusNotFound, err.Error())
			return
		}
		a.Logger.Error().Err(err).Str("batch_id", id).Msg("handlers: batch lookup failed")
		a.jsonError(w, http.StatusInternalServerError, "failed to load batch")
		return
	}
	a.json(w, http.StatusOK, batch)
}
