package handlers

import (
	"net/http"
)

const maxUploadBytes = 32 << 20

// UploadImage forwards the UI's source photo to the graph-execution
// service's input storage and returns the filename templates can reference.
func (a *App) UploadImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.jsonError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		a.jsonError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	result, err := a.Comfy.UploadImage(r.Context(), header.Filename, file)
	if err != nil {
		a.Logger.Error().Err(err).Str("filename", header.Filename).Msg("handlers: image upload failed")
		a.jsonError(w, http.StatusBadGateway, "upload to generation service failed")
		return
	}
	a.json(w, http.StatusOK, result)
}

// Interrupt aborts the generation service's currently-executing job.
func (a *App) Interrupt(w http.ResponseWriter, r *http.Request) {
	if err := a.Comfy.Interrupt(r.Context()); err != nil {
		a.Logger.Error().Err(err).Msg("handlers: interrupt failed")
		a.jsonError(w, http.StatusBadGateway, "interrupt failed")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "interrupted"})
}

// QueueState reports the generation service's running and pending queue.
func (a *App) QueueState(w http.ResponseWriter, r *http.Request) {
	state, err := a.Comfy.QueueState(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: queue lookup failed")
		a.jsonError(w, http.StatusBadGateway, "queue lookup failed")
		return
	}
	a.json(w, http.StatusOK, map[string]int{
		"running": len(state.Running),
		"pending": len(state.Pending),
	})
}
