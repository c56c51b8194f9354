package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/NicoNav/igsaw-puzzle-app/internal/http/handlers"
	"github.com/NicoNav/igsaw-puzzle-app/internal/middleware"
)

func NewRouter(app *handlers.App, allowedOrigins []string) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimiddleware.RealIP, chimiddleware.Recoverer)
	r.Use(middleware.Logger(app.Logger))
	r.Use(middleware.CORS(allowedOrigins))

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/images", func(r chi.Router) {
		r.Post("/upload", app.UploadImage)
		r.Post("/analyze", app.Analyze)
	})

	r.Post("/v1/pieces/stream", app.StreamPiece)

	r.Route("/v1/batches", func(r chi.Router) {
		r.Post("/", app.StartBatch)
		r.Get("/{id}", app.BatchStatus)
	})

	r.Get("/v1/models", app.Models)
	r.Get("/v1/queue", app.QueueState)
	r.Post("/v1/interrupt", app.Interrupt)

	return r
}
