package handlers

import "github.com/go-chi/chi/v5"

// Routes mounts the generation API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Status)

	r.Route("/generate", func(r chi.Router) {
		r.Post("/narrative", h.Narrative)
		r.Post("/dungeon-content", h.DungeonContent)
		r.Post("/music", h.Music)
	})
	r.Post("/analyze/vision", h.Vision)

	r.Get("/cache/stats", h.CacheStats)
	r.Post("/cache/clear", h.ClearCache)

	r.Get("/audio/{filename}", h.Audio)
	r.Get("/voice/{filename}", h.Voice)
}
