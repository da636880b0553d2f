package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"genforge-gateway/internal/content"
	"genforge-gateway/pkg/logging/logging"
)

// Narrative handles POST /generate/narrative.
func (h *Handler) Narrative(w http.ResponseWriter, r *http.Request) {
	req := content.DefaultNarrativeRequest()
	if !h.decode(w, r, &req) {
		return
	}

	start := time.Now()
	rec, err := h.pipe.Narrative(r.Context(), req)
	if err != nil {
		fail(w, r, "narrative", err)
		return
	}

	logging.L(r.Context()).Info("narrative served",
		zap.Int("room_index", req.RoomIndex),
		zap.Int64("seed", req.Seed),
		zap.Duration("total_latency_ms", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, rec)
}

// DungeonContent handles POST /generate/dungeon-content. It always answers
// with content; generation failures are covered by the seeded fallback.
func (h *Handler) DungeonContent(w http.ResponseWriter, r *http.Request) {
	req := content.DefaultDungeonRequest()
	if !h.decode(w, r, &req) {
		return
	}

	start := time.Now()
	rec := h.pipe.Dungeon(r.Context(), req)

	logging.L(r.Context()).Info("dungeon content served",
		zap.Int("rooms", len(req.Rooms)),
		zap.Int64("seed", req.Seed),
		zap.Duration("total_latency_ms", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, rec)
}

// Music handles POST /generate/music.
func (h *Handler) Music(w http.ResponseWriter, r *http.Request) {
	if !h.pipe.Features().Music {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: "Music model is disabled. Set ENABLE_MUSIC=true to enable."})
		return
	}

	req := content.DefaultMusicRequest()
	if !h.decode(w, r, &req) {
		return
	}

	art, err := h.pipe.Music(r.Context(), req)
	if err != nil {
		fail(w, r, "music", err)
		return
	}
	writeJSON(w, http.StatusOK, art)
}

// Vision handles POST /analyze/vision with a multipart "file" field and an
// optional "use_cache" form value (default true).
func (h *Handler) Vision(w http.ResponseWriter, r *http.Request) {
	if !h.pipe.Features().Vision {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: "Vision model is disabled. Set ENABLE_VISION=true to enable."})
		return
	}

	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "expected a multipart form with a file field"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "missing file field"})
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		fail(w, r, "vision upload", err)
		return
	}
	if len(image) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "file is empty"})
		return
	}

	useCache := true
	if v := r.FormValue("use_cache"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "use_cache must be a boolean"})
			return
		}
		useCache = b
	}

	rec, err := h.pipe.Vision(r.Context(), image, useCache)
	if err != nil {
		fail(w, r, "vision", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
