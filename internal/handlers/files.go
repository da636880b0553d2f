package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Audio handles GET /audio/{filename} from the music directory.
func (h *Handler) Audio(w http.ResponseWriter, r *http.Request) {
	h.serveWAV(w, r, h.cfg.MusicDir, "Audio file not found")
}

// Voice handles GET /voice/{filename} from the voice directory.
func (h *Handler) Voice(w http.ResponseWriter, r *http.Request) {
	h.serveWAV(w, r, h.cfg.VoiceDir, "Voice file not found")
}

func (h *Handler) serveWAV(w http.ResponseWriter, r *http.Request, dir, notFound string) {
	name := chi.URLParam(r, "filename")
	if dir == "" || !safeFileName(name) {
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: notFound})
		return
	}

	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: notFound})
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, path)
}

// safeFileName accepts plain names only, so a request can never leave the
// served directory.
func safeFileName(name string) bool {
	return name != "" &&
		name == filepath.Base(name) &&
		!strings.HasPrefix(name, ".") &&
		!strings.ContainsAny(name, `/\`)
}
