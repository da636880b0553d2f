package handlers

import (
	"net/http"

	"genforge-gateway/internal/cache"
)

// CacheStats is the wire form of cache.Stats.
type CacheStats struct {
	NarrativeCount int `json:"narrative_count"`
	MusicCount     int `json:"music_count"`
	VisionCount    int `json:"vision_count"`
	DungeonCount   int `json:"dungeon_count"`
	TotalEntries   int `json:"total_entries"`
}

func toCacheStats(s cache.Stats) CacheStats {
	return CacheStats{
		NarrativeCount: s[cache.NamespaceNarrative],
		MusicCount:     s[cache.NamespaceMusic],
		VisionCount:    s[cache.NamespaceVision],
		DungeonCount:   s[cache.NamespaceDungeon],
		TotalEntries:   s.Total(),
	}
}

type statusResponse struct {
	Status     string     `json:"status"`
	Services   []string   `json:"services"`
	Models     ModelNames `json:"models"`
	CacheStats CacheStats `json:"cache_stats"`
}

// Status handles GET /.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	stats, err := h.pipe.CacheStats(r.Context())
	if err != nil {
		fail(w, r, "cache stats", err)
		return
	}

	services := []string{"narrative", "dungeon"}
	features := h.pipe.Features()
	if features.Music {
		services = append(services, "music")
	}
	if features.Voice {
		services = append(services, "voice")
	}
	if features.Vision {
		services = append(services, "vision")
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:     "online",
		Services:   services,
		Models:     h.cfg.Models,
		CacheStats: toCacheStats(stats),
	})
}

// CacheStats handles GET /cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.pipe.CacheStats(r.Context())
	if err != nil {
		fail(w, r, "cache stats", err)
		return
	}
	writeJSON(w, http.StatusOK, toCacheStats(stats))
}

type clearResponse struct {
	Message string     `json:"message"`
	Stats   CacheStats `json:"stats"`
}

// ClearCache handles POST /cache/clear.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.pipe.ClearCache(r.Context()); err != nil {
		fail(w, r, "cache clear", err)
		return
	}
	stats, err := h.pipe.CacheStats(r.Context())
	if err != nil {
		fail(w, r, "cache stats", err)
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{Message: "Cache cleared", Stats: toCacheStats(stats)})
}
