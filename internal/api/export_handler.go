package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-aligner/internal/export"
)

func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		frameRate := export.DefaultFrameRate
		if fps := r.URL.Query().Get("fps"); fps != "" {
			v, err := strconv.ParseFloat(fps, 64)
			if err != nil || v <= 0 || v > 120 {
				WriteError(w, http.StatusBadRequest, "fps must be a number between 0 and 120", "BAD_REQUEST")
				return
			}
			frameRate = v
		}

		out, err := cfg.Service.GetResult(r.Context(), id)
		if err != nil {
			writeResultError(w, err)
			return
		}
		if out == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		title := export.SanitizeName(r.URL.Query().Get("title"), 80)
		if title == "" {
			title = "aligner_" + id
			if len(id) > 8 {
				title = "aligner_" + id[:8]
			}
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", title+".edl"))
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, export.GenerateEDL(out.Segments, title, frameRate))
	}
}
