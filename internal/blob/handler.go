// AngelaMos | 2026
// handler.go

package blob

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
)

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the public download route. Blobs are addressable by
// anyone holding the URL, matching how profile photos are embedded.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/blobs/*", h.Download)
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	p := chi.URLParam(r, "*")

	obj, err := h.store.Get(r.Context(), p)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidPath), errors.Is(err, core.ErrNotFound):
			core.NotFound(w, "blob")
		case errors.Is(err, core.ErrStorageUnavailable):
			core.JSONError(w, core.StorageUnavailableError())
		default:
			core.InternalServerError(w, err)
		}
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", obj.ContentType)
	hdr.Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	hdr.Set("Cache-Control", "public, max-age=300")
	hdr.Set("Last-Modified", obj.UpdatedAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)

	//nolint:errcheck // client may disconnect mid-download
	_, _ = w.Write(obj.Data)
}
