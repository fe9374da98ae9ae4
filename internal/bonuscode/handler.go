// AngelaMos | 2026
// handler.go

package bonuscode

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterAdminRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin/bonus-codes", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Delete("/{codeID}", h.Delete)
	})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	code, err := h.service.Create(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidInput):
			core.BadRequest(w, err.Error())
		case errors.Is(err, ErrCodeCollision):
			core.JSONError(w, core.DuplicateError("code"))
		default:
			core.InternalServerError(w, err)
		}
		return
	}

	core.Created(w, ToCodeResponse(code))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	codes, err := h.service.List(r.Context())
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, ToCodeResponseList(codes))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	codeID := chi.URLParam(r, "codeID")
	if _, err := uuid.Parse(codeID); err != nil {
		core.NotFound(w, "bonus code")
		return
	}

	if err := h.service.Delete(r.Context(), codeID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "bonus code")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.NoContent(w)
}
