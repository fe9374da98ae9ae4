// AngelaMos | 2026
// handler.go

package user

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/role"
)

// EntitlementAdmin applies privileged role and status changes.
type EntitlementAdmin interface {
	AdminUpdate(
		ctx context.Context,
		userID string,
		upd EntitlementUpdate,
	) (*Record, error)
	Ban(ctx context.Context, userID string) (*Record, error)
}

type Handler struct {
	service     *Service
	entitlement EntitlementAdmin
	validator   *validator.Validate
}

func NewHandler(service *Service, entitlement EntitlementAdmin) *Handler {
	return &Handler{
		service:     service,
		entitlement: entitlement,
		validator:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterAdminRoutes registers back-office user management endpoints.
func (h *Handler) RegisterAdminRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin/users", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/", h.ListUsers)
		r.Get("/{userID}", h.GetUser)
		r.Put("/{userID}/entitlement", h.UpdateEntitlement)
		r.Post("/{userID}/ban", h.BanUser)
	})
}

// ListUsers returns a paginated list of users with optional filtering.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	params := ListUsersParams{
		Page:     parseIntQuery(r, "page", 1),
		PageSize: parseIntQuery(r, "page_size", 20),
		Search:   r.URL.Query().Get("search"),
		Role:     r.URL.Query().Get("role"),
		Status:   r.URL.Query().Get("status"),
	}
	params.Normalize()

	records, total, err := h.service.ListUsers(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}

	core.Paginated(
		w,
		ToUserResponseList(records),
		params.Page,
		params.PageSize,
		int64(total),
	)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	rec, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, ToUserResponse(rec))
}

// UpdateEntitlement overwrites role, status and expiration. A null
// role_expires_at makes the grant permanent.
func (h *Handler) UpdateEntitlement(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req UpdateEntitlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	rec, err := h.entitlement.AdminUpdate(r.Context(), userID, EntitlementUpdate{
		Role:          role.Role(req.Role),
		Status:        Status(req.Status),
		RoleExpiresAt: req.RoleExpiresAt,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, ToUserResponse(rec))
}

func (h *Handler) BanUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	rec, err := h.entitlement.Ban(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, ToUserResponse(rec))
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "user")
	case errors.Is(err, core.ErrForbidden):
		core.Forbidden(w, "admins cannot be banned")
	case errors.Is(err, core.ErrInvalidInput),
		errors.Is(err, role.ErrUnknownRole),
		errors.Is(err, ErrUnknownStatus):
		core.BadRequest(w, err.Error())
	case errors.Is(err, core.ErrStorageUnavailable):
		core.JSONError(w, core.StorageUnavailableError())
	default:
		core.InternalServerError(w, err)
	}
}

func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}

	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return parsed
}
