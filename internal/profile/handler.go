// AngelaMos | 2026
// handler.go

package profile

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/blob"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/entitlement"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/identity"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/session"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/user"
)

const photoField = "photo"

type Redeemer interface {
	Redeem(ctx context.Context, code, userID string) (*entitlement.Grant, error)
}

type UserReader interface {
	GetUser(ctx context.Context, id string) (*user.Record, error)
}

type Handler struct {
	users          UserReader
	redeemer       Redeemer
	maxUploadBytes int64
	validator      *validator.Validate
}

func NewHandler(users UserReader, redeemer Redeemer, maxUploadBytes int64) *Handler {
	return &Handler{
		users:          users,
		redeemer:       redeemer,
		maxUploadBytes: maxUploadBytes,
		validator:      validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes mounts /me. redeemLimit throttles redemption attempts per
// user so codes cannot be brute-forced.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	redeemLimit func(http.Handler) http.Handler,
	mw ...func(http.Handler) http.Handler,
) {
	r.Route("/me", func(r chi.Router) {
		r.Use(mw...)

		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Put("/photo", h.UploadPhoto)
		r.With(redeemLimit).Post("/redeem", h.Redeem)
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	snap := session.FromContext(r.Context()).Snapshot()
	if snap.CurrentUser == nil {
		core.Unauthorized(w, "not authenticated")
		return
	}

	rec, err := h.users.GetUser(r.Context(), snap.CurrentUser.UID)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, MeResponse{User: user.ToUserResponse(rec), Session: snap})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	sess := session.FromContext(r.Context())
	rec, err := sess.UpdateProfile(r.Context(), req.Changes(), nil)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, MeResponse{User: user.ToUserResponse(rec), Session: sess.Snapshot()})
}

func (h *Handler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile(photoField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			core.JSONError(w, core.NewAppError(err, "photo is too large",
				http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"))
			return
		}
		core.BadRequest(w, "multipart field \"photo\" is required")
		return
	}
	defer file.Close() //nolint:errcheck // read-only upload

	data, err := io.ReadAll(file)
	if err != nil {
		core.BadRequest(w, "could not read photo")
		return
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		core.BadRequest(w, "photo must be an image")
		return
	}

	sess := session.FromContext(r.Context())
	rec, err := sess.UpdateProfile(r.Context(), session.ProfileChanges{}, &session.Photo{
		Name:        header.Filename,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, MeResponse{User: user.ToUserResponse(rec), Session: sess.Snapshot()})
}

// Redeem applies a bonus code and re-resolves the session so the new role
// is visible in the same response.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	sess := session.FromContext(r.Context())
	snap := sess.Snapshot()
	if snap.CurrentUser == nil {
		core.Unauthorized(w, "not authenticated")
		return
	}

	grant, err := h.redeemer.Redeem(r.Context(), req.Code, snap.CurrentUser.UID)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, ToRedeemResponse(grant, sess.Refresh(r.Context())))
}

func writeError(w http.ResponseWriter, err error) {
	if appErr, ok := identity.AppError(err); ok {
		core.JSONError(w, appErr)
		return
	}

	switch {
	case errors.Is(err, entitlement.ErrInvalidCode):
		core.JSONError(w, core.NewAppError(err, "invalid bonus code",
			http.StatusNotFound, "INVALID_CODE"))
	case errors.Is(err, entitlement.ErrBanned):
		core.JSONError(w, core.NewAppError(err, "banned accounts cannot redeem bonus codes",
			http.StatusForbidden, "BANNED"))
	case errors.Is(err, entitlement.ErrExhaustedCode):
		core.Conflict(w, "EXHAUSTED_CODE", "this bonus code has no uses left")
	case errors.Is(err, core.ErrNotAuthenticated):
		core.Unauthorized(w, "not authenticated")
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "user")
	case errors.Is(err, blob.ErrInvalidPath), errors.Is(err, core.ErrInvalidInput):
		core.BadRequest(w, err.Error())
	case errors.Is(err, core.ErrDuplicateKey):
		core.JSONError(w, core.DuplicateError("email"))
	case errors.Is(err, core.ErrStorageUnavailable):
		core.JSONError(w, core.StorageUnavailableError())
	default:
		core.InternalServerError(w, err)
	}
}
