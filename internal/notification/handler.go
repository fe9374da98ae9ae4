// AngelaMos | 2026
// handler.go

package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/core"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/session"
	"github.com/ElidioPeirao/EPROJECTS-SITE/internal/user"
)

const heartbeatInterval = 25 * time.Second

type Handler struct {
	service   *Service
	users     UserDirectory
	validator *validator.Validate
}

func NewHandler(service *Service, users UserDirectory) *Handler {
	return &Handler{
		service:   service,
		users:     users,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router, mw ...func(http.Handler) http.Handler) {
	r.Route("/notifications", func(r chi.Router) {
		r.Use(mw...)

		r.Get("/", h.Feed)
		r.Get("/stream", h.Stream)
		r.Post("/{notificationID}/seen", h.MarkSeen)
	})
}

func (h *Handler) RegisterAdminRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin/notifications", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/", h.List)
		r.Post("/", h.Send)
		r.Delete("/{notificationID}", h.Delete)
	})
}

func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap := session.FromContext(ctx).Snapshot()

	var seen []string
	if snap.CurrentUser != nil {
		rec, err := h.users.GetUser(ctx, snap.CurrentUser.UID)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			writeError(w, core.StorageError("notification feed", err))
			return
		}
		if rec != nil {
			seen = rec.SeenNotifications
		}
	}

	feed, err := h.service.Feed(ctx, uidOf(snap), snap.Role, seen)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, feed)
}

func (h *Handler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	snap := session.FromContext(r.Context()).Snapshot()

	err := h.service.MarkSeen(r.Context(), uidOf(snap), chi.URLParam(r, "notificationID"))
	if err != nil {
		writeError(w, err)
		return
	}

	core.NoContent(w)
}

// Stream is a server-sent events feed. The subscription is closed when the
// client goes away.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap := session.FromContext(ctx).Snapshot()

	sub, err := h.service.Subscribe(ctx, uidOf(snap), snap.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	defer sub.Close() //nolint:errcheck // best-effort teardown

	rc := http.NewResponseController(w)

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case n, ok := <-sub.C:
			if !ok {
				return
			}
			payload, err := json.Marshal(n)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: notification\ndata: %s\n\n", n.ID, payload); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	n, err := h.service.Send(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	core.Created(w, n)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := parseIntQuery(r, "page", 1)
	pageSize := parseIntQuery(r, "page_size", DefaultFeedLimit)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = DefaultFeedLimit
	}

	items, total, err := h.service.List(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}

	core.Paginated(w, items, page, pageSize, int64(total))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "notificationID")); err != nil {
		writeError(w, err)
		return
	}

	core.NoContent(w)
}

func uidOf(snap session.Snapshot) string {
	if snap.CurrentUser == nil {
		return ""
	}
	return snap.CurrentUser.UID
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotAuthenticated):
		core.Unauthorized(w, "not authenticated")
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "notification")
	case errors.Is(err, ErrUnknownAudience):
		core.BadRequest(w, ErrUnknownAudience.Error())
	case errors.Is(err, core.ErrStorageUnavailable):
		core.JSONError(w, core.StorageUnavailableError())
	default:
		core.InternalServerError(w, err)
	}
}

func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

var _ UserDirectory = (*user.Service)(nil)
