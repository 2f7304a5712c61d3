package users

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-procure/internal/auth"
	"github.com/odyssey-erp/odyssey-procure/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-procure/internal/rbac"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// Directory is the account administration surface of auth.Service.
type Directory interface {
	ListUsers(ctx context.Context) ([]auth.Account, error)
	CreateUser(ctx context.Context, in auth.NewUser) (*auth.User, error)
	Unlock(ctx context.Context, userID string) error
}

// Handler manages user administration endpoints.
type Handler struct {
	logger    *slog.Logger
	directory Directory
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, directory Directory, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, directory: directory, rbac: rbac}
}

// MountRoutes registers user routes under /users.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersManage))
		r.Get("/", h.listUsers)
		r.Post("/", h.createUser)
		r.Put("/{id}/unlock", h.unlockUser)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.directory.ListUsers(r.Context())
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": accounts})
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var in auth.NewUser
	if err := httpx.Bind(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.directory.CreateUser(r.Context(), in)
	if err != nil {
		h.fail(w, "create user", err)
		return
	}
	h.logger.Info("user created", slog.String("user", user.ID), slog.String("role", user.Role), slog.String("by", shared.ActorFromContext(r.Context())))
	httpx.JSON(w, http.StatusCreated, auth.Profile{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Role:        user.Role,
		Permissions: user.Permissions,
	})
}

func (h *Handler) unlockUser(w http.ResponseWriter, r *http.Request) {
	if err := h.directory.Unlock(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, "unlock user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
