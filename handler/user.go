package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/wehriam/hiitrack/internal/apierrors"
	"github.com/wehriam/hiitrack/internal/userstore"
)

// UserHandler implements the user endpoints: create and delete.
type UserHandler struct {
	users  *userstore.Store
	logger zerolog.Logger
}

func NewUserHandler(users *userstore.Store, logger zerolog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger.With().Str("handler", "user").Logger()}
}

type createUserRequest struct {
	Password string `json:"password"`
}

// Create handles POST /{user} — no auth, since the user does not exist yet.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")

	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, err)
		return
	}
	if req.Password == "" {
		writeAPIError(w, apierrors.BadRequest("password is required"))
		return
	}

	if err := h.users.CreateUser(r.Context(), user, req.Password); err != nil {
		writeAPIError(w, err)
		return
	}
	h.logger.Info().Str("user", user).Msg("user created")
	writeJSON(w, http.StatusCreated, map[string]string{"user": user})
}

// Delete handles DELETE /{user}: delete the user and every bucket it owns.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")

	exists, err := h.users.UserExists(r.Context(), user)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if !exists {
		writeAPIError(w, apierrors.NotFound("user not found"))
		return
	}

	if err := h.users.DeleteUser(r.Context(), user); err != nil {
		writeAPIError(w, err)
		return
	}
	h.logger.Info().Str("user", user).Msg("user deleted")
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user, "deleted": true})
}
