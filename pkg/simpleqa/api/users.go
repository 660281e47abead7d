package api

import (
	"fmt"
	"net/http"

	"github.com/tendant/simple-qa/pkg/simpleqa"
)

// CreateUserRequest is the request body for registering a user
type CreateUserRequest struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Username  string `json:"username" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
}

// UpdateUserRequest is the request body for updating the caller's account.
// Username is accepted only to reject it.
type UpdateUserRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,min=1"`
	LastName  *string `json:"last_name" validate:"omitempty,min=1"`
	Password  *string `json:"password" validate:"omitempty,min=8"`
	Username  *string `json:"username"`
}

// CreateUser registers a new account
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := h.decodeValidate(w, r, &req); err != nil {
		h.error(w, r, err)
		return
	}

	user, err := h.service.CreateUser(r.Context(), simpleqa.CreateUserRequest{
		FirstName: h.sanitize(req.FirstName),
		LastName:  h.sanitize(req.LastName),
		Username:  req.Username,
		Password:  req.Password,
	})
	if err != nil {
		h.error(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, user)
}

// GetSelf returns the authenticated user
func (h *Handler) GetSelf(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), h.actor(r))
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, user)
}

// UpdateSelf updates names or password of the authenticated user
func (h *Handler) UpdateSelf(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := h.decodeValidate(w, r, &req); err != nil {
		h.error(w, r, err)
		return
	}
	if req.Username != nil {
		h.error(w, r, fmt.Errorf("%w: username cannot be changed", simpleqa.ErrBadRequest))
		return
	}

	err := h.service.UpdateUser(r.Context(), simpleqa.UpdateUserRequest{
		Actor:     h.actor(r),
		FirstName: h.sanitizePtr(req.FirstName),
		LastName:  h.sanitizePtr(req.LastName),
		Password:  req.Password,
	})
	if err != nil {
		h.error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetUser returns a user by id
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "user_id", simpleqa.ErrUserNotFound)
	if err != nil {
		h.error(w, r, err)
		return
	}

	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, user)
}
