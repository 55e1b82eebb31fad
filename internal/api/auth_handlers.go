package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/massy-ia/citydesk/internal/apperr"
	"github.com/massy-ia/citydesk/internal/auth"
	"github.com/massy-ia/citydesk/internal/logging"
	"github.com/massy-ia/citydesk/internal/store"
)

type registerRequest struct {
	Email     string `json:"email" validate:"required,max=120"`
	Username  string `json:"username" validate:"required,min=3,max=80"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Role      string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type updateUserRequest struct {
	FirstName      *string `json:"first_name" validate:"omitempty,max=100"`
	LastName       *string `json:"last_name" validate:"omitempty,max=100"`
	ProfilePicture *string `json:"profile_picture" validate:"omitempty,max=255"`
	Role           *string `json:"role"`
}

type sessionResponse struct {
	auth.TokenPair
	User *store.User `json:"user"`
}

func identity(u *store.User) auth.Identity {
	return auth.Identity{UserID: u.ID, Role: string(u.Role), Username: u.Username, Email: u.Email}
}

func (h *Handler) session(u *store.User) (*sessionResponse, error) {
	pair, err := h.deps.Tokens.IssuePair(identity(u))
	if err != nil {
		return nil, err
	}
	return &sessionResponse{TokenPair: pair, User: u}, nil
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !auth.ValidateEmail(email) {
		respondError(w, r, apperr.Validation("invalid email format"))
		return
	}
	if ok, reason := auth.ValidatePassword(req.Password); !ok {
		respondError(w, r, apperr.Validation(reason))
		return
	}
	role, err := store.ParseRole(strings.ToLower(strings.TrimSpace(req.Role)))
	if err != nil {
		respondError(w, r, apperr.Validation("invalid role, expected citizen, police or university"))
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, r, apperr.Internal("failed to hash password", err))
		return
	}

	now := h.now().UTC()
	user := &store.User{
		Email:        email,
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Role:         role,
		LastLogin:    &now,
	}
	if err := h.deps.Users.CreateUser(r.Context(), user); err != nil {
		respondError(w, r, err)
		return
	}

	resp, err := h.session(user)
	if err != nil {
		respondError(w, r, err)
		return
	}
	logging.Info().Str("user_id", user.ID).Str("role", string(role)).Msg("User registered")
	respond(w, http.StatusCreated, "user created", resp)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, apperr.Validation("email and password are required"))
		return
	}

	invalid := apperr.Unauthenticated("email or password incorrect")
	user, err := h.deps.Users.GetActiveUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			err = invalid
		}
		respondError(w, r, err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		respondError(w, r, invalid)
		return
	}

	now := h.now().UTC()
	if err := h.deps.Users.TouchLastLogin(r.Context(), user.ID, now); err != nil {
		respondError(w, r, err)
		return
	}
	user.LastLogin = &now

	resp, err := h.session(user)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "login successful", resp)
}

// Refresh exchanges a refresh credential for a new access credential with
// the same claims. The password is not checked again.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request, _ *store.User, claims *auth.Claims) {
	token, err := h.deps.Tokens.IssueAccess(claims.Identity())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "token refreshed", map[string]string{"access_token": token})
}

// Logout only acknowledges: credentials are not revoked server side.
func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request, _ *store.User) {
	respond(w, http.StatusOK, "logged out", map[string]any{})
}

func (h *Handler) Me(w http.ResponseWriter, _ *http.Request, caller *store.User) {
	respond(w, http.StatusOK, "profile retrieved", map[string]any{"user": caller})
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request, _ *store.User) {
	users, err := h.deps.Users.ListUsers(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	public := make([]*store.PublicUser, 0, len(users))
	for i := range users {
		public = append(public, users[i].Public())
	}
	respond(w, http.StatusOK, "users retrieved", map[string]any{"users": public, "count": len(public)})
}

// UpdateUser lets a caller edit their own account, or any account when their
// role is privileged. Only privileged callers may change a role.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request, caller *store.User) {
	id := chi.URLParam(r, "userID")
	if caller.ID != id && !caller.Role.Privileged() {
		respondError(w, r, apperr.Forbidden("access denied"))
		return
	}
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	target, err := h.deps.Users.GetUserByID(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if req.FirstName != nil {
		target.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		target.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.ProfilePicture != nil {
		target.ProfilePicture = req.ProfilePicture
	}
	if req.Role != nil {
		if !caller.Role.Privileged() {
			respondError(w, r, apperr.Forbidden("only privileged accounts may change roles"))
			return
		}
		role, err := store.ParseRole(*req.Role)
		if err != nil {
			respondError(w, r, apperr.Validation("invalid role, expected citizen, police or university"))
			return
		}
		target.Role = role
	}

	if err := h.deps.Users.UpdateUser(r.Context(), target); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "profile updated", map[string]any{"user": target})
}
