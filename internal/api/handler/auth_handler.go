package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"oj_sync/internal/app/service"
	"oj_sync/internal/common"
)

// Authenticator is implemented by *service.AuthService.
type Authenticator interface {
	Signup(ctx context.Context, req service.SignupRequest) (*service.AuthResponse, error)
	Login(ctx context.Context, req service.LoginRequest) (*service.AuthResponse, error)
}

type AuthHandler struct {
	authService Authenticator
}

func NewAuthHandler(authService Authenticator) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/signup", h.signup)
	r.Post("/login", h.login)
}

func (h *AuthHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req service.SignupRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	resp, err := h.authService.Signup(r.Context(), req)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, resp)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	resp, err := h.authService.Login(r.Context(), req)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}
