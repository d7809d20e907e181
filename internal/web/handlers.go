// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"log/slog"
	"net/http"

	"github.com/holomush/holoauth/internal/auth"
)

type handlers struct {
	service AuthService
	logger  *slog.Logger
}

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	UserName  string `json:"userName"`
}

// loginRequest accepts either an email or a generic identifier, which may be
// a username. Identifier wins when both are present.
type loginRequest struct {
	Email      string `json:"email"`
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	ShortLived bool   `json:"shortLived"`
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}

	out, err := h.service.Register(r.Context(), auth.RegistrationInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Username:  req.UserName,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if out.Cookie != nil {
		http.SetCookie(w, out.Cookie)
	}
	writeJSON(w, http.StatusCreated, userBody{User: out.Identity})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Email
	}
	out, err := h.service.Login(r.Context(), auth.Credentials{
		Identifier: identifier,
		Password:   req.Password,
		ShortLived: req.ShortLived,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	http.SetCookie(w, out.Cookie)
	writeJSON(w, http.StatusOK, userBody{User: out.Identity})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.service.Logout(r.Context()))
	writeMessage(w, http.StatusOK, "logged out")
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	identity, err := h.service.CurrentIdentity(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userBody{User: *identity})
}
