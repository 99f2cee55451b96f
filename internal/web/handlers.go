// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/pkg/errutil"
)

// Flash messages.
const (
	MsgInvalidData     = "Data is not valid. Please try again"
	MsgEmailInUse      = "Email is already in use"
	MsgCheckEmail      = "You Check Your Email"
	MsgNoUser          = "No user found"
	MsgVerified        = "Thank you! now you may login"
	MsgMustRegister    = "Sorry you must be registered first"
	MsgAlreadyLoggedIn = "Sorry you are already logged in"
	MsgLoggedOut       = "Successfully logout hope to see you soon"
	MsgEmailNotFound   = "Email not found"
	MsgResetSent       = "Check your email for a reset link"
	MsgResetInvalid    = "Reset link is invalid or has expired"
	MsgPasswordUpdated = "Password updated, you may now login"
)

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, pageHome, pageData{})
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, pageRegister, pageData{})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.redirect(w, r, "/users/register", FlashError, MsgInvalidData)
		return
	}

	acct, err := s.accounts.Register(r.Context(), account.RegisterInput{
		Email:                r.PostForm.Get("email"),
		Username:             r.PostForm.Get("username"),
		Password:             r.PostForm.Get("password"),
		ConfirmationPassword: r.PostForm.Get("confirmationPassword"),
	})
	switch {
	case errors.Is(err, account.ErrValidation):
		s.redirect(w, r, "/users/register", FlashError, MsgInvalidData)
	case errors.Is(err, account.ErrDuplicateEmail):
		s.redirect(w, r, "/users/register", FlashError, MsgEmailInUse)
	case errors.Is(err, account.ErrMailDelivery):
		s.metrics.RecordMailFailure()
		s.fail(w, r, err)
	case err != nil:
		s.fail(w, r, err)
	default:
		s.metrics.RecordEvent("registered")
		s.logger.InfoContext(r.Context(), "registration accepted", "account_id", acct.ID.String())
		s.redirect(w, r, "/users/login", FlashSuccess, MsgCheckEmail)
	}
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, pageLogin, pageData{})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.redirect(w, r, "/users/login", FlashError, MsgInvalidData)
		return
	}

	outcome, err := s.accounts.Login(r.Context(), r.PostForm.Get("email"), r.PostForm.Get("password"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.RecordLogin(outcome.Kind.String())
	if !outcome.Authenticated() {
		s.redirect(w, r, "/users/login", FlashError, outcome.Reason)
		return
	}

	// Drop any session the browser already carried before binding the new one.
	if old := sessionFrom(r.Context()); old != "" {
		if err := s.sessions.Revoke(r.Context(), old); err != nil {
			errutil.LogErrorContext(r.Context(), s.logger, "failed to revoke previous session", err)
		}
	}

	value, err := s.sessions.Encode(r.Context(), outcome.Account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.setSessionCookie(w, value)
	http.Redirect(w, r, "/users/dashboard", http.StatusSeeOther)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, pageDashboard, pageData{})
}

func (s *Server) handleVerifyPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, pageVerify, pageData{Token: r.URL.Query().Get("token")})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.redirect(w, r, "/users/verify", FlashError, MsgNoUser)
		return
	}

	_, err := s.accounts.Verify(r.Context(), r.PostForm.Get("secretToken"))
	switch {
	case errors.Is(err, account.ErrNotFound):
		s.redirect(w, r, "/users/verify", FlashError, MsgNoUser)
	case err != nil:
		s.fail(w, r, err)
	default:
		s.metrics.RecordEvent("verified")
		s.redirect(w, r, "/users/login", FlashSuccess, MsgVerified)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Revoke(r.Context(), sessionFrom(r.Context())); err != nil {
		s.fail(w, r, err)
		return
	}
	s.clearSessionCookie(w)
	s.redirect(w, r, "/", FlashSuccess, MsgLoggedOut)
}

func (s *Server) handleForgetPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, pageForget, pageData{})
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.redirect(w, r, "/users/forget", FlashError, MsgInvalidData)
		return
	}

	err := s.accounts.RequestPasswordReset(r.Context(), r.PostForm.Get("email"))
	switch {
	case errors.Is(err, account.ErrNotFound):
		s.redirect(w, r, "/users/forget", FlashError, MsgEmailNotFound)
	case errors.Is(err, account.ErrMailDelivery):
		s.metrics.RecordMailFailure()
		s.fail(w, r, err)
	case err != nil:
		s.fail(w, r, err)
	default:
		s.metrics.RecordEvent("reset_requested")
		s.redirect(w, r, "/users/login", FlashSuccess, MsgResetSent)
	}
}

func (s *Server) handleResetPage(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	_, err := s.accounts.ValidateResetToken(r.Context(), token)
	switch {
	case isResetRejected(err):
		s.redirect(w, r, "/users/forget", FlashError, MsgResetInvalid)
	case err != nil:
		s.fail(w, r, err)
	default:
		s.render(w, r, http.StatusOK, pageReset, pageData{Token: token})
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := r.ParseForm(); err != nil {
		s.redirect(w, r, r.URL.Path, FlashError, MsgInvalidData)
		return
	}

	err := s.accounts.ResetPassword(r.Context(), token, account.ResetInput{
		Password:             r.PostForm.Get("password"),
		ConfirmationPassword: r.PostForm.Get("confirmationPassword"),
	})
	switch {
	case errors.Is(err, account.ErrValidation):
		s.redirect(w, r, r.URL.Path, FlashError, MsgInvalidData)
	case isResetRejected(err):
		s.redirect(w, r, "/users/forget", FlashError, MsgResetInvalid)
	case err != nil:
		s.fail(w, r, err)
	default:
		s.metrics.RecordEvent("password_reset")
		s.redirect(w, r, "/users/login", FlashSuccess, MsgPasswordUpdated)
	}
}

func isResetRejected(err error) bool {
	return errors.Is(err, account.ErrNotFound) || errors.Is(err, account.ErrResetExpired)
}

// fail logs an unexpected error and renders the generic error page.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	errutil.LogErrorContext(r.Context(), s.logger, "request failed", err)
	s.render(w, r, http.StatusInternalServerError, pageError, pageData{})
}
