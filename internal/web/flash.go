// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"encoding/base64"
	"net/http"
	"strings"
)

const flashCookie = "accountd_flash"

// Flash kinds.
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

// Flash is a one-shot notice carried across a redirect.
type Flash struct {
	Kind    string
	Message string
}

func (f Flash) encode() string {
	return base64.RawURLEncoding.EncodeToString([]byte(f.Kind + "|" + f.Message))
}

func decodeFlash(value string) (Flash, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return Flash{}, false
	}
	kind, msg, ok := strings.Cut(string(raw), "|")
	if !ok || (kind != FlashSuccess && kind != FlashError) {
		return Flash{}, false
	}
	return Flash{Kind: kind, Message: msg}, true
}

// redirect sets a flash notice and sends a 303 to location.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if message != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     flashCookie,
			Value:    Flash{Kind: kind, Message: message}.encode(),
			Path:     "/",
			HttpOnly: true,
			Secure:   s.opts.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// popFlash returns the pending notice, if any, and clears its cookie.
func popFlash(w http.ResponseWriter, r *http.Request) *Flash {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1})

	f, ok := decodeFlash(c.Value)
	if !ok {
		return nil
	}
	return &f
}
