// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/account"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names; each maps to templates/<name>.html rendered inside the layout.
const (
	pageHome      = "home"
	pageRegister  = "register"
	pageLogin     = "login"
	pageDashboard = "dashboard"
	pageVerify    = "verify"
	pageForget    = "forget"
	pageReset     = "reset"
	pageError     = "error"
)

var pageTitles = map[string]string{
	pageHome:      "Home",
	pageRegister:  "Register",
	pageLogin:     "Login",
	pageDashboard: "Dashboard",
	pageVerify:    "Verify",
	pageForget:    "Forgot password",
	pageReset:     "Reset password",
	pageError:     "Error",
}

// pageData is the value every template renders.
type pageData struct {
	Title     string
	Flash     *Flash
	Account   *account.Account
	Token     string
	RequestID string
}

func parseTemplates() (map[string]*template.Template, error) {
	layout, err := template.ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, oops.Code("TEMPLATE_PARSE_FAILED").With("template", "layout").Wrap(err)
	}

	pages := make(map[string]*template.Template, len(pageTitles))
	for name := range pageTitles {
		t, err := layout.Clone()
		if err != nil {
			return nil, oops.Code("TEMPLATE_PARSE_FAILED").With("template", name).Wrap(err)
		}
		if _, err := t.ParseFS(templateFS, "templates/"+name+".html"); err != nil {
			return nil, oops.Code("TEMPLATE_PARSE_FAILED").With("template", name).Wrap(err)
		}
		pages[name] = t
	}
	return pages, nil
}

// render writes page with status. The flash cookie is consumed here so a
// notice shows exactly once.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	data.Title = pageTitles[page]
	if data.Account == nil {
		data.Account = AccountFrom(r.Context())
	}
	if data.Flash == nil {
		data.Flash = popFlash(w, r)
	}
	data.RequestID = middleware.GetReqID(r.Context())

	var buf bytes.Buffer
	if err := s.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logger.ErrorContext(r.Context(), "template render failed", "template", page, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
