package web

import (
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"github.com/forest6511/lockbox/pkg/audit"
	"github.com/forest6511/lockbox/pkg/crypto"
	"github.com/forest6511/lockbox/pkg/vault"
)

// requireSession resolves the session cookie to the bound passphrase and
// refreshes the idle clock. Missing or expired sessions redirect to the
// login form; the handler never sees raw internal errors.
func (s *Server) requireSession(next func(w http.ResponseWriter, r *http.Request, pass *crypto.Passphrase)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		pass, ok := s.sessions.Lookup(c.Value)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		defer pass.Wipe()
		next(w, r, pass)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.render(w, loginTmpl, map[string]any{})
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pass := crypto.NewPassphraseString(r.FormValue("passphrase"))

	// A real open validates the passphrase before a session exists.
	sc, err := s.store.Open(pass)
	if err != nil {
		pass.Wipe()
		_ = s.audit.LogError(audit.OpSessionLoginFail, audit.SourceWeb, "", "authentication failed")
		msg := "Wrong passphrase."
		if errors.Is(err, vault.ErrVaultMissing) {
			msg = "No vault found. Create one with the CLI first."
		}
		w.WriteHeader(http.StatusUnauthorized)
		s.render(w, loginTmpl, map[string]any{"Error": msg})
		return
	}
	s.store.Discard(sc)

	token, err := s.sessions.Login(pass)
	if err != nil {
		pass.Wipe()
		s.internalError(w, err)
		return
	}
	_ = s.audit.LogSuccess(audit.OpSessionLogin, audit.SourceWeb, "")

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		s.sessions.Logout(c.Value)
		_ = s.audit.LogSuccess(audit.OpSessionLogout, audit.SourceWeb, "")
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, pass *crypto.Passphrase) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	records, err := s.store.ListPasswords(pass)
	if err != nil {
		s.vaultError(w, r, err)
		return
	}
	s.render(w, listTmpl, map[string]any{"Records": records})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request, pass *crypto.Passphrase) {
	data := map[string]any{
		"Title":      "Add password",
		"Action":     "/add",
		"SecretHint": "leave empty to generate",
	}
	if r.Method == http.MethodGet {
		s.render(w, formTmpl, data)
		return
	}

	id, stored, generated, err := s.store.AddPassword(pass,
		r.FormValue("service"), r.FormValue("username"),
		r.FormValue("password"), r.FormValue("note"), false)
	if err != nil {
		if msg, ok := formMessage(err); ok {
			data["Error"] = msg
			data["Service"] = r.FormValue("service")
			data["Username"] = r.FormValue("username")
			data["Note"] = r.FormValue("note")
			s.render(w, formTmpl, data)
			return
		}
		s.vaultError(w, r, err)
		return
	}
	if generated {
		// The generated secret is disclosed exactly once, here.
		s.render(w, generatedTmpl, map[string]any{
			"ID":      id,
			"Service": r.FormValue("service"),
			"Secret":  stored,
		})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request, pass *crypto.Passphrase) {
	id, ok := formID(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if r.Method == http.MethodGet {
		rec, err := s.store.GetPassword(pass, id)
		if err != nil {
			s.vaultError(w, r, err)
			return
		}
		s.render(w, formTmpl, map[string]any{
			"Title":      "Edit password",
			"Action":     "/edit",
			"ID":         rec.ID,
			"Service":    rec.Service,
			"Username":   rec.Username,
			"Note":       rec.Note,
			"SecretHint": "leave empty to keep current",
		})
		return
	}

	err := s.store.UpdatePassword(pass, id,
		r.FormValue("service"), r.FormValue("username"),
		r.FormValue("password"), r.FormValue("note"))
	if err != nil {
		if msg, ok := formMessage(err); ok {
			s.render(w, formTmpl, map[string]any{
				"Title":      "Edit password",
				"Action":     "/edit",
				"ID":         id,
				"Service":    r.FormValue("service"),
				"Username":   r.FormValue("username"),
				"Note":       r.FormValue("note"),
				"SecretHint": "leave empty to keep current",
				"Error":      msg,
			})
			return
		}
		s.vaultError(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request, pass *crypto.Passphrase) {
	id, ok := formID(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	rec, err := s.store.GetPassword(pass, id)
	if err != nil {
		s.vaultError(w, r, err)
		return
	}
	s.render(w, viewTmpl, map[string]any{"Record": rec})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, pass *crypto.Passphrase) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := formID(r)
	if !ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err := s.store.DeletePassword(pass, id); err != nil && !errors.Is(err, vault.ErrNotFound) {
		s.vaultError(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request, pass *crypto.Passphrase) {
	notes, err := s.store.ListNotes(pass)
	if err != nil {
		s.vaultError(w, r, err)
		return
	}
	s.render(w, notesTmpl, map[string]any{"Notes": notes})
}

func (s *Server) handleNoteAdd(w http.ResponseWriter, r *http.Request, pass *crypto.Passphrase) {
	if r.Method == http.MethodGet {
		s.render(w, noteAddTmpl, map[string]any{})
		return
	}
	_, err := s.store.AddNote(pass, r.FormValue("title"), []byte(r.FormValue("body")))
	if err != nil {
		if msg, ok := formMessage(err); ok {
			s.render(w, noteAddTmpl, map[string]any{"Error": msg})
			return
		}
		s.vaultError(w, r, err)
		return
	}
	http.Redirect(w, r, "/notes", http.StatusSeeOther)
}

func (s *Server) handleNoteView(w http.ResponseWriter, r *http.Request, pass *crypto.Passphrase) {
	id, ok := formID(r)
	if !ok {
		http.Redirect(w, r, "/notes", http.StatusSeeOther)
		return
	}
	n, err := s.store.GetNote(pass, id)
	if err != nil {
		s.vaultError(w, r, err)
		return
	}
	s.render(w, noteTmpl, map[string]any{"Note": n, "Body": string(n.Body)})
	crypto.SecureWipe(n.Body)
}

func (s *Server) handleNoteDelete(w http.ResponseWriter, r *http.Request, pass *crypto.Passphrase) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := formID(r)
	if !ok {
		http.Redirect(w, r, "/notes", http.StatusSeeOther)
		return
	}
	if err := s.store.DeleteNote(pass, id); err != nil && !errors.Is(err, vault.ErrNotFound) {
		s.vaultError(w, r, err)
		return
	}
	http.Redirect(w, r, "/notes", http.StatusSeeOther)
}

// vaultError maps vault-cycle failures to user-safe responses. An
// authentication failure means the session's passphrase no longer opens
// the vault (changed out from under us), so the session is dead weight
// and the user re-authenticates.
func (s *Server) vaultError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, vault.ErrAuthenticationFailed), errors.Is(err, vault.ErrVaultMissing):
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	case errors.Is(err, vault.ErrNotFound):
		http.NotFound(w, r)
	case errors.Is(err, vault.ErrVaultBusy):
		http.Error(w, "The vault is busy; please retry.", http.StatusConflict)
	default:
		s.internalError(w, err)
	}
}

// formMessage returns a validation message for input failures; these
// re-render the form instead of aborting the request.
func formMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, vault.ErrInvalidInput):
		return "A required field is empty.", true
	case errors.Is(err, vault.ErrInvalidCharacter):
		return "Fields must not contain tab or newline characters.", true
	case errors.Is(err, vault.ErrDuplicateEntry):
		return "An entry for this service and username already exists.", true
	}
	return "", false
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Printf("request failed: %v", err)
	http.Error(w, "Something went wrong.", http.StatusInternalServerError)
}

func (s *Server) render(w http.ResponseWriter, tmpl *template.Template, data any) {
	if err := tmpl.Execute(w, data); err != nil {
		s.log.Printf("template render failed: %v", err)
	}
}

func formID(r *http.Request) (int, bool) {
	raw := r.FormValue("id")
	if raw == "" {
		raw = r.URL.Query().Get("id")
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
