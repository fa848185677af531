package vault

import (
	"strings"
	"time"

	"github.com/forest6511/lockbox/pkg/audit"
	"github.com/forest6511/lockbox/pkg/crypto"
	"github.com/forest6511/lockbox/pkg/record"
)

// NoteSummary is the body-free listing view of a secure note.
type NoteSummary struct {
	ID        int
	Title     string
	CreatedAt time.Time
}

// AddNote appends a secure note in one vault cycle. The body is binary-safe
// and carried base64-encoded on the wire. Note IDs are allocated in their
// own namespace, independent of password record IDs.
func (s *Store) AddNote(pass *crypto.Passphrase, title string, body []byte) (id int, err error) {
	if strings.TrimSpace(title) == "" {
		return 0, ErrInvalidInput
	}
	// The title rides the wire line directly; the body is base64-encoded
	// and needs no such check.
	if err := checkFieldValues(title); err != nil {
		return 0, err
	}

	err = s.mutate(pass, func(doc *record.Document) error {
		id = doc.NextNoteID()
		doc.AppendNote(&record.SecureNote{
			ID:        id,
			Title:     title,
			Body:      body,
			CreatedAt: time.Now().UTC(),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}

	_ = s.audit.LogSuccess(audit.OpNoteAdd, s.source, title)
	return id, nil
}

// ListNotes returns body-free summaries in document order.
func (s *Store) ListNotes(pass *crypto.Passphrase) ([]NoteSummary, error) {
	var out []NoteSummary
	err := s.view(pass, func(doc *record.Document) error {
		for _, n := range doc.Notes() {
			out = append(out, NoteSummary{ID: n.ID, Title: n.Title, CreatedAt: n.CreatedAt})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SearchNotes returns summaries whose title contains the pattern,
// case-insensitively. Bodies are never matched against.
func (s *Store) SearchNotes(pass *crypto.Passphrase, pattern string) ([]NoteSummary, error) {
	needle := fold(pattern)
	var out []NoteSummary
	err := s.view(pass, func(doc *record.Document) error {
		for _, n := range doc.Notes() {
			if strings.Contains(fold(n.Title), needle) {
				out = append(out, NoteSummary{ID: n.ID, Title: n.Title, CreatedAt: n.CreatedAt})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetNote returns the full note for an ID, or ErrNotFound.
func (s *Store) GetNote(pass *crypto.Passphrase, id int) (*record.SecureNote, error) {
	var out record.SecureNote
	err := s.view(pass, func(doc *record.Document) error {
		n := doc.FindNote(id)
		if n == nil {
			return ErrNotFound
		}
		out = *n
		out.Body = append([]byte(nil), n.Body...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteNote removes exactly one note line.
func (s *Store) DeleteNote(pass *crypto.Passphrase, id int) error {
	err := s.mutate(pass, func(doc *record.Document) error {
		if !doc.DeleteNote(id) {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	_ = s.audit.LogSuccess(audit.OpNoteDelete, s.source, "")
	return nil
}
