package vault

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/lockbox/pkg/audit"
	"github.com/forest6511/lockbox/pkg/crypto"
	"github.com/forest6511/lockbox/pkg/record"
	"github.com/forest6511/lockbox/pkg/security"
)

// Summary is the secret-free listing view of a password record.
type Summary struct {
	ID        int
	Service   string
	Username  string
	CreatedAt time.Time
}

// AddPassword appends a new password record in one vault cycle. service
// must be non-empty. An empty secret triggers generation of a high-entropy
// random value, returned so the caller can disclose it. A record with the
// same service and username fails with ErrDuplicateEntry unless force is
// set. Returns the assigned ID, the stored secret, and whether it was
// generated.
func (s *Store) AddPassword(pass *crypto.Passphrase, service, username, secret, note string, force bool) (id int, stored string, generated bool, err error) {
	if strings.TrimSpace(service) == "" {
		return 0, "", false, ErrInvalidInput
	}
	if err := checkFieldValues(service, username, secret, note); err != nil {
		return 0, "", false, err
	}

	stored = secret
	if stored == "" {
		stored, err = security.GenerateSecret(security.GeneratedSecretLength)
		if err != nil {
			return 0, "", false, err
		}
		generated = true
	}

	err = s.mutate(pass, func(doc *record.Document) error {
		if !force {
			for _, r := range doc.Passwords() {
				if fold(r.Service) == fold(service) && fold(r.Username) == fold(username) {
					return ErrDuplicateEntry
				}
			}
		}
		id = doc.NextPasswordID()
		doc.AppendPassword(&record.PasswordRecord{
			ID:        id,
			Service:   service,
			Username:  username,
			Secret:    stored,
			Note:      note,
			CreatedAt: time.Now().UTC(),
		})
		return nil
	})
	if err != nil {
		return 0, "", false, err
	}

	_ = s.audit.LogSuccess(audit.OpRecordAdd, s.source, service)
	return id, stored, generated, nil
}

// ListPasswords returns secret-free summaries in document order.
func (s *Store) ListPasswords(pass *crypto.Passphrase) ([]Summary, error) {
	var out []Summary
	err := s.view(pass, func(doc *record.Document) error {
		for _, r := range doc.Passwords() {
			out = append(out, summarize(r))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SearchPasswords returns summaries whose service or username contains the
// pattern, case-insensitively. Secrets are never matched against.
func (s *Store) SearchPasswords(pass *crypto.Passphrase, pattern string) ([]Summary, error) {
	needle := fold(pattern)
	var out []Summary
	err := s.view(pass, func(doc *record.Document) error {
		for _, r := range doc.Passwords() {
			if strings.Contains(fold(r.Service), needle) || strings.Contains(fold(r.Username), needle) {
				out = append(out, summarize(r))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetPassword returns the full record for an ID, or ErrNotFound.
func (s *Store) GetPassword(pass *crypto.Passphrase, id int) (*record.PasswordRecord, error) {
	var out record.PasswordRecord
	err := s.view(pass, func(doc *record.Document) error {
		r := doc.FindPassword(id)
		if r == nil {
			return ErrNotFound
		}
		out = *r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePassword rewrites the fields of an existing record in one vault
// cycle. An empty secret keeps the stored one.
func (s *Store) UpdatePassword(pass *crypto.Passphrase, id int, service, username, secret, note string) error {
	if strings.TrimSpace(service) == "" {
		return ErrInvalidInput
	}
	if err := checkFieldValues(service, username, secret, note); err != nil {
		return err
	}

	return s.mutate(pass, func(doc *record.Document) error {
		r := doc.FindPassword(id)
		if r == nil {
			return ErrNotFound
		}
		updated := *r
		updated.Service = service
		updated.Username = username
		if secret != "" {
			updated.Secret = secret
		}
		updated.Note = note
		doc.UpdatePassword(&updated)
		return nil
	})
}

// DeletePassword removes exactly one record line, preserving every other
// line including malformed and unknown ones.
func (s *Store) DeletePassword(pass *crypto.Passphrase, id int) error {
	err := s.mutate(pass, func(doc *record.Document) error {
		if !doc.DeletePassword(id) {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	_ = s.audit.LogSuccess(audit.OpRecordDelete, s.source, "")
	return nil
}

// EditRaw hands the entire decrypted document to an external editor and
// commits whatever comes back verbatim; no validation is applied beyond
// the commit's own encryption. The vault lock is acquired without
// blocking because an interactive editor can hold it indefinitely; a
// concurrent cycle fails this call with ErrVaultBusy.
func (s *Store) EditRaw(pass *crypto.Passphrase, edit func(scratchPath string) error) error {
	mu := pathLock(s.path)
	if !mu.TryLock() {
		return ErrVaultBusy
	}
	defer mu.Unlock()

	sc, err := s.Open(pass)
	if err != nil {
		return err
	}

	f, err := osCreateScratch(s.path)
	if err != nil {
		s.Discard(sc)
		return err
	}
	scratchPath := f.Name()
	keepScratch := false
	defer func() {
		if !keepScratch {
			secureRemove(scratchPath)
		}
	}()

	if err := writeAndClose(f, sc.doc.Serialize()); err != nil {
		s.Discard(sc)
		return err
	}

	if err := edit(scratchPath); err != nil {
		s.Discard(sc)
		return err
	}

	edited, err := osReadScratch(scratchPath)
	if err != nil {
		s.Discard(sc)
		return err
	}
	sc.doc = record.Parse(edited)
	crypto.SecureWipe(edited)

	if err := s.Commit(pass, sc); err != nil {
		if errors.Is(err, ErrCommitFailed) {
			// The scratch file is the only copy of the edits; it must
			// survive so the caller can retry or salvage them.
			keepScratch = true
			return fmt.Errorf("%w; edits preserved at %s", err, scratchPath)
		}
		return err
	}
	_ = s.audit.LogSuccess(audit.OpVaultEdit, s.source, "")
	return nil
}

func summarize(r *record.PasswordRecord) Summary {
	return Summary{ID: r.ID, Service: r.Service, Username: r.Username, CreatedAt: r.CreatedAt}
}

// fold normalizes a string for case-insensitive matching. NFKC keeps
// visually equivalent Unicode forms from defeating a search.
func fold(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}

// checkFieldValues rejects values that would break the line format. The
// wire format is bit-exact with no escaping, so a tab or newline inside a
// field would change the field count and demote the committed line to an
// unreachable opaque one.
func checkFieldValues(values ...string) error {
	for _, v := range values {
		if strings.ContainsAny(v, "\t\n") {
			return ErrInvalidCharacter
		}
	}
	return nil
}
