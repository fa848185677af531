// Package record implements the line-oriented vault document format.
//
// A vault document is a sequence of lines with tab-separated fields. Three
// line shapes are recognized:
//
//	id<TAB>service<TAB>username<TAB>password<TAB>notes<TAB>createdAt
//	NOTE<TAB>id<TAB>title<TAB>base64Body<TAB>createdAt<TAB>-
//	META_RECOVERY_PUBKEY<TAB>base64Key<TAB>-<TAB>-<TAB>-<TAB>-
//
// Anything else is carried through byte-for-byte. Parsed lines keep their
// original text, so a parse/serialize cycle is lossless even for lines this
// package does not understand.
package record

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

const (
	// FieldSep separates fields within a line.
	FieldSep = "\t"

	// NoteTag marks a secure note line.
	NoteTag = "NOTE"

	// RecoveryTag marks the recovery public key metadata line.
	RecoveryTag = "META_RECOVERY_PUBKEY"

	// FieldCount is the fixed number of fields in a recognized line.
	FieldCount = 6

	// Placeholder fills unused trailing fields.
	Placeholder = "-"
)

// Kind identifies what a document line was parsed as.
type Kind int

const (
	// KindOpaque is any line that does not match a recognized shape.
	// Opaque lines are preserved verbatim and never surfaced to CRUD.
	KindOpaque Kind = iota
	// KindPassword is a password record line.
	KindPassword
	// KindNote is a secure note line.
	KindNote
	// KindRecovery is the recovery public key metadata line.
	KindRecovery
)

// PasswordRecord is one stored credential.
type PasswordRecord struct {
	ID        int
	Service   string
	Username  string
	Secret    string
	Note      string
	CreatedAt time.Time
}

// SecureNote is one free-text note. The body is binary-safe; it is carried
// base64-encoded on the wire so multi-line content survives the
// line-oriented format.
type SecureNote struct {
	ID        int
	Title     string
	Body      []byte
	CreatedAt time.Time
}

// RecoveryMeta carries the recovery envelope public key embedded in the
// vault. At most one is honored per document.
type RecoveryMeta struct {
	PublicKey []byte
}

// Line is one document line: its original text plus whatever it parsed as.
// Raw is authoritative for serialization until the line is rebuilt by a
// mutation, so untouched lines round-trip byte-identically.
type Line struct {
	Kind     Kind
	Raw      string
	Password *PasswordRecord
	Note     *SecureNote
	Recovery *RecoveryMeta
}

// Document is the decrypted vault body as an ordered sequence of lines.
type Document struct {
	Lines []Line

	// trailingNewline records whether the source bytes ended with '\n'.
	trailingNewline bool
}

// Parse decodes a plaintext vault body. It never fails: lines that do not
// match a recognized shape become opaque passthrough lines.
func Parse(data []byte) *Document {
	doc := &Document{}
	if len(data) == 0 {
		return doc
	}

	raw := strings.Split(string(data), "\n")
	if raw[len(raw)-1] == "" {
		doc.trailingNewline = true
		raw = raw[:len(raw)-1]
	}

	for _, text := range raw {
		doc.Lines = append(doc.Lines, parseLine(text))
	}
	return doc
}

// parseLine classifies a single line. Qualification rules are strict: a
// wrong field count or an unparseable first field demotes the line to
// opaque rather than guessing.
func parseLine(text string) Line {
	fields := strings.Split(text, FieldSep)
	if len(fields) != FieldCount {
		return Line{Kind: KindOpaque, Raw: text}
	}

	switch fields[0] {
	case NoteTag:
		id, err := strconv.Atoi(fields[1])
		if err != nil || id <= 0 || fields[1] != strconv.Itoa(id) {
			return Line{Kind: KindOpaque, Raw: text}
		}
		body, err := base64.StdEncoding.DecodeString(fields[3])
		if err != nil {
			return Line{Kind: KindOpaque, Raw: text}
		}
		created, _ := time.Parse(time.RFC3339, fields[4])
		return Line{
			Kind: KindNote,
			Raw:  text,
			Note: &SecureNote{
				ID:        id,
				Title:     fields[2],
				Body:      body,
				CreatedAt: created,
			},
		}

	case RecoveryTag:
		key, err := base64.StdEncoding.DecodeString(fields[1])
		if err != nil || len(key) == 0 {
			return Line{Kind: KindOpaque, Raw: text}
		}
		return Line{
			Kind:     KindRecovery,
			Raw:      text,
			Recovery: &RecoveryMeta{PublicKey: key},
		}

	default:
		// Password record only if the first field is an unsigned integer.
		id, err := strconv.Atoi(fields[0])
		if err != nil || id <= 0 || fields[0] != strconv.Itoa(id) {
			return Line{Kind: KindOpaque, Raw: text}
		}
		created, _ := time.Parse(time.RFC3339, fields[5])
		return Line{
			Kind: KindPassword,
			Raw:  text,
			Password: &PasswordRecord{
				ID:        id,
				Service:   fields[1],
				Username:  fields[2],
				Secret:    fields[3],
				Note:      fields[4],
				CreatedAt: created,
			},
		}
	}
}

// Serialize encodes the document back to bytes. Untouched lines are emitted
// from their original text.
func (d *Document) Serialize() []byte {
	if len(d.Lines) == 0 {
		return []byte{}
	}

	var b strings.Builder
	for i, line := range d.Lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line.Raw)
	}
	if d.trailingNewline {
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// FormatPassword renders a password record as a wire line.
func FormatPassword(r *PasswordRecord) string {
	return strings.Join([]string{
		strconv.Itoa(r.ID),
		r.Service,
		r.Username,
		r.Secret,
		r.Note,
		r.CreatedAt.UTC().Format(time.RFC3339),
	}, FieldSep)
}

// FormatNote renders a secure note as a wire line.
func FormatNote(n *SecureNote) string {
	return strings.Join([]string{
		NoteTag,
		strconv.Itoa(n.ID),
		n.Title,
		base64.StdEncoding.EncodeToString(n.Body),
		n.CreatedAt.UTC().Format(time.RFC3339),
		Placeholder,
	}, FieldSep)
}

// FormatRecovery renders the recovery metadata as a wire line.
func FormatRecovery(m *RecoveryMeta) string {
	return strings.Join([]string{
		RecoveryTag,
		base64.StdEncoding.EncodeToString(m.PublicKey),
		Placeholder,
		Placeholder,
		Placeholder,
		Placeholder,
	}, FieldSep)
}

// Passwords returns all password records in document order.
func (d *Document) Passwords() []*PasswordRecord {
	var out []*PasswordRecord
	for i := range d.Lines {
		if d.Lines[i].Kind == KindPassword {
			out = append(out, d.Lines[i].Password)
		}
	}
	return out
}

// Notes returns all secure notes in document order.
func (d *Document) Notes() []*SecureNote {
	var out []*SecureNote
	for i := range d.Lines {
		if d.Lines[i].Kind == KindNote {
			out = append(out, d.Lines[i].Note)
		}
	}
	return out
}

// Recovery returns the first recovery metadata line, or nil if the vault
// carries none.
func (d *Document) Recovery() *RecoveryMeta {
	for i := range d.Lines {
		if d.Lines[i].Kind == KindRecovery {
			return d.Lines[i].Recovery
		}
	}
	return nil
}

// NextPasswordID returns max(password IDs)+1, or 1 for an empty namespace.
// The note namespace is independent; IDs may overlap numerically.
func (d *Document) NextPasswordID() int {
	max := 0
	for _, r := range d.Passwords() {
		if r.ID > max {
			max = r.ID
		}
	}
	return max + 1
}

// NextNoteID returns max(note IDs)+1, or 1 for an empty namespace.
func (d *Document) NextNoteID() int {
	max := 0
	for _, n := range d.Notes() {
		if n.ID > max {
			max = n.ID
		}
	}
	return max + 1
}

// AppendPassword adds a record line at the end of the document.
func (d *Document) AppendPassword(r *PasswordRecord) {
	d.Lines = append(d.Lines, Line{Kind: KindPassword, Raw: FormatPassword(r), Password: r})
	d.trailingNewline = true
}

// AppendNote adds a note line at the end of the document.
func (d *Document) AppendNote(n *SecureNote) {
	d.Lines = append(d.Lines, Line{Kind: KindNote, Raw: FormatNote(n), Note: n})
	d.trailingNewline = true
}

// SetRecovery replaces the recovery metadata line, or appends one if the
// document has none.
func (d *Document) SetRecovery(m *RecoveryMeta) {
	line := Line{Kind: KindRecovery, Raw: FormatRecovery(m), Recovery: m}
	for i := range d.Lines {
		if d.Lines[i].Kind == KindRecovery {
			d.Lines[i] = line
			return
		}
	}
	d.Lines = append(d.Lines, line)
	d.trailingNewline = true
}

// FindPassword returns the password record with the given ID, or nil.
func (d *Document) FindPassword(id int) *PasswordRecord {
	for _, r := range d.Passwords() {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// FindNote returns the secure note with the given ID, or nil.
func (d *Document) FindNote(id int) *SecureNote {
	for _, n := range d.Notes() {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// UpdatePassword rebuilds the line for an existing record after its fields
// changed. Returns false if the ID is absent.
func (d *Document) UpdatePassword(r *PasswordRecord) bool {
	for i := range d.Lines {
		if d.Lines[i].Kind == KindPassword && d.Lines[i].Password.ID == r.ID {
			d.Lines[i] = Line{Kind: KindPassword, Raw: FormatPassword(r), Password: r}
			return true
		}
	}
	return false
}

// DeletePassword removes exactly the record line with the given ID,
// leaving every other line untouched. Returns false if the ID is absent.
func (d *Document) DeletePassword(id int) bool {
	for i := range d.Lines {
		if d.Lines[i].Kind == KindPassword && d.Lines[i].Password.ID == id {
			d.Lines = append(d.Lines[:i], d.Lines[i+1:]...)
			return true
		}
	}
	return false
}

// DeleteNote removes exactly the note line with the given ID. Returns
// false if the ID is absent.
func (d *Document) DeleteNote(id int) bool {
	for i := range d.Lines {
		if d.Lines[i].Kind == KindNote && d.Lines[i].Note.ID == id {
			d.Lines = append(d.Lines[:i], d.Lines[i+1:]...)
			return true
		}
	}
	return false
}
