package crypto

// Passphrase is a scoped credential. It wraps the secret bytes so every
// vault cycle receives an explicit object it can wipe when the cycle ends,
// instead of a long-lived process-wide string.
type Passphrase struct {
	b []byte
}

// NewPassphrase copies the given secret into a fresh Passphrase. The caller
// should wipe its own copy if it holds one.
func NewPassphrase(secret []byte) *Passphrase {
	b := make([]byte, len(secret))
	copy(b, secret)
	return &Passphrase{b: b}
}

// NewPassphraseString wraps a string secret.
func NewPassphraseString(secret string) *Passphrase {
	return NewPassphrase([]byte(secret))
}

// Bytes exposes the secret for handing to an engine. The returned slice
// aliases the internal buffer; do not retain it past the current call.
func (p *Passphrase) Bytes() []byte {
	return p.b
}

// Empty reports whether the passphrase holds no bytes.
func (p *Passphrase) Empty() bool {
	return p == nil || len(p.b) == 0
}

// Wipe zeroes the secret. The Passphrase must not be used afterwards.
func (p *Passphrase) Wipe() {
	if p == nil {
		return
	}
	SecureWipe(p.b)
	p.b = nil
}
