package credential

// Secret is an opaque wrapper around sensitive plaintext. Its String and
// GoString methods both render the literal "[REDACTED]" so that a
// secret can never leak through %v/%s formatting, zap field encoding, or
// JSON marshaling performed against a log line built from %+v. Only
// Expose yields the underlying bytes.
type Secret struct {
	plaintext string
}

// NewSecret wraps plaintext in a redacting Secret.
func NewSecret(plaintext string) Secret {
	return Secret{plaintext: plaintext}
}

// String implements fmt.Stringer. It never returns the plaintext.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer for %#v renderings.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalJSON ensures a Secret serialized by mistake never carries
// plaintext onto disk or into a log sink that marshals structs as JSON.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}

// Expose returns the wrapped plaintext. Callers must not log or persist
// the returned value directly.
func (s Secret) Expose() string { return s.plaintext }

// IsZero reports whether the secret wraps the empty string.
func (s Secret) IsZero() bool { return s.plaintext == "" }
