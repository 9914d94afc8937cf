package credential

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/njfio/tau/tauerrors"
)

// EncryptionMode selects how StoredProviderCredential/StoredIntegrationCredential
// secrets are rendered on disk.
type EncryptionMode string

const (
	// ModeNone stores trimmed plaintext directly (development only).
	ModeNone EncryptionMode = "none"
	// ModeKeyed applies the keyed-stream encryption scheme of §4.1.
	ModeKeyed EncryptionMode = "keyed"
)

const (
	encPrefix  = "enc:v1:"
	nonceLen   = 16
	tagLen     = 32
	tagContext = "pi-credential-store-v1"
	minKeyLen  = 8
)

// deriveKey turns an operator-supplied passphrase into a 32-byte key via
// SHA-256, matching the spec's "derives a 32-byte key via SHA-256".
func deriveKey(key string) [32]byte {
	return sha256.Sum256([]byte(key))
}

// newNonce derives a 16-byte nonce from wall-clock time and pid, hashed
// through SHA-256 and truncated, per §4.1. The exact byte layout of the
// hashed material is an implementation detail (see DESIGN.md open
// question resolution); only uniqueness-in-practice matters.
func newNonce() [nonceLen]byte {
	var buf [20]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(time.Now().UnixMilli()))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(os.Getpid()))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(time.Now().UnixNano()))
	digest := sha256.Sum256(buf[:])
	var nonce [nonceLen]byte
	copy(nonce[:], digest[:nonceLen])
	return nonce
}

// keystream produces length bytes of SHA-256(key||nonce||counter_le)
// blocks, counter starting at 0, matching the spec's counter-mode XOR
// construction.
func keystream(key [32]byte, nonce [nonceLen]byte, length int) []byte {
	out := make([]byte, 0, length+sha256.Size)
	var counter uint64
	for len(out) < length {
		var counterBytes [8]byte
		binary.LittleEndian.PutUint64(counterBytes[:], counter)
		h := sha256.New()
		h.Write(key[:])
		h.Write(nonce[:])
		h.Write(counterBytes[:])
		out = append(out, h.Sum(nil)...)
		counter++
	}
	return out[:length]
}

// computeTag computes the 32-byte integrity tag over the ciphertext.
func computeTag(key [32]byte, nonce [nonceLen]byte, ciphertext []byte) [tagLen]byte {
	h := sha256.New()
	h.Write(key[:])
	h.Write(nonce[:])
	h.Write(ciphertext)
	h.Write([]byte(tagContext))
	var tag [tagLen]byte
	copy(tag[:], h.Sum(nil))
	return tag
}

// EncryptSecret implements encrypt_secret from §4.1.
func EncryptSecret(plaintext string, mode EncryptionMode, key string) (string, error) {
	trimmed := strings.TrimSpace(plaintext)

	switch mode {
	case ModeNone, "":
		if trimmed == "" {
			return "", tauerrors.New(tauerrors.CodeEmptyPlaintext, "cannot encrypt empty secret")
		}
		return trimmed, nil

	case ModeKeyed:
		if len(key) < minKeyLen {
			return "", tauerrors.New(tauerrors.CodeShortKey, "encryption key must be at least 8 characters")
		}
		if trimmed == "" {
			return "", tauerrors.New(tauerrors.CodeEmptyPlaintext, "cannot encrypt empty secret")
		}
		derived := deriveKey(key)
		nonce := newNonce()
		ks := keystream(derived, nonce, len(trimmed))
		ciphertext := make([]byte, len(trimmed))
		for i := range ciphertext {
			ciphertext[i] = trimmed[i] ^ ks[i]
		}
		tag := computeTag(derived, nonce, ciphertext)

		payload := make([]byte, 0, nonceLen+tagLen+len(ciphertext))
		payload = append(payload, nonce[:]...)
		payload = append(payload, tag[:]...)
		payload = append(payload, ciphertext...)
		return encPrefix + base64.StdEncoding.EncodeToString(payload), nil

	default:
		return "", tauerrors.Newf(tauerrors.CodeUnsupportedSchema, "unsupported encryption mode %q", mode)
	}
}

// DecryptSecret implements decrypt_secret from §4.1.
func DecryptSecret(encoded string, mode EncryptionMode, key string) (string, error) {
	switch mode {
	case ModeNone, "":
		trimmed := strings.TrimSpace(encoded)
		if trimmed == "" {
			return "", tauerrors.New(tauerrors.CodeEmptyPlaintext, "decrypted secret is empty")
		}
		return trimmed, nil

	case ModeKeyed:
		if len(key) < minKeyLen {
			return "", tauerrors.New(tauerrors.CodeShortKey, "decryption key must be at least 8 characters")
		}
		if !strings.HasPrefix(encoded, encPrefix) {
			return "", tauerrors.New(tauerrors.CodeMissingPrefix, "encoded secret missing enc:v1: prefix")
		}
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(encoded, encPrefix))
		if err != nil {
			return "", tauerrors.New(tauerrors.CodeTruncatedPayload, "encoded secret is not valid base64").WithCause(err)
		}
		if len(raw) < nonceLen+tagLen {
			return "", tauerrors.New(tauerrors.CodeTruncatedPayload, "encoded secret shorter than nonce+tag")
		}

		var nonce [nonceLen]byte
		copy(nonce[:], raw[:nonceLen])
		gotTag := raw[nonceLen : nonceLen+tagLen]
		ciphertext := raw[nonceLen+tagLen:]

		derived := deriveKey(key)
		wantTag := computeTag(derived, nonce, ciphertext)
		if subtle.ConstantTimeCompare(wantTag[:], gotTag) != 1 {
			return "", tauerrors.New(tauerrors.CodeTagMismatch, "secret integrity tag mismatch")
		}

		ks := keystream(derived, nonce, len(ciphertext))
		plainBytes := make([]byte, len(ciphertext))
		for i := range plainBytes {
			plainBytes[i] = ciphertext[i] ^ ks[i]
		}
		if len(plainBytes) == 0 {
			return "", tauerrors.New(tauerrors.CodeEmptyPlaintext, "decrypted secret is empty")
		}
		if !utf8.Valid(plainBytes) {
			return "", tauerrors.New(tauerrors.CodeNonUTF8Plaintext, "decrypted secret is not valid UTF-8")
		}
		return string(plainBytes), nil

	default:
		return "", tauerrors.Newf(tauerrors.CodeUnsupportedSchema, "unsupported encryption mode %q", mode)
	}
}
