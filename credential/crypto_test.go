package credential

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/njfio/tau/tauerrors"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := EncryptSecret("sk-super-secret", ModeKeyed, "correct-horse-battery")
	require.NoError(t, err)
	require.Contains(t, enc, encPrefix)

	plain, err := DecryptSecret(enc, ModeKeyed, "correct-horse-battery")
	require.NoError(t, err)
	require.Equal(t, "sk-super-secret", plain)
}

func TestDecryptWrongKeyFailsIntegrity(t *testing.T) {
	enc, err := EncryptSecret("sk-super-secret", ModeKeyed, "correct-horse-battery")
	require.NoError(t, err)

	_, err = DecryptSecret(enc, ModeKeyed, "wrong-password-here")
	require.Error(t, err)
	require.Equal(t, tauerrors.CodeTagMismatch, tauerrors.CodeOf(err))
}

func TestEncryptShortKeyRejected(t *testing.T) {
	_, err := EncryptSecret("secret", ModeKeyed, "short")
	require.Error(t, err)
}

func TestEncryptEmptyPlaintextRejected(t *testing.T) {
	_, err := EncryptSecret("   ", ModeKeyed, "longenoughkey")
	require.Error(t, err)

	_, err = EncryptSecret("", ModeNone, "")
	require.Error(t, err)
}

func TestModeNoneRoundTrip(t *testing.T) {
	enc, err := EncryptSecret("  plain-value  ", ModeNone, "")
	require.NoError(t, err)
	require.Equal(t, "plain-value", enc)

	plain, err := DecryptSecret(enc, ModeNone, "")
	require.NoError(t, err)
	require.Equal(t, "plain-value", plain)
}

func TestDecryptMissingPrefixRejected(t *testing.T) {
	_, err := DecryptSecret("not-the-right-format", ModeKeyed, "longenoughkey")
	require.Error(t, err)
	require.Equal(t, tauerrors.CodeMissingPrefix, tauerrors.CodeOf(err))
}

func TestDecryptTruncatedPayloadRejected(t *testing.T) {
	_, err := DecryptSecret(encPrefix+"YWJj", ModeKeyed, "longenoughkey")
	require.Error(t, err)
	require.Equal(t, tauerrors.CodeTruncatedPayload, tauerrors.CodeOf(err))
}

func TestSecretNeverLeaksViaFormatting(t *testing.T) {
	s := NewSecret("top-secret-value")
	require.Equal(t, "[REDACTED]", s.String())
	require.NotContains(t, s.String(), "top-secret-value")

	data, err := s.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `"[REDACTED]"`, string(data))
}
