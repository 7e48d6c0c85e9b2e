package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// Unambiguous alphabet for backup codes: no 0/O, 1/I/L pairs.
const backupCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// NewOpaqueToken returns a base64url-encoded random value of size random
// bytes. Used for CSRF tokens, verification tokens, and reset tokens.
func NewOpaqueToken(size int) (string, error) {
	if size < 16 {
		return "", errors.New("opaque token size below minimum")
	}
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashToken is the one-way hash applied to opaque tokens and signed refresh
// tokens before persistence.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// HashTokenHex is HashToken rendered as hex, for when the digest is used
// as a map or bucket key rather than persisted.
func HashTokenHex(token string) string {
	sum := HashToken(token)
	return hex.EncodeToString(sum[:])
}

// NewBackupCode returns a random code of the given length drawn from the
// backup-code alphabet. Codes are generated upper-case; verification
// canonicalizes input the same way.
func NewBackupCode(length int) (string, error) {
	if length < 8 {
		return "", errors.New("backup code length below minimum")
	}

	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(length)
	for _, v := range raw {
		b.WriteByte(backupCodeAlphabet[int(v)%len(backupCodeAlphabet)])
	}
	return b.String(), nil
}

// CanonicalizeBackupCode normalizes user input before hashing: trimmed,
// upper-cased, separators removed.
func CanonicalizeBackupCode(code string) string {
	code = strings.TrimSpace(code)
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	return strings.ToUpper(code)
}

// BackupCodeHash binds the code hash to its owning user so equal codes
// issued to different users never share a hash.
func BackupCodeHash(userID, canonicalCode string) [32]byte {
	return sha256.Sum256([]byte(userID + ":" + canonicalCode))
}
