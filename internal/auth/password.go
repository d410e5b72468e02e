package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

const pbkdf2Prefix = "$pbkdf2-sha256$"

// VerifyPassword reports whether input matches stored. Unknown or malformed
// hashes are a mismatch, never an error.
func VerifyPassword(stored string, input string) bool {
	if stored == "" || input == "" {
		return false
	}
	switch {
	case isBcryptHash(stored):
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
	case strings.HasPrefix(stored, pbkdf2Prefix):
		return verifyPBKDF2(stored, input)
	}
	return false
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func IsPasswordHash(value string) bool {
	return isBcryptHash(value) || strings.HasPrefix(value, pbkdf2Prefix)
}

func isBcryptHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}

// verifyPBKDF2 checks passlib's "$pbkdf2-sha256$<rounds>$<salt>$<checksum>"
// format, where salt and checksum use the "adapted" base64 alphabet ('.'
// instead of '+', no padding).
func verifyPBKDF2(stored string, input string) bool {
	parts := strings.Split(strings.TrimPrefix(stored, pbkdf2Prefix), "$")
	if len(parts) != 3 {
		return false
	}
	rounds, err := strconv.Atoi(parts[0])
	if err != nil || rounds < 1 {
		return false
	}
	salt, err := decodeAB64(parts[1])
	if err != nil {
		return false
	}
	want, err := decodeAB64(parts[2])
	if err != nil || len(want) == 0 {
		return false
	}
	got := pbkdf2.Key([]byte(input), salt, rounds, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func decodeAB64(value string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.ReplaceAll(value, ".", "+"))
}

// dummyHash returns a bcrypt hash of random bytes at the production cost, so
// a lookup miss costs the same as a wrong password.
func dummyHash() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		buf = []byte("caixa-dummy-password-hash")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(base64.RawStdEncoding.EncodeToString(buf)), bcrypt.DefaultCost)
	if err != nil {
		return ""
	}
	return string(hash)
}
