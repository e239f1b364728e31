// Package pwhash implements the scrypt-based password hash used for the
// user table. A hash is encoded as base32 of a 1-byte version tag, a
// 30-byte random salt and the 64-byte scrypt key, 95 bytes in total.
// Changing any scrypt parameter requires bumping the version tag.
package pwhash

import (
	"bytes"
	"crypto/rand"
	"encoding/base32"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const (
	scryptN = 16384
	scryptR = 8
	scryptP = 1

	version = 0x01
	saltLen = 30
	keyLen  = 64

	decodedLen = 1 + saltLen + keyLen
)

// PWInfo holds the decoded parts of an encoded password hash.
type PWInfo struct {
	Salt       []byte
	ScryptHash []byte
}

// Generate hashes password with a fresh random salt and returns the
// encoded form suitable for the users section of the config file.
func Generate(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return "", fmt.Errorf("computing scrypt key: %w", err)
	}

	buf := make([]byte, 0, decodedLen)
	buf = append(buf, version)
	buf = append(buf, salt...)
	buf = append(buf, key...)
	return base32.StdEncoding.EncodeToString(buf), nil
}

// Parse decodes an encoded password hash. It fails if the input is not
// valid base32, has the wrong length, or carries an unknown version tag.
func Parse(encoded string) (PWInfo, error) {
	raw, err := base32.StdEncoding.DecodeString(encoded)
	if err != nil {
		return PWInfo{}, fmt.Errorf("decoding password hash: %w", err)
	}

	if len(raw) != decodedLen {
		return PWInfo{}, fmt.Errorf("invalid hash size %d, want %d", len(raw), decodedLen)
	}

	if raw[0] != version {
		return PWInfo{}, fmt.Errorf("invalid hash version %#x, want %#x", raw[0], version)
	}

	return PWInfo{
		Salt:       raw[1 : 1+saltLen],
		ScryptHash: raw[1+saltLen:],
	}, nil
}

// Check recomputes the scrypt key for password with the stored salt and
// reports whether it matches.
func Check(password string, info PWInfo) bool {
	key, err := scrypt.Key([]byte(password), info.Salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return false
	}
	return bytes.Equal(key, info.ScryptHash)
}
