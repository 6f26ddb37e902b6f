package session

import (
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// DefaultUser owns sessions invoked without any identity.
const DefaultUser = "default"

const userPrefixMax = 48

var (
	validID     = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9.-]+`)
)

// UserKey is the id-safe form of a user id: a readable prefix followed by a
// hash of the whole id, so users whose names sanitise alike never share it.
func UserKey(userID string) string {
	raw := strings.TrimSpace(userID)
	if raw == "" {
		raw = DefaultUser
	}
	sum := blake2b.Sum256([]byte(raw))

	prefix := strings.Trim(unsafeChars.ReplaceAllString(raw, "-"), "-")
	if len(prefix) > userPrefixMax {
		prefix = strings.TrimRight(prefix[:userPrefixMax], "-.")
	}
	if prefix == "" {
		prefix = "user"
	}
	return prefix + "-" + hex.EncodeToString(sum[:8])
}

// DeriveSessionID buckets a user's queries by UTC day, so one user reuses one
// memory for a day and then rotates.
func DeriveSessionID(userID string, at time.Time) string {
	return UserKey(userID) + "_" + at.UTC().Format("20060102")
}

// ValidID reports whether id is usable as a session identifier. Persisters
// rely on it to keep ids safe as file names and keys.
func ValidID(id string) bool {
	return validID.MatchString(id) && id != "." && id != ".."
}

// inNamespace reports whether id lies in the session namespace of userID,
// which every id derived for that user does.
func inNamespace(userID, id string) bool {
	return strings.HasPrefix(id, UserKey(userID)+"_")
}
