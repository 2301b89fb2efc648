package api

import (
	"crypto/rand"
	"regexp"
)

const (
	uidLetters  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	uidAlphanum = uidLetters + "0123456789"
	uidLength   = 11
)

// UIDPattern matches a valid DHIS2 UID: 11 alphanumeric characters
var UIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]{11}$`)

// GenerateLocalUID produces a DHIS2-shaped UID locally (letter followed by
// 10 alphanumerics). Used when api/system/id is unreachable so object
// creation can proceed with a client-generated identifier.
func GenerateLocalUID() string {
	buf := make([]byte, uidLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform RNG is broken; fall back to
		// a fixed-ish but still valid UID rather than panic
		return "xLocal00001"
	}

	uid := make([]byte, uidLength)
	uid[0] = uidLetters[int(buf[0])%len(uidLetters)]
	for i := 1; i < uidLength; i++ {
		uid[i] = uidAlphanum[int(buf[i])%len(uidAlphanum)]
	}
	return string(uid)
}

// IsValidUID reports whether s looks like a DHIS2 UID
func IsValidUID(s string) bool {
	return UIDPattern.MatchString(s)
}
