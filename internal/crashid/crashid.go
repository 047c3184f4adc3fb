// Package crashid mints and validates crash report identifiers.
//
// A crash id is a 36-character string shaped like a UUIDv4 whose final seven
// characters are overwritten with a throttle digit and a two-digit-year
// date, so that the id alone records when and under what throttle decision
// a report was minted.
package crashid

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// idPattern matches the 36-char crash id shape: an 8-4-4-4 UUID prefix
// followed by a 12-char group whose first six characters are hex (shared
// with the UUID alphabet; the sixth is the throttle digit) and whose last
// six are the YYMMDD date.
var idPattern = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{6}[0-9]{6}$`)

// Mint builds a crash id from a minting timestamp and a throttle result
// digit (0 = accept, 1 = defer). The first 29 characters come from a fresh
// UUIDv4 string; the last 7 are replaced with the throttle digit and the
// two-digit-year date.
func Mint(t time.Time, throttleDigit int) string {
	base := uuid.NewString()
	prefix := base[:len(base)-7]
	return fmt.Sprintf("%s%d%s", prefix, throttleDigit, dateSuffix(t))
}

// dateSuffix renders a timestamp as YYMMDD.
func dateSuffix(t time.Time) string {
	return fmt.Sprintf("%02d%02d%02d", t.Year()%100, int(t.Month()), t.Day())
}

// Validate reports whether id has the crash-id shape. In strict mode the
// throttle digit (position -7) must additionally be 0 or 1.
func Validate(id string, strict bool) bool {
	if !idPattern.MatchString(id) {
		return false
	}
	if strict {
		digit := ExtractThrottle(id)
		if digit != 0 && digit != 1 {
			return false
		}
	}
	return true
}

// ExtractDate returns the minting date embedded in id as YYYYMMDD, prefixing
// the two-digit year with "20".
func ExtractDate(id string) string {
	if len(id) < 6 {
		return ""
	}
	return "20" + id[len(id)-6:]
}

// ExtractThrottle returns the throttle digit embedded in id (position -7).
// Returns -1 if id is too short to contain one.
func ExtractThrottle(id string) int {
	if len(id) < 7 {
		return -1
	}
	c := id[len(id)-7]
	if c < '0' || c > '9' {
		return -1
	}
	return int(c - '0')
}
