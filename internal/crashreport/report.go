// Package crashreport defines the in-memory crash report value that flows
// from the multipart extractor through the throttler and into the
// crash-mover.
package crashreport

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// PayloadKind records whether annotations arrived as multipart form fields
// or as a single JSON-encoded field named "extra".
type PayloadKind string

const (
	PayloadMultipart PayloadKind = "multipart"
	PayloadJSON      PayloadKind = "json"
)

// ForbiddenAnnotations are stripped from a report before it is handed to the
// store; each strip appends a note to Notes.
var ForbiddenAnnotations = []string{
	"Email",
	"TelemetryClientId",
	"TelemetryServerURL",
	"TelemetrySessionId",
}

// Report is a single-owner value: created by the extractor, consumed by the
// mover, discarded after terminal handoff.
type Report struct {
	Annotations       map[string]string
	Dumps             map[string][]byte
	PayloadKind       PayloadKind
	PayloadCompressed bool
	Notes             []string
	CrashID           string

	// SubmittedTimestamp is the ISO-8601 UTC time the ingestion endpoint
	// recorded the submission, set by the handler at step 3 of §4.6.
	SubmittedTimestamp string
}

// New returns an empty report ready for the extractor to populate.
func New() *Report {
	return &Report{
		Annotations: make(map[string]string),
		Dumps:       make(map[string][]byte),
	}
}

// AddNote appends a diagnostic note.
func (r *Report) AddNote(note string) {
	r.Notes = append(r.Notes, note)
}

// StripForbidden removes the forbidden annotation keys in place, appending a
// note for each one removed. Returns the number of keys removed.
func (r *Report) StripForbidden() int {
	removed := 0
	for _, key := range ForbiddenAnnotations {
		if _, ok := r.Annotations[key]; ok {
			delete(r.Annotations, key)
			r.AddNote(fmt.Sprintf("Removed %s from raw crash.", key))
			removed++
		}
	}
	return removed
}

// DumpChecksums returns the SHA-256 hex digest of every dump, keyed by dump
// name, for inclusion in the raw-crash metadata block.
func (r *Report) DumpChecksums() map[string]string {
	sums := make(map[string]string, len(r.Dumps))
	for name, data := range r.Dumps {
		sum := sha256.Sum256(data)
		sums[name] = hex.EncodeToString(sum[:])
	}
	return sums
}
