// Package sink defines the storage- and queue-agnostic contracts the
// crash-mover depends on, plus the object-layout helpers every concrete
// Store implementation shares.
package sink

import (
	"context"
	"fmt"
	"sort"

	"github.com/ocx/backend/internal/crashid"
	"github.com/ocx/backend/internal/crashreport"
	"github.com/ocx/backend/internal/health"
)

// Store persists the full crash artifact: dumps and the raw-crash JSON. It
// must write dumps before the raw-crash object (see DumpKey/RawCrashKey)
// so that any consumer seeing the raw-crash blob also sees all dumps.
// Save is expected to be idempotent; transient failures are retried by the
// crash-mover.
type Store interface {
	Save(ctx context.Context, report *crashreport.Report) error
}

// Publish posts a crash id as a single message to a notification topic or
// queue.
type Publish interface {
	Publish(ctx context.Context, crashID string) error
}

// WriteVerifier is implemented by Store adapters that can prove write
// permission at startup by writing a small probe object.
type WriteVerifier interface {
	VerifyWrite(ctx context.Context) error
}

// TopicVerifier is implemented by Publish adapters that can prove publish
// permission at startup. The probe body is the literal string "test";
// consumers must discard it.
type TopicVerifier interface {
	VerifyTopic(ctx context.Context) error
}

// HealthChecker is implemented by adapters that support periodic liveness
// checks, appending any error observed to state.
type HealthChecker interface {
	CheckHealth(ctx context.Context, state *health.State)
}

// ProbeBody is the literal payload VerifyTopic publishes; downstream
// consumers must discard messages with this exact body.
const ProbeBody = "test"

// dumpObjectName applies the compatibility rename: the canonical
// upload_file_minidump dump (and the empty name) is rewritten to the
// literal "dump" at object-key time only. The dump_names manifest still
// records the original, sanitized name.
func dumpObjectName(name string) string {
	if name == "" || name == "upload_file_minidump" {
		return "dump"
	}
	return name
}

// RawCrashKey returns the object key for a report's raw-crash JSON blob.
func RawCrashKey(crashID string) string {
	return fmt.Sprintf("v1/raw_crash/%s/%s", crashid.ExtractDate(crashID), crashID)
}

// DumpNamesKey returns the object key for a report's dump-names manifest.
func DumpNamesKey(crashID string) string {
	return fmt.Sprintf("v1/dump_names/%s", crashID)
}

// DumpKey returns the object key for a single named dump, applying the
// upload_file_minidump compatibility rename.
func DumpKey(dumpName, crashID string) string {
	return fmt.Sprintf("v1/%s/%s", dumpObjectName(dumpName), crashID)
}

// ProbeKey returns the object key VerifyWrite uses for its probe object.
func ProbeKey(probeID string) string {
	return fmt.Sprintf("test/testfile-%s.txt", probeID)
}

// BuildRawCrash assembles the JSON document written to RawCrashKey: the
// report's annotations plus the metadata block attached at ingestion
// (submitted_timestamp, payload, payload_compressed, collector_notes,
// dump_checksums, version). encoding/json sorts map[string]interface{} keys
// lexicographically on Marshal, which is what the object-store layout
// contract requires.
func BuildRawCrash(report *crashreport.Report) map[string]interface{} {
	doc := make(map[string]interface{}, len(report.Annotations)+6)
	for k, v := range report.Annotations {
		doc[k] = v
	}
	doc["submitted_timestamp"] = report.SubmittedTimestamp
	doc["payload"] = string(report.PayloadKind)
	doc["payload_compressed"] = compressedFlag(report.PayloadCompressed)
	doc["collector_notes"] = report.Notes
	doc["dump_checksums"] = report.DumpChecksums()
	doc["version"] = 2
	return doc
}

func compressedFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// SortedDumpNames returns the report's dump names in lexicographic order,
// for the dump_names manifest.
func SortedDumpNames(report *crashreport.Report) []string {
	names := make([]string, 0, len(report.Dumps))
	for name := range report.Dumps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
