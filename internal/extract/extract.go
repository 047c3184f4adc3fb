// Package extract turns an HTTP crash submission into a crashreport.Report,
// handling optional gzip framing, multipart parsing, the JSON-vs-form-field
// annotation split, and dump-name sanitization.
package extract

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/ocx/backend/internal/crashreport"
)

// maxPartBytes bounds how much of any single multipart part is buffered in
// memory.
const maxPartBytes = 20 * 1024 * 1024

// Reason is a machine-readable malformed-report reason code.
type Reason string

const (
	ReasonNoContentType          Reason = "no_content_type"
	ReasonWrongContentType       Reason = "wrong_content_type"
	ReasonNoBoundary             Reason = "no_boundary"
	ReasonNoContentLength        Reason = "no_content_length"
	ReasonBadGzip                Reason = "bad_gzip"
	ReasonInvalidJSON            Reason = "invalid_json"
	ReasonInvalidJSONValue       Reason = "invalid_json_value"
	ReasonInvalidAnnotationValue Reason = "invalid_annotation_value"
	ReasonInvalidPayloadStruct   Reason = "invalid_payload_structure"
	ReasonNoAnnotations          Reason = "no_annotations"
	ReasonHasJSONAndKV           Reason = "has_json_and_kv"
)

// MalformedError is returned when a submission cannot be turned into a
// report. The Reason is surfaced verbatim in the HTTP response body as
// "Discarded=malformed_<reason>".
type MalformedError struct {
	Reason Reason
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed crash report: %s", e.Reason)
}

func malformed(reason Reason) error {
	return &MalformedError{Reason: reason}
}

// Extract parses the given headers/content-length/body into a Report, per
// the algorithm in the ingestion pipeline specification. headers is
// typically an *http.Request's Header.
func Extract(headers http.Header, contentLength int64, body io.Reader) (*crashreport.Report, error) {
	contentType := headers.Get("Content-Type")
	if contentType == "" {
		return nil, malformed(ReasonNoContentType)
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, malformed(ReasonWrongContentType)
	}
	if mediaType != "multipart/form-data" && mediaType != "multipart/mixed" {
		return nil, malformed(ReasonWrongContentType)
	}
	boundary, ok := params["boundary"]
	if !ok || boundary == "" {
		return nil, malformed(ReasonNoBoundary)
	}

	if contentLength <= 0 {
		return nil, malformed(ReasonNoContentLength)
	}

	compressed := false
	if strings.EqualFold(headers.Get("Content-Encoding"), "gzip") {
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, malformed(ReasonBadGzip)
		}
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, malformed(ReasonBadGzip)
		}
		decompressed, err := io.ReadAll(gz)
		if err != nil {
			return nil, malformed(ReasonBadGzip)
		}
		body = bytes.NewReader(decompressed)
		compressed = true
	}

	report := crashreport.New()
	report.PayloadCompressed = compressed

	hasJSON, hasKV := false, false

	mr := multipart.NewReader(body, boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, malformed(ReasonInvalidPayloadStruct)
		}

		name := part.FormName()
		if name == "" {
			part.Close()
			continue
		}

		partContentType := part.Header.Get("Content-Type")
		filename := part.FileName()
		// A part with no Content-Type header is treated as text/plain.
		isText := partContentType == "text/plain" || partContentType == ""

		data, err := io.ReadAll(io.LimitReader(part, maxPartBytes))
		part.Close()
		if err != nil {
			return nil, malformed(ReasonInvalidPayloadStruct)
		}

		switch {
		case partContentType == "application/json":
			obj, err := decodeJSONObject(data)
			if err != nil {
				return nil, err
			}
			report.Annotations = obj
			hasJSON = true

		case isText && filename == "":
			if !utf8.Valid(data) {
				return nil, malformed(ReasonInvalidAnnotationValue)
			}
			report.Annotations[name] = string(data)
			hasKV = true

		default:
			sanitized := SanitizeDumpName(name)
			report.Dumps[sanitized] = data
			if partContentType != "" && partContentType != "application/octet-stream" {
				report.AddNote(fmt.Sprintf("Unexpected content type %q for dump %q.", partContentType, sanitized))
			}
		}
	}

	if len(report.Annotations) == 0 {
		return nil, malformed(ReasonNoAnnotations)
	}
	if hasJSON && hasKV {
		return nil, malformed(ReasonHasJSONAndKV)
	}
	if hasJSON {
		report.PayloadKind = crashreport.PayloadJSON
	} else {
		report.PayloadKind = crashreport.PayloadMultipart
	}

	return report, nil
}

// decodeJSONObject parses data as a JSON value and requires it to be an
// object, returning its entries coerced to text.
func decodeJSONObject(data []byte) (map[string]string, error) {
	if !json.Valid(data) {
		return nil, malformed(ReasonInvalidJSON)
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, malformed(ReasonInvalidJSON)
	}
	obj, ok := generic.(map[string]interface{})
	if !ok {
		return nil, malformed(ReasonInvalidJSONValue)
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		out[k] = coerceJSONValue(v)
	}
	return out, nil
}

func coerceJSONValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return "None"
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

// SanitizeDumpName keeps only [A-Za-z0-9_] and truncates to 30 characters.
// It is idempotent: SanitizeDumpName(SanitizeDumpName(x)) == SanitizeDumpName(x).
func SanitizeDumpName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > 30 {
		s = s[:30]
	}
	return s
}
