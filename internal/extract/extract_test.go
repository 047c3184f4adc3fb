package extract

import (
	"bytes"
	"compress/gzip"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMultipart writes a multipart body with plain text annotation fields
// and file parts, returning the body bytes and boundary.
func buildMultipart(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, data := range files {
		fw, err := w.CreateFormFile(name, name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.Boundary()
}

func TestExtract_Seed1_NightlyAccept(t *testing.T) {
	body, boundary := buildMultipart(t,
		map[string]string{"ProductName": "Firefox", "Version": "60.0a1", "ReleaseChannel": "nightly"},
		map[string][]byte{"upload_file_minidump": []byte("abcd1234")},
	)
	h := http.Header{}
	h.Set("Content-Type", "multipart/form-data; boundary="+boundary)

	report, err := Extract(h, int64(body.Len()), body)
	require.NoError(t, err)
	assert.Equal(t, "Firefox", report.Annotations["ProductName"])
	assert.Equal(t, []byte("abcd1234"), report.Dumps["upload_file_minidump"])
}

func TestExtract_NoContentType(t *testing.T) {
	h := http.Header{}
	_, err := Extract(h, 10, bytes.NewReader(nil))
	require.Error(t, err)
	var merr *MalformedError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, ReasonNoContentType, merr.Reason)
}

func TestExtract_WrongContentType(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	_, err := Extract(h, 10, bytes.NewReader([]byte("{}")))
	var merr *MalformedError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, ReasonWrongContentType, merr.Reason)
}

func TestExtract_NoBoundary(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "multipart/form-data")
	_, err := Extract(h, 10, bytes.NewReader(nil))
	var merr *MalformedError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, ReasonNoBoundary, merr.Reason)
}

func TestExtract_NoContentLength(t *testing.T) {
	_, boundary := buildMultipart(t, map[string]string{"a": "b"}, nil)
	h := http.Header{}
	h.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	_, err := Extract(h, 0, bytes.NewReader(nil))
	var merr *MalformedError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, ReasonNoContentLength, merr.Reason)
}

func TestExtract_NoAnnotations(t *testing.T) {
	body, boundary := buildMultipart(t, nil, map[string][]byte{"upload_file_minidump": []byte("x")})
	h := http.Header{}
	h.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	_, err := Extract(h, int64(body.Len()), body)
	var merr *MalformedError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, ReasonNoAnnotations, merr.Reason)
}

func TestExtract_BadGzip(t *testing.T) {
	body, boundary := buildMultipart(t, map[string]string{"a": "b"}, nil)
	h := http.Header{}
	h.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	h.Set("Content-Encoding", "gzip")
	_, err := Extract(h, int64(body.Len()), body)
	var merr *MalformedError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, ReasonBadGzip, merr.Reason)
}

func TestExtract_GzipFraming(t *testing.T) {
	inner, boundary := buildMultipart(t, map[string]string{"ProductName": "Firefox"}, nil)

	var gzBuf bytes.Buffer
	gw := gzip.NewWriter(&gzBuf)
	_, err := gw.Write(inner.Bytes())
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	h := http.Header{}
	h.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	h.Set("Content-Encoding", "gzip")

	report, err := Extract(h, int64(gzBuf.Len()), &gzBuf)
	require.NoError(t, err)
	assert.True(t, report.PayloadCompressed)
	assert.Equal(t, "Firefox", report.Annotations["ProductName"])
}

func TestExtract_JSONAnnotations(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="extra"`},
		"Content-Type":        {"application/json"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte(`{"ProductName":"Firefox","Count":3}`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	h := http.Header{}
	h.Set("Content-Type", "multipart/form-data; boundary="+w.Boundary())
	report, err := Extract(h, int64(buf.Len()), &buf)
	require.NoError(t, err)
	assert.Equal(t, "Firefox", report.Annotations["ProductName"])
	assert.Equal(t, "3", report.Annotations["Count"])
}

func TestExtract_JSONAndKVConflict(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("ProductName", "Firefox"))
	part, err := w.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="extra"`},
		"Content-Type":        {"application/json"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte(`{"Foo":"bar"}`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	h := http.Header{}
	h.Set("Content-Type", "multipart/form-data; boundary="+w.Boundary())
	_, err = Extract(h, int64(buf.Len()), &buf)
	var merr *MalformedError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, ReasonHasJSONAndKV, merr.Reason)
}

func TestSanitizeDumpName(t *testing.T) {
	assert.Equal(t, "uploadfileminidump", SanitizeDumpName("upload-file!minidump"))
	long := ""
	for i := 0; i < 40; i++ {
		long += "a"
	}
	assert.Len(t, SanitizeDumpName(long), 30)
}

func TestSanitizeDumpName_Idempotent(t *testing.T) {
	inputs := []string{"abc_123", "weird!!name++", "", "dump.name.ext"}
	for _, in := range inputs {
		once := SanitizeDumpName(in)
		twice := SanitizeDumpName(once)
		assert.Equal(t, once, twice)
		assert.LessOrEqual(t, len(once), 30)
	}
}
