// Command probe posts a synthetic multipart crash report to a running
// collector's /submit endpoint, for smoke-testing a deployment without a
// real native client.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
)

func main() {
	url := flag.String("url", "http://localhost:8080/submit", "collector /submit URL")
	product := flag.String("product", "Firefox", "ProductName annotation")
	channel := flag.String("channel", "release", "ReleaseChannel annotation")
	version := flag.String("version", "120.0", "Version annotation")
	flag.Parse()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	fields := map[string]string{
		"ProductName":    *product,
		"Version":        *version,
		"ReleaseChannel": *channel,
		"BuildID":        "20260101000000",
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			log.Fatalf("probe: write field %s: %v", name, err)
		}
	}

	dumpWriter, err := w.CreateFormFile("upload_file_minidump", "minidump.dmp")
	if err != nil {
		log.Fatalf("probe: create dump part: %v", err)
	}
	if _, err := dumpWriter.Write(syntheticMinidump()); err != nil {
		log.Fatalf("probe: write dump: %v", err)
	}

	if err := w.Close(); err != nil {
		log.Fatalf("probe: close writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, *url, body)
	if err != nil {
		log.Fatalf("probe: build request: %v", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("probe: request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("probe: read response: %v", err)
	}

	fmt.Fprintf(os.Stdout, "status=%d body=%s\n", resp.StatusCode, respBody)
}

// syntheticMinidump returns a small byte blob standing in for a real
// minidump: the collector never parses dump contents, only stores them.
func syntheticMinidump() []byte {
	return []byte("MDMP-synthetic-probe-payload")
}
