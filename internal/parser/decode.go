package parser

import (
	"bytes"
	"io"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
)

// Decode converts a fetched page to UTF-8. The encoding is taken from the
// Content-Type header, a BOM or a <meta> charset, in that order; legacy
// forum pages are commonly served as GBK.
func Decode(body []byte, contentType string) string {
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" {
		return string(body)
	}

	decoded, err := io.ReadAll(enc.NewDecoder().Reader(bytes.NewReader(body)))
	if err != nil {
		log.Warnf("⚠️ Failed to decode page as %s, using raw bytes: %v", name, err)
		return string(body)
	}
	return string(decoded)
}
