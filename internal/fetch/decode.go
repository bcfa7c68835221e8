package fetch

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// fallbackCharset is what DetermineEncoding reports when it found no hint.
const fallbackCharset = "windows-1252"

// Decode converts body to UTF-8. The charset comes from the content type
// or a meta tag when present and is detected from the bytes otherwise.
// Undecodable input is returned unchanged.
func Decode(body []byte, contentType string) (string, string) {
	_, name, certain := charset.DetermineEncoding(body, contentType)
	if !certain && name == fallbackCharset {
		if utf8.Valid(body) {
			return string(body), "utf-8"
		}
		name = DetectCharset(body)
	}
	if name == "utf-8" {
		return string(body), name
	}
	r, err := charset.NewReaderLabel(name, bytes.NewReader(body))
	if err != nil {
		return string(body), "utf-8"
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return string(body), "utf-8"
	}
	return string(out), name
}

// DetectCharset guesses the charset of data, defaulting to utf-8.
func DetectCharset(data []byte) string {
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	name := strings.ToLower(result.Charset)
	if name == "" {
		return "utf-8"
	}
	return name
}
