package http

import (
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// ContentType returns the declared media type, or a sniffed one when the
// server sent none or a generic binary type.
func ContentType(header string, body []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" {
		return header
	}
	return mimetype.Detect(body).String()
}

// DecodeText converts body to UTF-8. The charset parameter of contentType
// wins, then valid UTF-8 as is, then the detected charset.
func DecodeText(body []byte, contentType string) string {
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if label := params["charset"]; label != "" {
			if s, ok := decodeWith(body, label); ok {
				return s
			}
		}
	}

	if utf8.Valid(body) {
		return string(body)
	}

	if s, ok := decodeWith(body, DetectCharset(body)); ok {
		return s
	}
	return strings.ToValidUTF8(string(body), string(utf8.RuneError))
}

// DetectCharset detects and returns the charset of body
func DetectCharset(body []byte) string {
	result, err := chardet.NewTextDetector().DetectBest(body)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

func decodeWith(body []byte, label string) (string, bool) {
	enc, _ := charset.Lookup(label)
	if enc == nil {
		return "", false
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", false
	}
	return string(out), true
}
