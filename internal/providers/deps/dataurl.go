package deps

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
)

var errBadDataURL = errors.New("malformed data URL")

// decodeDataURL decodes an RFC 2397 data URL.
func decodeDataURL(raw string) (body []byte, mediaType string, err error) {
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return nil, "", errBadDataURL
	}
	header, data, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", errBadDataURL
	}

	isBase64 := false
	if h, found := strings.CutSuffix(header, ";base64"); found {
		header, isBase64 = h, true
	}
	mediaType = header
	if mediaType == "" || strings.HasPrefix(mediaType, ";") {
		mediaType = "text/plain" + mediaType
	}

	if isBase64 {
		data, err = url.PathUnescape(data)
		if err != nil {
			return nil, "", errBadDataURL
		}
		body, err = base64.StdEncoding.DecodeString(data)
		if err != nil {
			body, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "="))
		}
		if err != nil {
			return nil, "", errBadDataURL
		}
		return body, mediaType, nil
	}

	decoded, err := url.PathUnescape(data)
	if err != nil {
		return nil, "", errBadDataURL
	}
	return []byte(decoded), mediaType, nil
}
