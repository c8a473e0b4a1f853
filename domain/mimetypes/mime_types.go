package mimetypes

import (
	"mime"
	"strings"
)

type MIME string

const (
	Unknown     MIME = "unknown"
	TextPlain   MIME = "text/plain"
	OctetStream MIME = "application/octet-stream"

	ApplicationPDF MIME = "application/pdf"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"
	ImageWEBP MIME = "image/webp"
)

// Normalize strips parameters and lowercases a declared media type.
// Anything unparsable becomes Unknown.
func Normalize(declared string) MIME {
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return Unknown
	}
	return MIME(mt)
}

func Matches(declared string, expected MIME) (MIME, bool) {
	mt := Normalize(declared)
	return mt, mt == expected
}

// IsImage reports whether the declared media type is a displayable image.
func IsImage(declared string) bool {
	return strings.HasPrefix(string(Normalize(declared)), "image/")
}
