package mimetypes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		expected MIME
		want     bool
	}{
		{"Plain text with charset", "text/plain; charset=utf-8", TextPlain, true},
		{"PDF", "application/pdf", ApplicationPDF, true},
		{"Upper case PNG", "IMAGE/PNG", ImagePNG, true},
		{"JPEG", "image/jpeg", ImageJPEG, true},
		{"Mismatch", "text/plain; charset=utf-8", ApplicationPDF, false},
		{"Invalid MIME", "not a mime", TextPlain, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			_, ok := Matches(tt.declared, tt.expected)
			req.Equal(tt.want, ok)
		})
	}
}

func TestNormalize_unparsable_is_unknown(t *testing.T) {
	req := require.New(t)
	req.Equal(Unknown, Normalize(""))
	req.Equal(OctetStream, Normalize("application/octet-stream; name=a.bin"))
}

func TestIsImage(t *testing.T) {
	req := require.New(t)
	req.True(IsImage("image/webp"))
	req.True(IsImage("image/gif; foo=bar"))
	req.False(IsImage("application/pdf"))
	req.False(IsImage("imagery"))
}
