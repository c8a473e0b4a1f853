package domain

import (
	"strings"
	"testing"

	"skill-chat/errors"

	"github.com/stretchr/testify/require"
)

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"single character", "a", nil},
		{"exact limit counted in runes", strings.Repeat("é", 1000), nil},
		{"empty", "", errors.ErrEmptyContent},
		{"only whitespace", " \n\t", errors.ErrEmptyContent},
		{"over limit", strings.Repeat("a", 1001), errors.ErrContentTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateContent(tt.content, 1000)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseMessageType(t *testing.T) {
	req := require.New(t)

	mt, err := ParseMessageType("")
	req.NoError(err)
	req.Equal(MessageTypeText, mt)

	mt, err = ParseMessageType("Image")
	req.NoError(err)
	req.Equal(MessageTypeImage, mt)

	_, err = ParseMessageType("video")
	req.ErrorIs(err, errors.ErrInvalidMessageType)
}

func TestResolveMessageType(t *testing.T) {
	image := Attachment{URL: "https://cdn/a.png", Name: "a.png", MimeType: "image/png", Size: 10}
	pdf := Attachment{URL: "https://cdn/b.pdf", Name: "b.pdf", MimeType: "application/pdf", Size: 20}

	tests := []struct {
		name        string
		declared    string
		attachments []Attachment
		want        MessageType
	}{
		{"no attachments defaults to text", "", nil, MessageTypeText},
		{"only images", "", []Attachment{image, image}, MessageTypeImage},
		{"mixed attachments", "", []Attachment{image, pdf}, MessageTypeFile},
		{"explicit type wins", "location", []Attachment{image}, MessageTypeLocation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			got, err := ResolveMessageType(tt.declared, tt.attachments)
			req.NoError(err)
			req.Equal(tt.want, got)
		})
	}
}

func TestResolveMessageType_rejects_unknown(t *testing.T) {
	req := require.New(t)
	_, err := ResolveMessageType("sticker", nil)
	req.ErrorIs(err, errors.ErrInvalidMessageType)
}
