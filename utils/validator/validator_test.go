package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMediaKindOf(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		wantKind    MediaKind
		wantOK      bool
	}{
		{"jpeg", "image/jpeg", MediaKindImage, true},
		{"png", "image/png", MediaKindImage, true},
		{"quicktime", "video/quicktime", MediaKindVideo, true},
		{"mp4 with params", "video/mp4; codecs=avc1", MediaKindVideo, true},
		{"mixed case", "Image/JPEG", MediaKindImage, true},
		{"pdf rejected", "application/pdf", "", false},
		{"text rejected", "text/html", "", false},
		{"octet stream rejected", "application/octet-stream", "", false},
		{"empty rejected", "", "", false},
		{"bare prefix rejected", "image", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := MediaKindOf(tt.contentType)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}
