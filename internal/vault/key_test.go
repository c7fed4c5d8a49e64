package vault

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKey(t *testing.T) {
	raw := make([]byte, KeySize)
	for i := range raw {
		raw[i] = byte(i)
	}

	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{"hex encoded", hex.EncodeToString(raw), false},
		{"uppercase hex", strings.ToUpper(hex.EncodeToString(raw)), false},
		{"std base64", base64.StdEncoding.EncodeToString(raw), false},
		{"url base64", base64.URLEncoding.EncodeToString(raw), false},
		{"surrounding whitespace", "  " + hex.EncodeToString(raw) + "\n", false},
		{"empty", "", true},
		{"too short hex", hex.EncodeToString(raw[:16]), true},
		{"base64 of 16 bytes", base64.StdEncoding.EncodeToString(raw[:16]), true},
		{"base64 of 33 bytes", base64.StdEncoding.EncodeToString(append(raw, 0xff)), true},
		{"garbage", "not-a-key", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := LoadKey(tt.secret)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, raw, key)
		})
	}
}

func TestNewCipher_KeySize(t *testing.T) {
	_, err := NewCipher(make([]byte, 16))
	assert.Error(t, err)

	c, err := NewCipher(make([]byte, KeySize))
	require.NoError(t, err)
	assert.NotNil(t, c)
}
