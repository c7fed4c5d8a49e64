package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	c, err := NewCipher(key)
	require.NoError(t, err)
	return c
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c := testCipher(t)

	sizes := []int{0, 1, 10, aes.BlockSize, aes.BlockSize + 1, 4096, 1 << 20}
	for _, size := range sizes {
		plaintext := make([]byte, size)
		_, err := rand.Read(plaintext)
		require.NoError(t, err)

		var ciphertext bytes.Buffer
		res, err := c.EncryptTo(&ciphertext, bytes.NewReader(plaintext))
		require.NoError(t, err)

		assert.Len(t, res.IV, IVSize)
		assert.Len(t, res.Tag, TagSize)
		assert.Equal(t, int64(size), res.Size)
		assert.Equal(t, int64(ciphertext.Len()), res.Size)
		if size > 0 {
			assert.NotEqual(t, plaintext, ciphertext.Bytes())
		}

		require.NoError(t, c.VerifyTag(res.IV, res.Tag, bytes.NewReader(ciphertext.Bytes())))

		reader, err := c.NewDecryptReader(bytes.NewReader(ciphertext.Bytes()), res.IV)
		require.NoError(t, err)
		decrypted, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestEncryptTo_FreshIVPerObject(t *testing.T) {
	c := testCipher(t)
	plaintext := []byte("same input twice")

	var first, second bytes.Buffer
	res1, err := c.EncryptTo(&first, bytes.NewReader(plaintext))
	require.NoError(t, err)
	res2, err := c.EncryptTo(&second, bytes.NewReader(plaintext))
	require.NoError(t, err)

	assert.NotEqual(t, res1.IV, res2.IV)
	assert.NotEqual(t, first.Bytes(), second.Bytes())
}

// 篡改任意一个密文字节都必须被完整性校验拒绝
func TestVerifyTag_TamperDetection(t *testing.T) {
	c := testCipher(t)
	plaintext := []byte("payload that must not be silently altered")

	var ciphertext bytes.Buffer
	res, err := c.EncryptTo(&ciphertext, bytes.NewReader(plaintext))
	require.NoError(t, err)

	data := ciphertext.Bytes()
	for i := range data {
		tampered := make([]byte, len(data))
		copy(tampered, data)
		tampered[i] ^= 0x01

		err := c.VerifyTag(res.IV, res.Tag, bytes.NewReader(tampered))
		assert.ErrorIs(t, err, ErrDecryptionFailed, "flipped byte %d went undetected", i)
	}
}

func TestVerifyTag_TamperedTag(t *testing.T) {
	c := testCipher(t)

	var ciphertext bytes.Buffer
	res, err := c.EncryptTo(&ciphertext, bytes.NewReader([]byte("content")))
	require.NoError(t, err)

	tag := make([]byte, len(res.Tag))
	copy(tag, res.Tag)
	tag[0] ^= 0x80
	assert.ErrorIs(t, c.VerifyTag(res.IV, tag, bytes.NewReader(ciphertext.Bytes())), ErrDecryptionFailed)

	assert.ErrorIs(t, c.VerifyTag(res.IV, res.Tag[:8], bytes.NewReader(ciphertext.Bytes())), ErrDecryptionFailed)
}

func TestDecrypt_WrongKey(t *testing.T) {
	c1 := testCipher(t)
	c2 := testCipher(t)
	plaintext := []byte("secret bytes")

	var ciphertext bytes.Buffer
	res, err := c1.EncryptTo(&ciphertext, bytes.NewReader(plaintext))
	require.NoError(t, err)

	assert.ErrorIs(t, c2.VerifyTag(res.IV, res.Tag, bytes.NewReader(ciphertext.Bytes())), ErrDecryptionFailed)

	reader, err := c2.NewDecryptReader(bytes.NewReader(ciphertext.Bytes()), res.IV)
	require.NoError(t, err)
	decrypted, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, decrypted)
}

// 无标签的历史对象必须仍可通过遗留模式解密
func TestDecrypt_LegacyMode(t *testing.T) {
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	c, err := NewCipher(key)
	require.NoError(t, err)

	plaintext := []byte("object written before authenticated encryption was introduced")

	// 历史写入方使用完整的 16 字节 IV 直接作为计数器块
	iv := make([]byte, aes.BlockSize)
	_, err = rand.Read(iv)
	require.NoError(t, err)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv).XORKeyStream(ciphertext, plaintext)

	assert.Equal(t, ModeLegacy, ModeFor(nil))

	reader, err := c.NewDecryptReader(bytes.NewReader(ciphertext), iv)
	require.NoError(t, err)
	decrypted, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestModeFor(t *testing.T) {
	assert.Equal(t, ModeLegacy, ModeFor(nil))
	assert.Equal(t, ModeLegacy, ModeFor([]byte{}))
	assert.Equal(t, ModeAuthenticated, ModeFor(make([]byte, TagSize)))
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestEncryptTo_ReadError(t *testing.T) {
	c := testCipher(t)

	var ciphertext bytes.Buffer
	_, err := c.EncryptTo(&ciphertext, &failingReader{err: io.ErrUnexpectedEOF})
	assert.Error(t, err)
}
