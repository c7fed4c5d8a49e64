package vault

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/anoixa/media-vault/database/models"
	"github.com/anoixa/media-vault/cache/ristretto"
	"github.com/anoixa/media-vault/database/repo/albums"
	"github.com/anoixa/media-vault/internal/transcode"
	"github.com/anoixa/media-vault/storage"
)

// stubTranscoder 把输入复制为 mp4 输出，并在文件头打上标记
type stubTranscoder struct {
	tempDir string
	fail    bool
	called  int
}

func (s *stubTranscoder) Transcode(_ context.Context, inputPath string) (string, error) {
	s.called++
	if s.fail {
		return "", fmt.Errorf("ffmpeg exited with status 1")
	}
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return "", err
	}
	out, err := os.CreateTemp(s.tempDir, "transcode-*.mp4")
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := out.Write(append([]byte("mp4:"), data...)); err != nil {
		return "", err
	}
	return out.Name(), nil
}

func newTestService(t *testing.T, tr *stubTranscoder) (*Service, *storage.LocalStorage) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Album{}, &models.FileRecord{}))

	store, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	key := make([]byte, KeySize)
	_, err = rand.Read(key)
	require.NoError(t, err)
	cipher, err := NewCipher(key)
	require.NoError(t, err)

	var transcoder transcode.Transcoder
	if tr != nil {
		transcoder = tr
	}

	service := NewService(cipher, store, transcoder, albums.NewRepository(db), nil, t.TempDir(), time.Minute)
	return service, store
}

// makeFileHeader 构造 multipart 文件头
func makeFileHeader(t *testing.T, filename, contentType string, data []byte) *multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader := multipart.NewReader(&buf, writer.Boundary())
	form, err := reader.ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	headers := form.File["files"]
	require.Len(t, headers, 1)
	return headers[0]
}

func TestStoreUploadRoundTrip(t *testing.T) {
	service, _ := newTestService(t, nil)
	ctx := context.Background()

	payload := []byte("0123456789")
	album, err := service.StoreUpload(ctx, []*multipart.FileHeader{
		makeFileHeader(t, "photo.JPG", "image/jpeg", payload),
	})
	require.NoError(t, err)

	assert.Len(t, album.Token, 32)
	require.Len(t, album.Files, 1)
	record := album.Files[0]
	assert.Equal(t, "photo.JPG", record.OriginalName)
	assert.Equal(t, "image/jpeg", record.ContentType)
	assert.True(t, strings.HasSuffix(record.StoredName, ".jpg"))
	assert.Equal(t, int64(len(payload)), record.SizeBytes)
	assert.NotEmpty(t, record.IV)
	require.NotNil(t, record.AuthTag)

	stream, err := service.StreamObject(ctx, record.StoredName)
	require.NoError(t, err)
	defer stream.Close()

	plaintext, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, payload, plaintext)
	assert.Equal(t, "image/jpeg", stream.ContentType)
	assert.Equal(t, int64(len(payload)), stream.Size)
}

func TestStoreUploadEmptyBatch(t *testing.T) {
	service, _ := newTestService(t, nil)

	_, err := service.StoreUpload(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestStoreUploadUnsupportedType(t *testing.T) {
	service, _ := newTestService(t, nil)

	_, err := service.StoreUpload(context.Background(), []*multipart.FileHeader{
		makeFileHeader(t, "ok.jpg", "image/jpeg", []byte("img")),
		makeFileHeader(t, "notes.txt", "text/plain", []byte("hello")),
	})
	assert.ErrorIs(t, err, ErrUnsupportedMedia)
}

func TestStoreUploadTranscodesVideo(t *testing.T) {
	tr := &stubTranscoder{tempDir: t.TempDir()}
	service, _ := newTestService(t, tr)
	ctx := context.Background()

	album, err := service.StoreUpload(ctx, []*multipart.FileHeader{
		makeFileHeader(t, "clip.mov", "video/quicktime", []byte("raw-frames")),
	})
	require.NoError(t, err)
	require.Len(t, album.Files, 1)

	record := album.Files[0]
	assert.Equal(t, 1, tr.called)
	assert.Equal(t, "video/mp4", record.ContentType)
	assert.True(t, strings.HasSuffix(record.StoredName, ".mp4"))
	assert.Equal(t, "clip.mov", record.OriginalName)

	stream, err := service.StreamObject(ctx, record.StoredName)
	require.NoError(t, err)
	defer stream.Close()

	plaintext, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp4:raw-frames"), plaintext)
}

func TestStoreUploadTranscodeFailureAbortsBatch(t *testing.T) {
	tr := &stubTranscoder{tempDir: t.TempDir(), fail: true}
	service, store := newTestService(t, tr)

	_, err := service.StoreUpload(context.Background(), []*multipart.FileHeader{
		makeFileHeader(t, "still.png", "image/png", []byte("png-bytes")),
		makeFileHeader(t, "broken.mkv", "video/x-matroska", []byte("frames")),
	})
	require.ErrorIs(t, err, ErrTranscodeFailed)

	// 整批失败后存储目录里不应留下任何密文对象
	var leftovers []string
	root := store.BasePath()
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			leftovers = append(leftovers, path)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestStoreUploadLeavesNoTempFiles(t *testing.T) {
	tempDir := t.TempDir()
	service, _ := newTestService(t, nil)
	service.tempDir = tempDir

	_, err := service.StoreUpload(context.Background(), []*multipart.FileHeader{
		makeFileHeader(t, "a.png", "image/png", []byte("aaaa")),
		makeFileHeader(t, "b.png", "image/png", []byte("bbbb")),
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGetAlbum(t *testing.T) {
	service, _ := newTestService(t, nil)
	ctx := context.Background()

	album, err := service.StoreUpload(ctx, []*multipart.FileHeader{
		makeFileHeader(t, "one.png", "image/png", []byte("one")),
		makeFileHeader(t, "two.png", "image/png", []byte("two")),
	})
	require.NoError(t, err)

	loaded, err := service.GetAlbum(ctx, album.Token)
	require.NoError(t, err)
	require.Len(t, loaded.Files, 2)
	assert.Equal(t, "one.png", loaded.Files[0].OriginalName)
	assert.Equal(t, "two.png", loaded.Files[1].OriginalName)
}

func TestGetAlbumInvalidToken(t *testing.T) {
	service, _ := newTestService(t, nil)

	for _, token := range []string{"", "short", "ABCDEF0123456789ABCDEF0123456789", "zzzz6789abcdef0123456789abcdef01"} {
		_, err := service.GetAlbum(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", token)
	}
}

func TestGetAlbumUnknownToken(t *testing.T) {
	service, _ := newTestService(t, nil)

	_, err := service.GetAlbum(context.Background(), "0123456789abcdef0123456789abcdef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStreamObjectUnknownName(t *testing.T) {
	service, _ := newTestService(t, nil)

	_, err := service.StreamObject(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeef.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStreamObjectRejectsTraversalNames(t *testing.T) {
	service, _ := newTestService(t, nil)

	for _, name := range []string{"../secret.bin", "..", "/etc/passwd", "a/../../b.jpg"} {
		_, err := service.StreamObject(context.Background(), name)
		assert.ErrorIs(t, err, ErrNotFound, "name %q", name)
	}
}

func TestStreamObjectTamperedCiphertext(t *testing.T) {
	service, store := newTestService(t, nil)
	ctx := context.Background()

	album, err := service.StoreUpload(ctx, []*multipart.FileHeader{
		makeFileHeader(t, "pic.png", "image/png", []byte("sensitive pixels")),
	})
	require.NoError(t, err)
	record := album.Files[0]

	// 翻转密文中的一个位
	objectPath := filepath.Join(store.BasePath(), filepath.FromSlash(record.StoragePath))
	data, err := os.ReadFile(objectPath)
	require.NoError(t, err)
	data[len(data)/2] ^= 0x01
	require.NoError(t, os.WriteFile(objectPath, data, 0o600))

	_, err = service.StreamObject(ctx, record.StoredName)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestStreamObjectLegacyFormat(t *testing.T) {
	service, store := newTestService(t, nil)
	ctx := context.Background()

	// 手工写入一条无认证标签的遗留记录及其 CTR 密文
	plaintext := []byte("legacy object body")
	iv := make([]byte, 16)
	_, err := rand.Read(iv)
	require.NoError(t, err)

	var ciphertext bytes.Buffer
	legacyStream, err := service.cipher.newCTRStream(iv)
	require.NoError(t, err)
	encrypted := make([]byte, len(plaintext))
	legacyStream.XORKeyStream(encrypted, plaintext)
	ciphertext.Write(encrypted)

	storagePath := "objects/2020/06/01/legacy00000000000000000000000000.bin"
	require.NoError(t, store.SaveWithContext(ctx, storagePath, &ciphertext))

	_, err = service.catalog.CreateAlbumWithFiles(ctx, "fedcba9876543210fedcba9876543210", []*models.FileRecord{{
		StoredName:   "legacy00000000000000000000000000.bin",
		OriginalName: "legacy.bin",
		StoragePath:  storagePath,
		ContentType:  "application/octet-stream",
		SizeBytes:    int64(len(plaintext)),
		IV:           hex.EncodeToString(iv),
	}})
	require.NoError(t, err)

	stream, err := service.StreamObject(ctx, "legacy00000000000000000000000000.bin")
	require.NoError(t, err)
	defer stream.Close()

	decrypted, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestStoreUploadPreservesOrder(t *testing.T) {
	service, _ := newTestService(t, nil)
	ctx := context.Background()

	var headers []*multipart.FileHeader
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("file-%02d.png", i)
		headers = append(headers, makeFileHeader(t, name, "image/png", []byte(name)))
	}

	album, err := service.StoreUpload(ctx, headers)
	require.NoError(t, err)
	require.Len(t, album.Files, 8)
	for i, record := range album.Files {
		assert.Equal(t, fmt.Sprintf("file-%02d.png", i), record.OriginalName)
	}

	loaded, err := service.GetAlbum(ctx, album.Token)
	require.NoError(t, err)
	for i, record := range loaded.Files {
		assert.Equal(t, fmt.Sprintf("file-%02d.png", i), record.OriginalName)
	}
}

// 嗅探必须看到落盘后的文件头，而不是写入游标后的空尾部
func TestUploadSniffMatchesDeclaredType(t *testing.T) {
	service, _ := newTestService(t, nil)
	ctx := context.Background()

	var logBuf bytes.Buffer
	log.SetOutput(&logBuf)
	defer log.SetOutput(os.Stderr)

	jpegMagic := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46}

	_, err := service.StoreUpload(ctx, []*multipart.FileHeader{
		makeFileHeader(t, "photo.jpg", "image/jpeg", jpegMagic),
	})
	require.NoError(t, err)
	assert.NotContains(t, logBuf.String(), "differs from sniffed")

	// 声明类型与内容不符时才应产生提示
	logBuf.Reset()
	_, err = service.StoreUpload(ctx, []*multipart.FileHeader{
		makeFileHeader(t, "fake.png", "image/png", jpegMagic),
	})
	require.NoError(t, err)
	assert.Contains(t, logBuf.String(), "differs from sniffed")
	assert.Contains(t, logBuf.String(), "image/jpeg")
}

type savelessStore struct {
	storage.Provider
}

func (savelessStore) SaveWithContext(context.Context, string, io.Reader) error {
	return fmt.Errorf("disk full")
}

// 管道两侧的失败必须按起因归类，而不是谁先被观察到
func TestEncryptToStoreErrorClassification(t *testing.T) {
	service, store := newTestService(t, nil)
	ctx := context.Background()

	// 明文读取失败：存储侧随管道中断，仍应归类为加密错误
	_, err := service.encryptToStore(ctx, &failingReader{err: io.ErrUnexpectedEOF}, "objects/2024/01/01/aa.bin")
	assert.ErrorIs(t, err, ErrEncryptionFailed)
	assert.NotErrorIs(t, err, ErrStorageFailed)

	// 存储写入失败：加密侧随管道中断，仍应归类为存储错误
	service.store = savelessStore{Provider: store}
	_, err = service.encryptToStore(ctx, bytes.NewReader([]byte("plaintext body")), "objects/2024/01/01/bb.bin")
	assert.ErrorIs(t, err, ErrStorageFailed)
	assert.NotErrorIs(t, err, ErrEncryptionFailed)
}

type countingCatalog struct {
	Catalog
	albumLookups int
}

func (c *countingCatalog) GetAlbumByToken(ctx context.Context, token string) (*models.Album, error) {
	c.albumLookups++
	return c.Catalog.GetAlbumByToken(ctx, token)
}

func TestGetAlbumUsesMetadataCache(t *testing.T) {
	service, _ := newTestService(t, nil)
	ctx := context.Background()

	metaCache, err := ristretto.NewRistretto()
	require.NoError(t, err)
	defer metaCache.Close()
	service.metaCache = metaCache

	counting := &countingCatalog{Catalog: service.catalog}
	service.catalog = counting

	album, err := service.StoreUpload(ctx, []*multipart.FileHeader{
		makeFileHeader(t, "one.png", "image/png", []byte("one")),
	})
	require.NoError(t, err)

	first, err := service.GetAlbum(ctx, album.Token)
	require.NoError(t, err)
	second, err := service.GetAlbum(ctx, album.Token)
	require.NoError(t, err)

	assert.Equal(t, 1, counting.albumLookups)
	assert.Equal(t, first.Token, second.Token)
	require.Len(t, second.Files, 1)
	assert.Equal(t, "one.png", second.Files[0].OriginalName)
}
