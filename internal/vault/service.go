package vault

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/anoixa/media-vault/cache"
	"github.com/anoixa/media-vault/cache/types"
	"github.com/anoixa/media-vault/database/models"
	"github.com/anoixa/media-vault/internal/transcode"
	"github.com/anoixa/media-vault/storage"
	"github.com/anoixa/media-vault/utils"
	"github.com/anoixa/media-vault/utils/mime"
	"github.com/anoixa/media-vault/utils/validator"
)

// 单次上传批次内的并发加密上限
const maxConcurrentEncrypts = 4

// Catalog 相册目录访问接口
type Catalog interface {
	CreateAlbumWithFiles(ctx context.Context, token string, files []*models.FileRecord) (*models.Album, error)
	GetAlbumByToken(ctx context.Context, token string) (*models.Album, error)
	GetFileByStoredName(ctx context.Context, storedName string) (*models.FileRecord, error)
}

// Service 媒体保险库核心服务，负责上传管线与解密读取
type Service struct {
	cipher      *Cipher
	store       storage.Provider
	transcoder  transcode.Transcoder
	catalog     Catalog
	metaCache   types.Cache
	tempDir     string
	metadataTTL time.Duration

	lookupGroup singleflight.Group
	albumGroup  singleflight.Group
}

// NewService 创建保险库服务
// metaCache 为 nil 时读路径直接访问数据库。
func NewService(
	cipher *Cipher,
	store storage.Provider,
	transcoder transcode.Transcoder,
	catalog Catalog,
	metaCache types.Cache,
	tempDir string,
	metadataTTL time.Duration,
) *Service {
	return &Service{
		cipher:      cipher,
		store:       store,
		transcoder:  transcoder,
		catalog:     catalog,
		metaCache:   metaCache,
		tempDir:     tempDir,
		metadataTTL: metadataTTL,
	}
}

// StoreUpload 处理一批上传文件并创建相册
// 任何一个文件失败整批失败：已写入的密文对象全部删除，目录里不会
// 留下记录。成功时返回的相册携带按上传顺序排列的文件记录。
func (s *Service) StoreUpload(ctx context.Context, files []*multipart.FileHeader) (*models.Album, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	// 先整批校验声明类型，避免部分文件已落盘后才发现批次非法
	for _, fileHeader := range files {
		contentType := fileHeader.Header.Get("Content-Type")
		if _, ok := validator.MediaKindOf(contentType); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, contentType)
		}
	}

	token, err := utils.GenerateAlbumToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate album token: %w", err)
	}

	records := make([]*models.FileRecord, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentEncrypts)
	for i, fileHeader := range files {
		i, fileHeader := i, fileHeader
		g.Go(func() error {
			record, err := s.processFile(gctx, fileHeader)
			if err != nil {
				return err
			}
			records[i] = record
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.discardStored(records)
		return nil, err
	}

	album, err := s.catalog.CreateAlbumWithFiles(ctx, token, records)
	if err != nil {
		s.discardStored(records)
		return nil, fmt.Errorf("failed to catalog album: %w", err)
	}
	return album, nil
}

// processFile 单文件处理管线：落盘缓冲、按需转码、流式加密入库
func (s *Service) processFile(ctx context.Context, fileHeader *multipart.FileHeader) (*models.FileRecord, error) {
	contentType := fileHeader.Header.Get("Content-Type")
	kind, _ := validator.MediaKindOf(contentType)

	tempPath, err := s.spoolToTemp(fileHeader)
	if err != nil {
		return nil, err
	}
	defer func() {
		storage.RemoveTemp(tempPath)
	}()

	extension := filepath.Ext(fileHeader.Filename)

	if kind == validator.MediaKindVideo && s.transcoder != nil && transcode.NeedsTranscode(contentType, fileHeader.Filename) {
		outputPath, err := s.transcoder.Transcode(ctx, tempPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTranscodeFailed, err)
		}
		storage.RemoveTemp(tempPath)
		tempPath = outputPath
		contentType = transcode.TargetContentType
		extension = transcode.TargetExtension
	}

	storedName, err := storage.NewObjectName(extension)
	if err != nil {
		return nil, fmt.Errorf("failed to generate object name: %w", err)
	}
	storagePath := storage.ObjectPath(storedName, time.Now().UTC())

	plainFile, err := os.Open(tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open temp file: %w", err)
	}
	defer plainFile.Close()

	result, err := s.encryptToStore(ctx, plainFile, storagePath)
	if err != nil {
		return nil, err
	}

	tag := hex.EncodeToString(result.Tag)
	return &models.FileRecord{
		StoredName:   storedName,
		OriginalName: fileHeader.Filename,
		StoragePath:  storagePath,
		ContentType:  contentType,
		SizeBytes:    result.Size,
		IV:           hex.EncodeToString(result.IV),
		AuthTag:      &tag,
	}, nil
}

// spoolToTemp 将上传内容写入临时文件，顺带嗅探实际类型用于日志
func (s *Service) spoolToTemp(fileHeader *multipart.FileHeader) (string, error) {
	src, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	tempFile, err := os.CreateTemp(s.tempDir, "upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	if _, err := io.Copy(tempFile, src); err != nil {
		tempFile.Close()
		storage.RemoveTemp(tempPath)
		return "", fmt.Errorf("failed to buffer uploaded file: %w", err)
	}

	// 写入后回绕，否则嗅探读到的是 EOF 而不是文件头
	if _, err := tempFile.Seek(0, io.SeekStart); err != nil {
		tempFile.Close()
		storage.RemoveTemp(tempPath)
		return "", fmt.Errorf("failed to rewind temp file: %w", err)
	}

	if sniffed, err := mime.SniffContentType(tempFile); err == nil {
		declared := fileHeader.Header.Get("Content-Type")
		if sniffed != declared {
			log.Printf("Declared content type %s differs from sniffed %s for %s",
				utils.SanitizeLogIdentifier(declared), utils.SanitizeLogIdentifier(sniffed),
				utils.SanitizeLogIdentifier(fileHeader.Filename))
		}
	}

	if err := tempFile.Close(); err != nil {
		storage.RemoveTemp(tempPath)
		return "", fmt.Errorf("failed to flush temp file: %w", err)
	}
	return tempPath, nil
}

// encryptToStore 经 io.Pipe 将明文流式加密写入对象存储
// 存储端与加密端任一失败都会让另一端随管道关闭而中断；失败后删除
// 可能已写入的半截对象。
func (s *Service) encryptToStore(ctx context.Context, plaintext io.Reader, storagePath string) (*EncryptResult, error) {
	pipeReader, pipeWriter := io.Pipe()
	saveDone := make(chan error, 1)
	go func() {
		err := s.store.SaveWithContext(ctx, storagePath, pipeReader)
		pipeReader.CloseWithError(err)
		saveDone <- err
	}()

	result, encErr := s.cipher.EncryptTo(pipeWriter, plaintext)
	pipeWriter.CloseWithError(encErr)
	saveErr := <-saveDone

	// 一侧的失败会经管道级联到另一侧，按错误链找出起因：存储侧先
	// 失败时管道把存储错误回传给加密侧，encErr 的链里会带着 saveErr
	if saveErr != nil && (encErr == nil || errors.Is(encErr, saveErr)) {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, saveErr)
	}
	if encErr != nil {
		s.deleteQuietly(storagePath)
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, encErr)
	}
	return result, nil
}

// discardStored 批次失败后的补偿删除
func (s *Service) discardStored(records []*models.FileRecord) {
	for _, record := range records {
		if record != nil {
			s.deleteQuietly(record.StoragePath)
		}
	}
}

func (s *Service) deleteQuietly(storagePath string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.store.DeleteWithContext(ctx, storagePath); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		log.Printf("Failed to remove stored object %s: %v", utils.SanitizeLogIdentifier(storagePath), err)
	}
}

// GetAlbum 按令牌获取相册详情
// 相册创建后不可变，缓存条目无需失效处理。
func (s *Service) GetAlbum(ctx context.Context, token string) (*models.Album, error) {
	if !utils.IsValidAlbumToken(token) {
		return nil, ErrInvalidToken
	}

	if s.metaCache != nil {
		var cached models.Album
		if err := s.metaCache.Get(cache.AlbumKey(token), &cached); err == nil {
			return &cached, nil
		} else if !types.IsCacheMiss(err) {
			log.Printf("Metadata cache read failed: %v", err)
		}
	}

	value, err, _ := s.albumGroup.Do(token, func() (interface{}, error) {
		album, err := s.catalog.GetAlbumByToken(ctx, token)
		if err != nil {
			return nil, err
		}
		if s.metaCache != nil {
			if err := s.metaCache.Set(cache.AlbumKey(token), album, s.metadataTTL); err != nil {
				log.Printf("Metadata cache write failed: %v", err)
			}
		}
		return album, nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load album: %w", err)
	}
	return value.(*models.Album), nil
}

// ObjectStream 解密后的对象读取流
type ObjectStream struct {
	ContentType  string
	OriginalName string
	Size         int64

	reader io.Reader
	closer io.Closer
}

func (o *ObjectStream) Read(p []byte) (int, error) {
	return o.reader.Read(p)
}

// Close 释放底层密文句柄
func (o *ObjectStream) Close() error {
	return o.closer.Close()
}

// StreamObject 打开已存储对象的解密流
// 认证格式先整体校验标签再回绕解密，校验失败时不产生任何明文输出；
// 遗留格式直接解密，属只读兼容路径。
func (s *Service) StreamObject(ctx context.Context, storedName string) (*ObjectStream, error) {
	if !storage.IsValidObjectName(storedName) {
		return nil, ErrNotFound
	}

	record, err := s.lookupFile(ctx, storedName)
	if err != nil {
		return nil, err
	}

	ciphertext, err := s.store.GetWithContext(ctx, record.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, storage.ErrUnsafePath) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}

	iv, err := hex.DecodeString(record.IV)
	if err != nil {
		ciphertext.Close()
		return nil, fmt.Errorf("%w: malformed IV for %s", ErrDecryptionFailed, utils.SanitizeLogIdentifier(storedName))
	}

	if ModeFor([]byte(record.AuthTagValue())) == ModeAuthenticated {
		tag, err := hex.DecodeString(record.AuthTagValue())
		if err != nil {
			ciphertext.Close()
			return nil, fmt.Errorf("%w: malformed auth tag for %s", ErrDecryptionFailed, utils.SanitizeLogIdentifier(storedName))
		}
		if err := s.cipher.VerifyTag(iv, tag, ciphertext); err != nil {
			ciphertext.Close()
			return nil, err
		}
		if _, err := ciphertext.Seek(0, io.SeekStart); err != nil {
			ciphertext.Close()
			return nil, fmt.Errorf("failed to rewind ciphertext: %w", err)
		}
	}

	plaintext, err := s.cipher.NewDecryptReader(ciphertext, iv)
	if err != nil {
		ciphertext.Close()
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return &ObjectStream{
		ContentType:  record.ContentType,
		OriginalName: record.OriginalName,
		Size:         record.SizeBytes,
		reader:       plaintext,
		closer:       ciphertext,
	}, nil
}

// lookupFile 读路径的文件记录查询：缓存、singleflight 合并、数据库
func (s *Service) lookupFile(ctx context.Context, storedName string) (*models.FileRecord, error) {
	if s.metaCache != nil {
		var cached models.FileRecord
		if err := s.metaCache.Get(cache.FileKey(storedName), &cached); err == nil {
			return &cached, nil
		} else if !types.IsCacheMiss(err) {
			log.Printf("Metadata cache read failed: %v", err)
		}
	}

	value, err, _ := s.lookupGroup.Do(storedName, func() (interface{}, error) {
		record, err := s.catalog.GetFileByStoredName(ctx, storedName)
		if err != nil {
			return nil, err
		}
		if s.metaCache != nil {
			if err := s.metaCache.Set(cache.FileKey(storedName), record, s.metadataTTL); err != nil {
				log.Printf("Metadata cache write failed: %v", err)
			}
		}
		return record, nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load file record: %w", err)
	}
	return value.(*models.FileRecord), nil
}
