package albums

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/anoixa/media-vault/database/models"
)

// Repository 相册目录仓库，封装相册与文件记录的数据库操作
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建相册目录仓库
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateAlbumWithFiles 在同一事务内创建相册及其全部文件记录
// 事务提交前读取方看不到相册，提交后文件列表必然完整；外部永远
// 观察不到空相册或只写入一半的批次。
func (r *Repository) CreateAlbumWithFiles(ctx context.Context, token string, files []*models.FileRecord) (*models.Album, error) {
	album := &models.Album{Token: token}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(album).Error; err != nil {
			return fmt.Errorf("failed to create album: %w", err)
		}

		// 逐条插入保持原始文件顺序，列表按主键排序即插入顺序
		for _, file := range files {
			file.AlbumID = album.ID
			if err := tx.Create(file).Error; err != nil {
				return fmt.Errorf("failed to create file record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	album.Files = make([]models.FileRecord, len(files))
	for i, file := range files {
		album.Files[i] = *file
	}
	return album, nil
}

// GetAlbumByToken 按令牌获取相册及按插入顺序排列的文件记录
func (r *Repository) GetAlbumByToken(ctx context.Context, token string) (*models.Album, error) {
	var album models.Album
	err := r.db.WithContext(ctx).
		Preload("Files", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&album, "token = ?", token).Error
	if err != nil {
		return nil, err
	}
	return &album, nil
}

// GetFileByStoredName 按对象标识获取文件记录
func (r *Repository) GetFileByStoredName(ctx context.Context, storedName string) (*models.FileRecord, error) {
	var file models.FileRecord
	err := r.db.WithContext(ctx).First(&file, "stored_name = ?", storedName).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}
