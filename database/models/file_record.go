package models

import "time"

// FileRecord 单个已加密存储的媒体对象
// 记录创建后不再更新；AuthTag 为空表示对象以遗留非认证格式写入。
type FileRecord struct {
	ID           uint    `gorm:"primaryKey"`
	AlbumID      uint    `gorm:"not null;index"`
	StoredName   string  `gorm:"type:varchar(128);uniqueIndex;not null"`
	OriginalName string  `gorm:"type:varchar(255);not null"`
	StoragePath  string  `gorm:"type:varchar(255);not null"`
	ContentType  string  `gorm:"type:varchar(100);not null"`
	SizeBytes    int64   `gorm:"not null"`
	IV           string  `gorm:"type:varchar(64);not null"`
	AuthTag      *string `gorm:"type:varchar(128)"`
	CreatedAt    time.Time
}

// AuthTagValue 返回标签内容，遗留记录返回空串
func (f *FileRecord) AuthTagValue() string {
	if f.AuthTag == nil {
		return ""
	}
	return *f.AuthTag
}
