package models

import "time"

// Album 一次上传批次对应的分享相册
// 通过随机令牌访问，创建后除所属文件集合外不可变。
type Album struct {
	ID        uint      `gorm:"primaryKey"`
	Token     string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	CreatedAt time.Time

	Files []FileRecord `gorm:"foreignKey:AlbumID"`
}
