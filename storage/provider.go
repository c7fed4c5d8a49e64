package storage

import (
	"context"
	"errors"
	"io"
)

// 统一的存储层错误，读路径据此把缺失与越界一致地上抛
var (
	// ErrObjectNotFound 对象在存储中不存在
	ErrObjectNotFound = errors.New("object not found in storage")
	// ErrUnsafePath 存储路径规范化后逃出了存储根目录
	ErrUnsafePath = errors.New("storage path escapes storage root")
)

// Provider 密文对象存储接口
// storagePath 为相对存储根的路径，使用斜杠分隔，由本包生成。
type Provider interface {
	// SaveWithContext 将密文流写入 storagePath，必要时创建父目录
	SaveWithContext(ctx context.Context, storagePath string, ciphertext io.Reader) error

	// GetWithContext 打开 storagePath 的密文读取流
	// 返回 ReadSeekCloser 以便完整性校验后回绕重读。
	GetWithContext(ctx context.Context, storagePath string) (io.ReadSeekCloser, error)

	// DeleteWithContext 删除 storagePath 的密文对象
	DeleteWithContext(ctx context.Context, storagePath string) error

	// Exists 检查对象是否存在
	Exists(ctx context.Context, storagePath string) (bool, error)

	// Health 检查存储健康状态
	Health(ctx context.Context) error

	// Name 返回存储名称
	Name() string
}
