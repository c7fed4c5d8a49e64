package vault

import "errors"

// 核心错误分类，HTTP 层据此映射状态码
var (
	// ErrNoFiles 上传批次为空
	ErrNoFiles = errors.New("no files were uploaded")
	// ErrUnsupportedMedia 声明的类型既不是图片也不是视频
	ErrUnsupportedMedia = errors.New("unsupported media type")
	// ErrInvalidToken 相册令牌格式非法
	ErrInvalidToken = errors.New("invalid album token")
	// ErrNotFound 相册或对象不存在，路径越界也统一归入此类
	ErrNotFound = errors.New("not found")
	// ErrTranscodeFailed 外部转码失败或超时
	ErrTranscodeFailed = errors.New("transcode failed")
	// ErrEncryptionFailed 加密流处理失败
	ErrEncryptionFailed = errors.New("encryption failed")
	// ErrDecryptionFailed 解密失败或完整性校验不通过
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrStorageFailed 对象落盘或目录写入失败
	ErrStorageFailed = errors.New("storage failed")
)
