package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"
)

const (
	// IVSize 每个对象独立生成的随机 IV 长度
	IVSize = 12
	// TagSize HMAC-SHA256 认证标签长度
	TagSize = sha256.Size

	counterSize = aes.BlockSize
)

// Mode 密文格式版本
type Mode int

const (
	// ModeAuthenticated 当前格式：AES-256-CTR + HMAC-SHA256 认证标签
	ModeAuthenticated Mode = iota
	// ModeLegacy 旧格式：无认证的 AES-256-CTR，仅用于读取历史对象
	ModeLegacy
)

// ModeFor 根据记录是否携带认证标签选择密文格式
// 格式分支集中在这一处，调用方不做散落的空值判断。
func ModeFor(tag []byte) Mode {
	if len(tag) > 0 {
		return ModeAuthenticated
	}
	return ModeLegacy
}

// Cipher 对象级流式加解密，持有进程生命周期内不变的主密钥
type Cipher struct {
	key []byte
}

// NewCipher 创建加解密器，密钥必须为 32 字节
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size: expected %d bytes, got %d", KeySize, len(key))
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Cipher{key: k}, nil
}

// EncryptResult 单个对象加密完成后的输出参数
type EncryptResult struct {
	IV   []byte
	Tag  []byte
	Size int64 // 密文长度
}

// newCTRStream 由对象 IV 扩展出 16 字节计数器块
// 当前格式使用 12 字节 IV，低位计数器从 1 开始；遗留对象可能携带
// 完整的 16 字节 IV，此时原样作为计数器块使用。
func (c *Cipher) newCTRStream(iv []byte) (cipher.Stream, error) {
	if len(iv) == 0 || len(iv) > counterSize {
		return nil, fmt.Errorf("invalid IV size: %d", len(iv))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	counter := make([]byte, counterSize)
	copy(counter, iv)
	if len(iv) < counterSize {
		counter[counterSize-1] = 1
	}
	return cipher.NewCTR(block, counter), nil
}

// EncryptTo 生成新的随机 IV，将 src 的明文流式加密写入 dst
// 明文只经过一次缓冲区大小的窗口，不会整体驻留内存。任何读写错误
// 都会中断并返回；调用方负责清理已写入 dst 的部分密文。
func (c *Cipher) EncryptTo(dst io.Writer, src io.Reader) (*EncryptResult, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	stream, err := c.newCTRStream(iv)
	if err != nil {
		return nil, err
	}

	mac := hmac.New(sha256.New, c.key)
	mac.Write(iv)

	counted := &countingWriter{w: io.MultiWriter(dst, mac)}
	encrypted := &cipher.StreamWriter{S: stream, W: counted}

	if _, err := io.Copy(encrypted, src); err != nil {
		return nil, fmt.Errorf("failed to encrypt stream: %w", err)
	}

	return &EncryptResult{
		IV:   iv,
		Tag:  mac.Sum(nil),
		Size: counted.n,
	}, nil
}

// VerifyTag 对已存储的密文做一次流式完整性校验
// 校验在解密之前单独进行，标签不匹配时没有任何明文流出。
func (c *Cipher) VerifyTag(iv, tag []byte, ciphertext io.Reader) error {
	if len(tag) != TagSize {
		return fmt.Errorf("%w: unexpected tag size %d", ErrDecryptionFailed, len(tag))
	}

	mac := hmac.New(sha256.New, c.key)
	mac.Write(iv)
	if _, err := io.Copy(mac, ciphertext); err != nil {
		return fmt.Errorf("failed to read ciphertext for verification: %w", err)
	}

	if subtle.ConstantTimeCompare(mac.Sum(nil), tag) != 1 {
		return fmt.Errorf("%w: authentication tag mismatch", ErrDecryptionFailed)
	}
	return nil
}

// NewDecryptReader 返回从 src 流式解密的读取器
// 两种格式共用同一个 CTR 解密流；认证格式的完整性校验由调用方在
// 此之前通过 VerifyTag 完成，遗留格式没有完整性保障。
func (c *Cipher) NewDecryptReader(src io.Reader, iv []byte) (io.Reader, error) {
	stream, err := c.newCTRStream(iv)
	if err != nil {
		return nil, err
	}
	return &cipher.StreamReader{S: stream, R: src}, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
