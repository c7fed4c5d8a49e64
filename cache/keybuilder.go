package cache

import "fmt"

// FileKey 文件记录缓存键
func FileKey(storedName string) string {
	return fmt.Sprintf("vault:file:%s", storedName)
}

// AlbumKey 相册缓存键
func AlbumKey(token string) string {
	return fmt.Sprintf("vault:album:%s", token)
}
