package albums

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anoixa/media-vault/api/common"
	"github.com/anoixa/media-vault/config"
	"github.com/anoixa/media-vault/database/models"
	"github.com/anoixa/media-vault/internal/vault"
	"github.com/anoixa/media-vault/utils"
)

// Handler 相册接口处理器
type Handler struct {
	service *vault.Service
}

// NewHandler 创建相册处理器
func NewHandler(service *vault.Service) *Handler {
	return &Handler{service: service}
}

// fileView 对外暴露的文件记录视图
type fileView struct {
	StoredName   string `json:"stored_name"`
	OriginalName string `json:"original_name"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
}

// albumView 对外暴露的相册视图
type albumView struct {
	Token     string     `json:"token"`
	CreatedAt string     `json:"created_at"`
	Files     []fileView `json:"files"`
}

func newAlbumView(album *models.Album) albumView {
	baseURL := config.Get().BaseURL()
	files := make([]fileView, len(album.Files))
	for i, record := range album.Files {
		files[i] = fileView{
			StoredName:   record.StoredName,
			OriginalName: record.OriginalName,
			ContentType:  record.ContentType,
			Size:         record.SizeBytes,
			URL:          baseURL + "/objects/" + record.StoredName,
		}
	}
	return albumView{
		Token:     album.Token,
		CreatedAt: album.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Files:     files,
	}
}

// CreateAlbumHandler 上传一批媒体文件并创建相册
// POST /api/v1/albums
func (h *Handler) CreateAlbumHandler(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	files := form.File["files"]

	album, err := h.service.StoreUpload(c.Request.Context(), files)
	if err != nil {
		h.respondUploadError(c, err)
		return
	}

	common.RespondCreated(c, newAlbumView(album))
}

// respondUploadError 将上传错误映射为 HTTP 状态
func (h *Handler) respondUploadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, vault.ErrNoFiles):
		common.RespondError(c, http.StatusBadRequest, "No files in upload")
	case errors.Is(err, vault.ErrUnsupportedMedia):
		common.RespondError(c, http.StatusUnsupportedMediaType, "Only image and video uploads are accepted")
	case errors.Is(err, vault.ErrTranscodeFailed):
		log.Printf("Upload transcode failed: %v", err)
		common.RespondError(c, http.StatusInternalServerError, "Failed to process video")
	default:
		log.Printf("Upload failed: %v", err)
		common.RespondError(c, http.StatusInternalServerError, "Failed to store upload")
	}
}

// GetAlbumDetailHandler 按令牌查看相册
// GET /api/v1/albums/:token
func (h *Handler) GetAlbumDetailHandler(c *gin.Context) {
	token := c.Param("token")

	album, err := h.service.GetAlbum(c.Request.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, vault.ErrInvalidToken):
			common.RespondError(c, http.StatusBadRequest, "Invalid album token")
		case errors.Is(err, vault.ErrNotFound):
			common.RespondError(c, http.StatusNotFound, "Album not found")
		default:
			log.Printf("Failed to load album %s: %v", utils.SanitizeLogIdentifier(token), err)
			common.RespondError(c, http.StatusInternalServerError, "Failed to load album")
		}
		return
	}

	common.RespondSuccess(c, newAlbumView(album))
}
