package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"khedma/internal/api/middleware"
	"khedma/internal/database"
	"khedma/internal/storage"
)

// 允许上传的图片类型与对象键后缀。
var allowedUploadTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

// AssetHandler 负责头像与公司 Logo 的上传和访问。
type AssetHandler struct {
	db               *gorm.DB
	storage          *storage.Client
	redis            redis.UniversalClient
	logger           *slog.Logger
	clamdAddr        string
	maxUploadBytes   int64
	maxAssetsPerUser int
	maxUploadsPerDay int
}

// NewAssetHandler 构造资产处理器。
func NewAssetHandler(db *gorm.DB, storageClient *storage.Client, redisClient redis.UniversalClient, logger *slog.Logger, clamdAddr string, maxUploadBytes int64, maxAssetsPerUser, maxUploadsPerDay int) *AssetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetHandler{
		db:               db,
		storage:          storageClient,
		redis:            redisClient,
		logger:           logger,
		clamdAddr:        clamdAddr,
		maxUploadBytes:   maxUploadBytes,
		maxAssetsPerUser: maxAssetsPerUser,
		maxUploadsPerDay: maxUploadsPerDay,
	}
}

// UploadAsset 处理受保护的图片上传：类型白名单、大小上限、
// 每日配额、病毒扫描，全部通过后才写 MinIO 与 Asset 记录。
func (h *AssetHandler) UploadAsset(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c).With(slog.Uint64("user_id", uint64(actor.ID)))

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}

	if h.maxUploadBytes > 0 && file.Size > h.maxUploadBytes {
		BadRequest(c, "file too large")
		return
	}

	contentType := file.Header.Get("Content-Type")
	suffix, allowed := allowedUploadTypes[contentType]
	if !allowed {
		BadRequest(c, "unsupported file type")
		return
	}

	// 存量配额：每个用户最多保留 N 份资产。
	if h.maxAssetsPerUser > 0 {
		var count int64
		if err := h.db.WithContext(ctx).Model(&database.Asset{}).Where("user_id = ?", actor.ID).Count(&count).Error; err != nil {
			logger.Error("count assets failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
		if count >= int64(h.maxAssetsPerUser) {
			Conflict(c, "asset limit reached, delete an asset first")
			return
		}
	}

	// 每日上传配额，redis 计数按天过期。
	if h.maxUploadsPerDay > 0 && h.redis != nil {
		quotaKey := fmt.Sprintf("quota:asset-upload:%d:%s", actor.ID, time.Now().UTC().Format("20060102"))
		uploads, err := incrWithTTL(ctx, h.redis, quotaKey, 24*time.Hour)
		if err != nil {
			logger.Warn("upload quota check failed", slog.Any("error", err))
		} else if uploads > int64(h.maxUploadsPerDay) {
			Error(c, http.StatusTooManyRequests, "daily upload limit reached")
			return
		}
	}

	fileReader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}

	clamdClient := clamd.NewClamd(h.clamdAddr)
	abortChan := make(chan bool)
	scanChan, err := clamdClient.ScanStream(fileReader, abortChan)
	fileReader.Close()
	if err != nil {
		logger.Error("scan file failed", slog.Any("error", err))
		Internal(c, "failed to scan file")
		return
	}
	defer close(abortChan)

	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			logger.Warn("malicious upload blocked", slog.String("signature", result.Description))
			BadRequest(c, "malicious file detected")
			return
		}
	}

	fileReader, err = file.Open()
	if err != nil {
		Internal(c, "failed to reopen file")
		return
	}
	defer fileReader.Close()

	objectKey := fmt.Sprintf("user-assets/%d/%s%s", actor.ID, uuid.NewString(), suffix)
	if _, err := h.storage.UploadFile(ctx, objectKey, fileReader, file.Size, contentType); err != nil {
		logger.Error("upload file failed", slog.Any("error", err))
		Internal(c, "failed to upload file")
		return
	}

	asset := database.Asset{UserID: actor.ID, ObjectKey: objectKey}
	if err := h.db.WithContext(ctx).Create(&asset).Error; err != nil {
		// 记录写失败时回收对象，避免孤儿文件。
		_ = h.storage.DeleteObject(ctx, objectKey)
		logger.Error("create asset record failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("asset uploaded", slog.String("object_key", objectKey))
	Created(c, gin.H{"id": asset.ID, "object_key": objectKey})
}

// ListAssets 列出当前用户的资产及其临时访问链接。
func (h *AssetHandler) ListAssets(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	var assets []database.Asset
	if err := h.db.WithContext(ctx).
		Where("user_id = ?", actor.ID).
		Order("created_at DESC").
		Find(&assets).Error; err != nil {
		logger.Error("list assets failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	items := make([]gin.H, 0, len(assets))
	for _, asset := range assets {
		url, err := h.storage.GeneratePresignedURL(ctx, asset.ObjectKey, 10*time.Minute)
		if err != nil {
			logger.Error("generate asset url failed",
				slog.String("object_key", asset.ObjectKey),
				slog.Any("error", err),
			)
			continue
		}
		items = append(items, gin.H{
			"id":          asset.ID,
			"object_key":  asset.ObjectKey,
			"preview_url": url,
			"created_at":  asset.CreatedAt,
		})
	}
	OKList(c, items, len(items))
}

// GetAssetURL 返回资产的临时预签名 URL，仅限本人名下的对象键。
func (h *AssetHandler) GetAssetURL(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	objectKey := c.Query("key")
	if objectKey == "" {
		BadRequest(c, "missing key")
		return
	}
	if !isValidUserAssetObjectKey(actor.ID, objectKey) {
		Forbidden(c, "access denied")
		return
	}

	signedURL, err := h.storage.GeneratePresignedURL(c.Request.Context(), objectKey, 15*time.Minute)
	if err != nil {
		middleware.LoggerFromContext(c).Error("generate presigned url failed", slog.Any("error", err))
		Internal(c, "failed to generate url")
		return
	}
	OK(c, gin.H{"url": signedURL})
}

// DeleteAsset 删除资产记录与对应的对象，释放存量配额。
func (h *AssetHandler) DeleteAsset(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	assetID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	var asset database.Asset
	if err := h.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", assetID, actor.ID).
		First(&asset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "asset not found")
			return
		}
		logger.Error("load asset failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if err := h.storage.DeleteObject(ctx, asset.ObjectKey); err != nil {
		logger.Error("delete object failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if err := h.db.WithContext(ctx).Delete(&asset).Error; err != nil {
		logger.Error("delete asset record failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	OK(c, gin.H{"id": asset.ID})
}

// isValidUserAssetObjectKey 校验对象键归属与格式，防止越权与路径穿越。
func isValidUserAssetObjectKey(userID uint, key string) bool {
	expected := fmt.Sprintf("user-assets/%d/", userID)
	if !strings.HasPrefix(key, expected) {
		return false
	}
	if strings.Contains(key, "..") || strings.Contains(key, "\\") || strings.Contains(key, "//") {
		return false
	}
	if len(key) > 200 {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(key))
	return strings.HasSuffix(lower, ".png") || strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".webp")
}
