package http

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"pttrelay/internal/core/domain"
	"pttrelay/internal/core/ports"
	apperrors "pttrelay/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// multipartOverhead is the allowance for multipart headers and boundaries
// on top of the audio size cap.
const multipartOverhead = 64 * 1024

var audioContentTypes = map[string]string{
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".webm": "audio/webm",
	".3gp":  "audio/3gpp",
	".caf":  "audio/x-caf",
}

func contentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := audioContentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

type MediaHandler struct {
	media          ports.MediaService
	maxUploadBytes int64
	formField      string
	logger         *zap.SugaredLogger
}

func NewMediaHandler(media ports.MediaService, maxUploadBytes int64, formField string, logger *zap.SugaredLogger) *MediaHandler {
	if formField == "" {
		formField = "audio"
	}
	return &MediaHandler{
		media:          media,
		maxUploadBytes: maxUploadBytes,
		formField:      formField,
		logger:         logger,
	}
}

func (h *MediaHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	{
		api.POST("/audio", h.Upload)
		api.GET("/audio/:name", h.Fetch)
	}
}

// Upload accepts a single multipart file field and streams it into the
// media store.
func (h *MediaHandler) Upload(c *gin.Context) {
	start := time.Now()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)

	reader, err := c.Request.MultipartReader()
	if err != nil {
		h.uploadFailed(c, apperrors.NewInvalidInputError("multipart form expected"))
		return
	}

	channelID := domain.ChannelID(c.Query("channelId"))
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.uploadFailed(c, toAppError(err, h.maxUploadBytes))
			return
		}

		switch part.FormName() {
		case "channelId":
			value, _ := io.ReadAll(io.LimitReader(part, 128))
			channelID = domain.ChannelID(value)
			part.Close()

		case h.formField:
			stored, err := h.media.Store(c.Request.Context(), part, part.FileName(), channelID)
			part.Close()
			if err != nil {
				h.uploadFailed(c, toAppError(err, h.maxUploadBytes))
				return
			}

			c.JSON(http.StatusOK, gin.H{
				"success":          true,
				"reference":        stored.Reference,
				"size":             stored.Object.Size,
				"processingTimeMs": time.Since(start).Milliseconds(),
			})
			return

		default:
			part.Close()
		}
	}

	h.uploadFailed(c, apperrors.NewInvalidInputError("missing "+h.formField+" field"))
}

func (h *MediaHandler) uploadFailed(c *gin.Context, appErr *apperrors.AppError) {
	c.Error(appErr)
	c.JSON(appErr.HTTPStatus, gin.H{
		"success": false,
		"error":   appErr.Message,
	})
}

// Fetch serves a stored clip. Missing and expired references are 404.
func (h *MediaHandler) Fetch(c *gin.Context) {
	ref := domain.Reference(c.Param("name"))

	obj, rc, err := h.media.Resolve(c.Request.Context(), ref)
	if err != nil {
		if !errors.Is(err, domain.ErrStorageUnavailable) {
			h.logger.Debugw("audio not served", "reference", ref, "error", err)
		}
		c.Error(toAppError(err, h.maxUploadBytes))
		return
	}
	defer rc.Close()

	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, obj.Size, contentTypeFor(obj.Name), rc, nil)
}
