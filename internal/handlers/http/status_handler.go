package http

import (
	"net/http"
	"sort"
	"time"

	"pttrelay/internal/core/domain"
	"pttrelay/internal/core/ports"
	apperrors "pttrelay/pkg/errors"
	"pttrelay/pkg/utils"
	"pttrelay/pkg/validation"

	"github.com/gin-gonic/gin"
)

type StatusHandler struct {
	registry ports.ConnectionRegistry
	roster   ports.RosterService
	media    ports.MediaService
	started  time.Time
	clock    utils.Clock
}

func NewStatusHandler(registry ports.ConnectionRegistry, roster ports.RosterService, media ports.MediaService, clock utils.Clock) *StatusHandler {
	return &StatusHandler{
		registry: registry,
		roster:   roster,
		media:    media,
		started:  clock(),
		clock:    clock,
	}
}

func (h *StatusHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	{
		api.GET("/status", h.GetStatus)
		api.GET("/channels", h.ListChannels)
		api.GET("/channels/:id/members", h.GetMembers)
	}
}

func (h *StatusHandler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()

	summaries, err := h.roster.Channels(ctx)
	if err != nil {
		c.Error(toAppError(err, 0))
		return
	}
	channels := make([]domain.ChannelID, 0, len(summaries))
	for _, s := range summaries {
		channels = append(channels, s.ID)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })

	objects, err := h.media.Count(ctx)
	if err != nil {
		c.Error(toAppError(err, 0))
		return
	}

	now := h.clock()
	c.JSON(http.StatusOK, domain.RelayStatus{
		Channels:     channels,
		Connections:  h.registry.Count(),
		AudioObjects: objects,
		Uptime:       now.Sub(h.started).Round(time.Second).String(),
		Timestamp:    now,
	})
}

func (h *StatusHandler) ListChannels(c *gin.Context) {
	summaries, err := h.roster.Channels(c.Request.Context())
	if err != nil {
		c.Error(toAppError(err, 0))
		return
	}
	if summaries == nil {
		summaries = []domain.ChannelSummary{}
	}

	c.JSON(http.StatusOK, gin.H{
		"channels": summaries,
	})
}

func (h *StatusHandler) GetMembers(c *gin.Context) {
	channelID := c.Param("id")
	if err := validation.ValidateChannelID(channelID); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	members, err := h.roster.Members(c.Request.Context(), domain.ChannelID(channelID))
	if err != nil {
		c.Error(toAppError(err, 0))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"channelId": channelID,
		"members":   members,
	})
}
