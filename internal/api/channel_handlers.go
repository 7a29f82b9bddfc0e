package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleChannelVideos(c *gin.Context) {
	videos, err := s.videos.LatestVideos(c.Request.Context(), c.Param("channelId"))
	if err != nil {
		respondError(c, http.StatusBadGateway, "Failed to load channel videos", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"videos": videos})
}
