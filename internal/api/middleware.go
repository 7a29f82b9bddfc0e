package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/youtube-agent/internal/storage"
	"github.com/youtube-agent/pkg/logger"
)

const (
	requestIDHeader = "X-Request-ID"
	userIDKey       = "userID"
)

// requestLogger logs every request with a request id
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}

		event.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

func cors(origin string) gin.HandlerFunc {
	if origin == "" {
		origin = "*"
	}

	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requireAuth rejects requests without a valid bearer token
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondError(c, http.StatusUnauthorized, "Authentication required", nil)
			return
		}

		userID, err := s.tokens.Parse(token)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "Invalid token", err)
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) uint {
	if v, ok := c.Get(userIDKey); ok {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}

// respondError aborts with a {"message", "error"} body
func respondError(c *gin.Context, status int, message string, err error) {
	body := gin.H{"message": message}
	if err != nil {
		body["error"] = err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}

// fail maps storage errors to responses. Records of other users are reported as not found.
func (s *Server) fail(c *gin.Context, notFound string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		respondError(c, http.StatusNotFound, notFound, nil)
		return
	}

	s.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	respondError(c, http.StatusInternalServerError, "Internal server error", err)
}

// pathID parses a numeric path parameter, answering 404 when it is malformed
func pathID(c *gin.Context, notFound string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, http.StatusNotFound, notFound, nil)
		return 0, false
	}
	return uint(id), true
}

type pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Pages int64 `json:"pages"`
}

// pageParams reads page and limit query parameters
func pageParams(c *gin.Context, defaultLimit int) (page, limit int) {
	page, _ = strconv.Atoi(c.Query("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.Query("limit"))
	if limit < 1 || limit > 100 {
		limit = defaultLimit
	}
	return page, limit
}

func newPagination(total int64, page, limit int) pagination {
	return pagination{
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: (total + int64(limit) - 1) / int64(limit),
	}
}
