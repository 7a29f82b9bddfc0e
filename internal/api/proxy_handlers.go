package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/youtube-agent/internal/models"
	"github.com/youtube-agent/internal/proxy"
	"github.com/youtube-agent/internal/storage"
)

const proxyNotFound = "Proxy not found"

type proxyRequest struct {
	Host     string               `json:"host" binding:"required"`
	Port     int                  `json:"port" binding:"required,min=1,max=65535"`
	Username string               `json:"username"`
	Password string               `json:"password"`
	Protocol models.ProxyProtocol `json:"protocol" binding:"omitempty,oneof=http https socks5"`
	Status   models.ProxyStatus   `json:"status" binding:"omitempty,oneof=active inactive banned"`
	Location string               `json:"location"`
	Notes    string               `json:"notes"`
}

type bulkCheckRequest struct {
	ProxyIDs []uint `json:"proxy_ids" binding:"required,min=1"`
}

func (r proxyRequest) apply(p *models.Proxy) {
	p.Host = strings.TrimSpace(r.Host)
	p.Port = r.Port
	p.Username = r.Username
	if r.Password != "" || r.Username == "" {
		p.Password = r.Password
	}
	p.Protocol = r.Protocol
	if p.Protocol == "" {
		p.Protocol = models.ProxyProtocolHTTP
	}
	if r.Status != "" {
		p.Status = r.Status
	}
	p.Location = r.Location
	p.Notes = r.Notes
}

func (s *Server) handleListProxies(c *gin.Context) {
	userID := currentUser(c)
	proxies, err := s.repository.ListProxies(c.Request.Context(), storage.ProxyFilter{UserID: &userID})
	if err != nil {
		s.fail(c, "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proxies": proxies})
}

func (s *Server) handleCreateProxy(c *gin.Context) {
	var req proxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request", err)
		return
	}

	p := &models.Proxy{UserID: currentUser(c), Status: models.ProxyStatusActive}
	req.apply(p)

	if err := s.repository.CreateProxy(c.Request.Context(), p); err != nil {
		s.fail(c, "", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Proxy created successfully", "proxy": p})
}

func (s *Server) handleUpdateProxy(c *gin.Context) {
	id, ok := pathID(c, proxyNotFound)
	if !ok {
		return
	}

	var req proxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request", err)
		return
	}

	ctx := c.Request.Context()
	p, err := s.repository.GetUserProxy(ctx, currentUser(c), id)
	if err != nil {
		s.fail(c, proxyNotFound, err)
		return
	}

	req.apply(p)
	if err := s.repository.UpdateProxy(ctx, p); err != nil {
		s.fail(c, "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Proxy updated successfully", "proxy": p})
}

func (s *Server) handleDeleteProxy(c *gin.Context) {
	id, ok := pathID(c, proxyNotFound)
	if !ok {
		return
	}

	if err := s.repository.DeleteProxy(c.Request.Context(), currentUser(c), id); err != nil {
		s.fail(c, proxyNotFound, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Proxy deleted successfully"})
}

func (s *Server) handleCheckProxy(c *gin.Context) {
	id, ok := pathID(c, proxyNotFound)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	p, err := s.repository.GetUserProxy(ctx, currentUser(c), id)
	if err != nil {
		s.fail(c, proxyNotFound, err)
		return
	}

	result, err := s.checker.Check(ctx, p)
	if err != nil {
		s.fail(c, "", err)
		return
	}

	message := "Proxy is working"
	if result.Error != "" {
		message = "Proxy check failed"
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "result": result, "proxy": p})
}

// handleBulkCheckProxies checks every listed proxy. Unknown ids get an error entry.
func (s *Server) handleBulkCheckProxies(c *gin.Context) {
	var req bulkCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request. proxy_ids array is required", err)
		return
	}

	ctx := c.Request.Context()
	userID := currentUser(c)

	results := make([]*proxy.CheckResult, 0, len(req.ProxyIDs))
	toCheck := make([]*models.Proxy, 0, len(req.ProxyIDs))

	for _, id := range req.ProxyIDs {
		p, err := s.repository.GetUserProxy(ctx, userID, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				results = append(results, &proxy.CheckResult{ProxyID: id, Error: proxyNotFound})
				continue
			}
			s.fail(c, "", err)
			return
		}
		toCheck = append(toCheck, p)
	}

	checked, err := s.checker.CheckAll(ctx, toCheck)
	if err != nil {
		s.fail(c, "", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": append(results, checked...)})
}
