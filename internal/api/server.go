package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/youtube-agent/internal/agent/poster"
	"github.com/youtube-agent/internal/auth"
	"github.com/youtube-agent/internal/config"
	"github.com/youtube-agent/internal/models"
	"github.com/youtube-agent/internal/proxy"
	"github.com/youtube-agent/internal/source/channel"
	"github.com/youtube-agent/internal/storage"
	"github.com/youtube-agent/internal/youtube"
	"github.com/youtube-agent/pkg/logger"
)

// OAuthFlow is the Google connect flow used to link YouTube accounts
type OAuthFlow interface {
	GetAuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
	FetchIdentity(ctx context.Context, token *oauth2.Token) (*youtube.Identity, error)
}

// ScheduleInstaller arms and tears down schedule triggers
type ScheduleInstaller interface {
	Install(ctx context.Context, schedule *models.Schedule) error
	Remove(id uint) bool
}

// VideoLister looks up the latest uploads of a channel
type VideoLister interface {
	LatestVideos(ctx context.Context, channelID string) ([]channel.Video, error)
}

// Deps are the services the API is built on
type Deps struct {
	Repository storage.Repository
	Tokens     *auth.Tokens
	OAuth      OAuthFlow
	Refresher  *youtube.TokenRefresher
	Clients    *youtube.ClientFactory
	Poster     *poster.Agent
	Schedules  ScheduleInstaller
	Checker    *proxy.Checker
	Videos     VideoLister
}

// Server is the REST API
type Server struct {
	cfg        config.ServerConfig
	router     *gin.Engine
	httpServer *http.Server

	repository storage.Repository
	tokens     *auth.Tokens
	oauth      OAuthFlow
	refresher  *youtube.TokenRefresher
	clients    *youtube.ClientFactory
	poster     *poster.Agent
	schedules  ScheduleInstaller
	checker    *proxy.Checker
	videos     VideoLister

	now func() time.Time
	log *logger.Logger
}

// NewServer creates the API server and registers its routes
func NewServer(cfg config.ServerConfig, deps Deps, log *logger.Logger) *Server {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	s := &Server{
		cfg:        cfg,
		router:     gin.New(),
		repository: deps.Repository,
		tokens:     deps.Tokens,
		oauth:      deps.OAuth,
		refresher:  deps.Refresher,
		clients:    deps.Clients,
		poster:     deps.Poster,
		schedules:  deps.Schedules,
		checker:    deps.Checker,
		videos:     deps.Videos,
		now:        time.Now,
		log:        log.WithComponent("api"),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler of the API
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestLogger(s.log))
	s.router.Use(cors(s.cfg.ClientURL))
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   s.now().Unix(),
		})
	})

	api := s.router.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", s.handleRegister)
		authGroup.POST("/login", s.handleLogin)
		authGroup.POST("/logout", s.handleLogout)
		authGroup.GET("/google/callback", s.handleGoogleCallback)
		authGroup.GET("/me", s.requireAuth(), s.handleMe)
	}

	private := api.Group("", s.requireAuth())

	accounts := private.Group("/accounts")
	{
		accounts.GET("", s.handleListAccounts)
		accounts.GET("/connect", s.handleConnectAccount)
		accounts.GET("/:id", s.handleGetAccount)
		accounts.PUT("/:id", s.handleUpdateAccount)
		accounts.DELETE("/:id", s.handleDeleteAccount)
		accounts.POST("/:id/verify", s.handleVerifyAccount)
		accounts.POST("/:id/refresh-token", s.handleRefreshAccountToken)
	}

	proxies := private.Group("/proxies")
	{
		proxies.GET("", s.handleListProxies)
		proxies.POST("", s.handleCreateProxy)
		proxies.POST("/bulk-check", s.handleBulkCheckProxies)
		proxies.PUT("/:id", s.handleUpdateProxy)
		proxies.DELETE("/:id", s.handleDeleteProxy)
		proxies.POST("/:id/check", s.handleCheckProxy)
	}

	comments := private.Group("/comments")
	{
		comments.GET("", s.handleListComments)
		comments.POST("", s.handleCreateComment)
		comments.GET("/stats", s.handleCommentStats)
		comments.DELETE("/:id", s.handleDeleteComment)
		comments.POST("/:id/retry", s.handleRetryComment)
	}

	schedules := private.Group("/scheduler")
	{
		schedules.GET("", s.handleListSchedules)
		schedules.POST("", s.handleCreateSchedule)
		schedules.GET("/summary", s.handleScheduleSummary)
		schedules.GET("/:id", s.handleGetSchedule)
		schedules.PUT("/:id", s.handleUpdateSchedule)
		schedules.DELETE("/:id", s.handleDeleteSchedule)
		schedules.POST("/:id/pause", s.handlePauseSchedule)
		schedules.POST("/:id/resume", s.handleResumeSchedule)
	}

	private.GET("/channels/:channelId/videos", s.handleChannelVideos)
}

// Start serves the API until Shutdown is called
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}
