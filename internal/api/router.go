package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/api/middleware"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/auth"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/buffer"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/config"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/conversation"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/instance"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/loop"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/user"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/pkg/uazapi"
)

type Router struct {
	engine    *gin.Engine
	server    *http.Server
	cfg       *config.Config
	authMgr   *auth.Manager
	userSvc   *user.Service
	instances instance.Repository
	memory    conversation.MemoryRepository
	messages  conversation.MessageRepository
	gateway   *uazapi.Client
	buffer    *buffer.Registry
	loopSvc   *loop.Service
	importer  *loop.Importer
	manager   *loop.Manager
	hub       *loop.Hub
	logger    *zap.Logger
}

func NewRouter(
	cfg *config.Config,
	authMgr *auth.Manager,
	userSvc *user.Service,
	instances instance.Repository,
	memory conversation.MemoryRepository,
	messages conversation.MessageRepository,
	gateway *uazapi.Client,
	buf *buffer.Registry,
	loopSvc *loop.Service,
	importer *loop.Importer,
	manager *loop.Manager,
	hub *loop.Hub,
	logger *zap.Logger,
) *Router {
	// Disable GIN default logger
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Metrics())
	r.Use(middleware.Logger(logger))

	api := &Router{
		engine:    r,
		cfg:       cfg,
		authMgr:   authMgr,
		userSvc:   userSvc,
		instances: instances,
		memory:    memory,
		messages:  messages,
		gateway:   gateway,
		buffer:    buf,
		loopSvc:   loopSvc,
		importer:  importer,
		manager:   manager,
		hub:       hub,
		logger:    logger,
	}

	api.RegisterRoutes()
	return api
}

func (r *Router) RegisterRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Gateway callback; authenticated by obscurity of the instance ids
	// it carries, always acknowledged.
	r.engine.POST("/api/webhook", r.HandleWebhook)

	// Public auth routes
	users := r.engine.Group("/api/users")
	{
		users.POST("/register", r.RegisterUser)
		users.POST("/login", r.Login)
	}

	// Panel routes (JWT)
	api := r.engine.Group("/api")
	api.Use(r.authMgr.Middleware())
	{
		api.GET("/users/me", r.Me)

		api.POST("/instances", r.CreateInstance)
		api.GET("/instances", r.ListInstances)
		api.GET("/instances/:id", r.GetInstance)
		api.DELETE("/instances/:id", r.DeleteInstance)
		api.POST("/instances/:id/connect", r.ConnectInstance)
		api.GET("/instances/:id/status", r.InstanceStatus)
		api.POST("/instances/:id/webhook", r.ConfigureInstanceWebhook)

		api.GET("/instances/:id/loop/settings", r.GetLoopSettings)
		api.PUT("/instances/:id/loop/settings", r.UpdateLoopSettings)
		api.GET("/instances/:id/loop/state", r.GetLoopState)
		api.POST("/instances/:id/loop/start", r.StartLoop)
		api.POST("/instances/:id/loop/stop", r.StopLoop)
		api.POST("/instances/:id/loop/contacts", r.AddLoopContact)
		api.POST("/instances/:id/loop/import", r.ImportLoopContacts)
		api.GET("/instances/:id/loop/queue", r.ListLoopQueue)
		api.GET("/instances/:id/loop/totals", r.ListLoopTotals)
		api.GET("/instances/:id/loop/events", r.ListLoopEvents)
		api.GET("/instances/:id/loop/stream", r.StreamLoop)
	}

	// Operator routes (Protected by ADMIN_API_TOKEN)
	admin := r.engine.Group("/admin")
	admin.Use(r.adminAuth())
	{
		admin.GET("/instances", r.AdminListInstances)
		admin.POST("/instances/:id/configure", r.AdminConfigureInstance)
		admin.POST("/instances/:id/reset-memory", r.AdminResetMemory)
	}
}

func (r *Router) Run() error {
	r.server = &http.Server{
		Addr:         ":" + r.cfg.Port,
		Handler:      r.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE streams stay open
		IdleTimeout:  60 * time.Second,
	}

	return r.server.ListenAndServe()
}

func (r *Router) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := strings.TrimSpace(r.cfg.AdminAPIToken)
		if expected == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin_token_not_configured"})
			return
		}

		provided := strings.TrimSpace(c.GetHeader("X-Admin-Token"))
		if provided == "" {
			authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
			if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				provided = strings.TrimSpace(authHeader[7:])
			}
		}

		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// Shutdown gracefully shuts down the HTTP server
func (r *Router) Shutdown(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}

// resolveInstance loads the instance named in the path and verifies the
// caller owns it.
func (r *Router) resolveInstance(c *gin.Context) (*instance.Instance, bool) {
	val, exists := c.Get("UserID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	userID, ok := val.(int64)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}

	inst, err := r.instances.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if inst == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "instance_not_found"})
		return nil, false
	}
	if inst.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return nil, false
	}
	return inst, true
}
