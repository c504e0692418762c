package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"livelocal/internal/infra/config"
	"livelocal/internal/infra/obs"
)

type TableHTTP interface {
	Select(c *gin.Context)
	Insert(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
}

type FunctionHTTP interface {
	Invoke(c *gin.Context)
}

type StorageHTTP interface {
	Upload(c *gin.Context)
}

type Handlers struct {
	Auth           AuthHTTP
	Tables         TableHTTP
	Functions      FunctionHTTP
	Storage        StorageHTTP
	Realtime       http.Handler
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.Auth != nil {
		api.POST("/auth/register", h.Auth.Register)
		api.POST("/auth/login", h.Auth.Login)
		api.POST("/auth/logout", h.Auth.Logout)
		api.GET("/auth/me", h.Auth.Me)
	}
	if h.Tables != nil {
		api.POST("/tables/:table/select", h.Tables.Select)
		api.POST("/tables/:table/rows", h.Tables.Insert)
		api.POST("/tables/:table/update", h.Tables.Update)
		api.POST("/tables/:table/delete", h.Tables.Delete)
	}
	if h.Functions != nil {
		api.POST("/functions/:name", h.Functions.Invoke)
	}
	if h.Storage != nil {
		api.POST("/storage/objects/*key", h.Storage.Upload)
	}
	if h.Realtime != nil {
		api.GET("/realtime", gin.WrapH(h.Realtime))
	}

	return &http.Server{Addr: cfg.HTTPAddr, Handler: router}
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
