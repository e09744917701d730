package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/headline-ai/headline-server/internal/config"
	"github.com/headline-ai/headline-server/internal/history"
	"github.com/headline-ai/headline-server/internal/httpapi/middleware"
	"github.com/headline-ai/headline-server/internal/store/rabbitmq"
	"github.com/headline-ai/headline-server/internal/store/redisstore"
)

// Handler carries the wired dependencies for all routes. Everything is
// constructed in cmd/server and injected; nothing is a package-level global.
type Handler struct {
	DB      *gorm.DB
	Cfg     config.Config
	HistSvc *history.Service
	Redis   *redisstore.Store
	Rabbit  *rabbitmq.Publisher // nil disables the async agent route
	Log     zerolog.Logger
}

func NewHandler(db *gorm.DB, cfg config.Config, histSvc *history.Service, rds *redisstore.Store, rabbit *rabbitmq.Publisher, log zerolog.Logger) *Handler {
	return &Handler{
		DB:      db,
		Cfg:     cfg,
		HistSvc: histSvc,
		Redis:   rds,
		Rabbit:  rabbit,
		Log:     log.With().Str("component", "http").Logger(),
	}
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(200, gin.H{"message": "Welcome to the Headline AI Backend!"})
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
