package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/headline-ai/headline-server/internal/common"
	"github.com/headline-ai/headline-server/internal/config"
	"github.com/headline-ai/headline-server/internal/httpapi/handlers"
	"github.com/headline-ai/headline-server/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler, cfg config.Config, log zerolog.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(log))
	r.Use(middleware.Metrics())

	r.NoRoute(func(c *gin.Context) {
		common.Detail(c, http.StatusNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Detail(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.GET("/ping", h.Ping)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/signup", h.Signup)
		authGroup.POST("/login", h.Login)

		protected := authGroup.Group("/")
		protected.Use(middleware.AuthRequired(cfg.JWTSecret))
		protected.POST("/token/refresh", h.RefreshToken)
		protected.GET("/users", h.ListUsers)
		protected.GET("/users/:id", h.GetUser)
		protected.PUT("/users/:id", h.UpdateUser)
		protected.DELETE("/users/:id", h.DeleteUser)
	}

	aiGroup := r.Group("/ai")
	aiGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	{
		aiGroup.POST("/call_agent", h.CallAgent)
		aiGroup.POST("/call_agent_async", h.CallAgentAsync)
		aiGroup.GET("/jobs/:job_id", h.GetAgentJob)
	}

	histGroup := r.Group("/history")
	histGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	{
		histGroup.POST("/start_new_conversation/", h.StartNewConversation)
		histGroup.POST("/add_message/:conversation_id/", h.AddMessage)
		histGroup.GET("/get_conversation_history/:conversation_id/", h.GetConversationHistory)
		histGroup.GET("/resume_old_conversation/:conversation_id", h.ResumeOldConversation)
		histGroup.GET("/exit_conversation/:conversation_id", h.ExitConversation)
		histGroup.DELETE("/delete_conversation/:conversation_id/", h.DeleteConversation)
		histGroup.PUT("/active_conversation/:conversation_id/", h.ActivateConversation)
		histGroup.PUT("/inactive_conversation/:conversation_id/", h.DeactivateConversation)
		histGroup.GET("/get_user_conversations/:user_id/", h.GetUserConversations)
		histGroup.PATCH("/update_message/:message_id/", h.UpdateMessage)
	}

	return r
}
