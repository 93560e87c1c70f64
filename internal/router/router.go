package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tandem-dev/tandem/internal/handlers"
	"github.com/tandem-dev/tandem/internal/middleware"
	"github.com/tandem-dev/tandem/internal/types"
)

func NewRouter() *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     types.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := r.Group("/api")
	{
		api.GET("/health", handlers.HealthCheck)
		api.GET("/ws/:group_id", middleware.AuthMiddleware(), handlers.WebSocket)

		auth := api.Group("/auth")
		{
			auth.POST("/register", handlers.CreateUser)
			auth.POST("/login", handlers.LoginUser)
			auth.POST("/logout", middleware.AuthMiddleware(), handlers.LogoutUser)
			auth.GET("/me", middleware.AuthMiddleware(), handlers.Me)
			auth.PUT("/profile", middleware.AuthMiddleware(), handlers.UpdateProfile)
			auth.DELETE("/profile", middleware.AuthMiddleware(), handlers.DeleteUser)
		}

		groups := api.Group("/groups", middleware.AuthMiddleware())
		{
			groups.POST("", handlers.CreateGroup)
			groups.GET("", handlers.ListGroups)
			groups.GET("/:group_id", handlers.GetGroup)
			groups.PUT("/:group_id", handlers.UpdateGroup)
			groups.DELETE("/:group_id", handlers.DeleteGroup)
			groups.DELETE("/:group_id/membership", handlers.ExitGroup)

			// Event endpoints
			groups.POST("/:group_id/events", handlers.CreateEvent)
			groups.POST("/:group_id/events/sync", handlers.SyncEvents)
			groups.PUT("/:group_id/events/:event_id", handlers.UpdateEvent)
			groups.DELETE("/:group_id/events/:event_id", handlers.DeleteEvent)
		}

		invites := api.Group("/invites", middleware.AuthMiddleware())
		{
			invites.GET("", handlers.ListInvites)
			invites.GET("/count", handlers.PendingInvitesCount)
			invites.POST("/respond", handlers.RespondInvite)
		}

		notifications := api.Group("/notifications", middleware.AuthMiddleware())
		{
			notifications.GET("", handlers.ListNotifications)
			notifications.GET("/count", handlers.UnreadNotificationsCount)
			notifications.POST("/read", handlers.MarkNotificationRead)
		}
	}

	return r
}
