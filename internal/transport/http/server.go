package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"docchat/internal/bootstrap"
	"docchat/internal/transport/http/handler"
	"docchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, healthChecks(app))
	router.GET("/healthz", healthHandler.Check)

	sessionHandler := handler.NewSessionHandler(app.Service, app.Config.Extract.MaxPDFBytes)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(middleware.AuthConfig{
		APIKey:     app.Config.Auth.APIKey,
		APIKeyHash: app.Config.Auth.APIKeyHash,
		JWTSecret:  app.Config.Auth.JWTSecret,
	}))

	sessions := v1.Group("/sessions")
	sessions.POST("/pdf", sessionHandler.IngestPDF)
	sessions.POST("/url", sessionHandler.IngestURL)
	sessions.GET("", sessionHandler.ListSessions)
	sessions.GET("/:id", sessionHandler.GetSession)
	sessions.DELETE("/:id", sessionHandler.DeleteSession)
	sessions.POST("/:id/ask", sessionHandler.Ask)
	sessions.GET("/:id/history", sessionHandler.GetHistory)
	sessions.DELETE("/:id/history", sessionHandler.ClearHistory)

	return router
}

func healthChecks(app *bootstrap.App) map[string]handler.Check {
	checks := map[string]handler.Check{
		"database": func(ctx context.Context) error {
			sqlDB, err := app.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if app.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		}
	}
	if app.MQConn != nil {
		checks["rabbitmq"] = func(context.Context) error {
			if app.MQConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}
	}
	return checks
}
