package main

import (
	"AuroraGate/internal/gateway"
	"AuroraGate/internal/gateway/connmgr"
	"AuroraGate/internal/gateway/ws"
	"AuroraGate/pkg/logger"
	"AuroraGate/pkg/middleware"
	"AuroraGate/pkg/monitor"
	"AuroraGate/pkg/response"

	"github.com/gin-gonic/gin"
)

func InitRouter(svc *gateway.Service, conns *connmgr.Manager, sendBuf int) *gin.Engine {
	r := gin.New()
	r.Use(logger.GinLogger(), logger.GinRecovery(true))

	// unauthenticated liveness probe
	r.GET("/healthz", func(c *gin.Context) {
		response.ReplySuccess(c, "ok")
	})
	// metrics endpoint for Prometheus
	r.GET("/metrics", gin.WrapH(monitor.Handler()))

	r.GET("/ws", ws.Handler(svc, sendBuf))

	api := r.Group("/api", middleware.JWTAuthMiddleware())
	{
		api.GET("/stats", func(c *gin.Context) {
			response.ReplySuccessWithData(c, "ok", gin.H{
				"connections": conns.Count(),
			})
		})
	}
	return r
}
