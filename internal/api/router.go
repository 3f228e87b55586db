package api

import (
	"arena-service/internal/middleware"
	"arena-service/internal/service"
	"arena-service/internal/ws"
	"arena-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	services *service.Container
}

func RegisterRoutes(r *gin.Engine, services *service.Container, hub *ws.Hub) {
	handler := &Handler{services: services}
	wsHandler := ws.NewHandler(hub)

	r.GET("/ping", func(c *gin.Context) {
		response.Success(c, gin.H{"message": "pong"})
	})

	// Probed by the cluster health loop on peer nodes.
	r.GET("/healthz", handler.Healthz)

	v1 := r.Group("/arena/v1")
	{
		v1.POST("/auth/token", handler.IssueToken)

		queueGroup := v1.Group("/queue")
		queueGroup.Use(middleware.AuthRequired())
		{
			queueGroup.POST("/join", handler.QueueJoin)
			queueGroup.POST("/leave", handler.QueueLeave)
			queueGroup.GET("/status", handler.QueueStatus)
		}

		matchGroup := v1.Group("/matches")
		matchGroup.Use(middleware.AuthRequired())
		{
			matchGroup.POST("/:id/result", handler.ReportResult)
		}

		v1.GET("/cluster/stats", handler.ClusterStats)
	}

	// Node-to-node surface used by peer routers; not player-facing.
	internal := r.Group("/internal")
	{
		internal.POST("/queue/join", handler.InternalQueueJoin)
		internal.POST("/queue/rehome", handler.InternalQueueRehome)
		internal.POST("/queue/leave", handler.InternalQueueLeave)
		internal.GET("/queue/players", handler.InternalQueuePlayers)
	}

	r.GET("/ws/queue", wsHandler.HandleQueueWS)
}
