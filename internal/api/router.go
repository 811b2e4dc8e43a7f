package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter wires the API routes onto a fresh gin engine.
func NewRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/validity", h.Validity)
		v1.POST("/reports", h.SubmitReport)
		v1.GET("/researchers", h.Researchers)
		v1.PUT("/researchers", h.SetResearchers)
		v1.GET("/summary", h.Summary)
		v1.GET("/export", h.Export)
	}
	return r
}
