package serve

import (
	"github.com/gin-gonic/gin"

	"mediaserver/internal/domain/variant"
)

// RegisterRoutes mounts the gate on every media category at the root of r.
func RegisterRoutes(r gin.IRoutes, h *Handler) {
	for _, category := range variant.Categories {
		r.GET("/"+category+"/*path", h.Serve)
		r.HEAD("/"+category+"/*path", h.Serve)
	}
}
