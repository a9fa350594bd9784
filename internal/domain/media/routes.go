package media

import "github.com/gin-gonic/gin"

// Guards are extra middleware for routes that change state. Nil guards
// leave the route open to any authenticated caller.
type Guards struct {
	Write gin.HandlerFunc
	Admin gin.HandlerFunc
}

// RegisterRoutes mounts the media API on an authenticated group.
func RegisterRoutes(r *gin.RouterGroup, h *Handler, g Guards) {
	m := r.Group("/media")
	{
		m.POST("", with(g.Write, h.Upload)...)
		m.GET("/duplicates", h.Duplicates)
		m.GET("/sign", h.Sign)
		m.DELETE("/cache", with(g.Admin, h.PurgeCache)...)
		m.GET("/:id", h.Get)
	}

	owners := r.Group("/owners/:type/:id/media")
	{
		owners.GET("", h.Project)
		owners.DELETE("/:field", with(g.Write, h.Unlink)...)
	}
}

func with(guard, h gin.HandlerFunc) []gin.HandlerFunc {
	if guard == nil {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{guard, h}
}
