package serve

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mediaserver/internal/pkg/response"
)

// Handler exposes the gate over HTTP.
type Handler struct {
	gate   *Gate
	logger *zap.SugaredLogger
}

func NewHandler(gate *Gate, logger *zap.SugaredLogger) *Handler {
	return &Handler{gate: gate, logger: logger}
}

// Serve answers GET /<category>/<name>[,<variant>].<ext>?token=...
func (h *Handler) Serve(c *gin.Context) {
	res, err := h.gate.Serve(c.Request.Context(), c.Request.URL.Path, c.Query("token"))
	if err != nil {
		if errors.Is(err, ErrDisabled) {
			response.Error(c, http.StatusNotFound, "NOT_FOUND", "Not found")
			return
		}
		h.logger.Errorw("media serve failed", "path", c.Request.URL.Path, "error", err)
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "STORAGE_ERROR", "Could not serve media")
		return
	}

	c.Header("X-Media-Cache", cacheState(res))
	switch {
	case res.Body != nil:
		c.Data(res.Status, res.ContentType, res.Body)
	case res.Path == "":
		c.Status(res.Status)
	default:
		h.writeFile(c, res)
	}
}

func (h *Handler) writeFile(c *gin.Context, res *Result) {
	f, err := os.Open(res.Path)
	if err != nil {
		h.logger.Errorw("media open failed", "path", res.Path, "error", err)
		response.Error(c, http.StatusInternalServerError, "STORAGE_ERROR", "Could not serve media")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.logger.Errorw("media stat failed", "path", res.Path, "error", err)
		response.Error(c, http.StatusInternalServerError, "STORAGE_ERROR", "Could not serve media")
		return
	}

	c.Header("Content-Disposition", "inline; filename="+strconv.Quote(res.Name))
	if res.Status == http.StatusOK {
		// ServeContent handles Range and conditional requests
		c.Header("Content-Type", res.ContentType)
		http.ServeContent(c.Writer, c.Request, res.Name, info.ModTime(), f)
		return
	}
	c.DataFromReader(res.Status, info.Size(), res.ContentType, f, nil)
}

func cacheState(res *Result) string {
	switch {
	case res.Cached:
		return "hit"
	case res.Generated:
		return "generated"
	default:
		return "miss"
	}
}
