package app

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mediaserver/internal/config"
	"mediaserver/internal/database"
	"mediaserver/internal/domain/media"
	"mediaserver/internal/domain/serve"
	"mediaserver/internal/domain/transform"
	"mediaserver/internal/middleware"
	jwtsvc "mediaserver/internal/pkg/jwt"
	"mediaserver/internal/pkg/lock"
	"mediaserver/internal/storage"
)

// App holds the wired services behind the router.
type App struct {
	Router *gin.Engine
	Gate   *serve.Gate
	Media  *media.Service
	JWT    *jwtsvc.Service
}

// New migrates the schema and wires every component. A nil locker keeps
// generation locks in process.
func New(cfg *config.Config, db *gorm.DB, locker lock.Locker, logger *zap.SugaredLogger) (*App, error) {
	if err := database.Migrate(db, media.Models()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	publisher := storage.NewPublisher(cfg.Media.Links, logger)
	locator := storage.NewLocator(cfg.Storage.PublicDir, cfg.Storage.UploadDir, cfg.Media.StoreOriginal, publisher)
	registry := transform.DefaultRegistry(transform.Limits{
		MaxWidth:  cfg.Media.MaxVariantWidth,
		MaxHeight: cfg.Media.MaxVariantHeight,
	})
	generator := transform.NewGenerator(registry, cfg.Media.JPEGQuality, logger)
	gate := serve.NewGate(cfg.Media, locator, generator, publisher, locker, logger)

	mediaService := media.NewService(media.NewRepository(db), locator, cfg.Upload, logger)
	jwt := jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL)

	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.ErrorLogger(logger),
		middleware.RequestLogger(logger),
		middleware.CORS(cfg.CORSOrigins),
	)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	serve.RegisterRoutes(r, serve.NewHandler(gate, logger))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwt))
	{
		media.RegisterRoutes(v1, media.NewHandler(mediaService, gate.Signer(), logger), media.Guards{
			Write: middleware.RequireRole(jwtsvc.RoleEditor, jwtsvc.RoleAdmin),
			Admin: middleware.RequireRole(jwtsvc.RoleAdmin),
		})
	}

	return &App{Router: r, Gate: gate, Media: mediaService, JWT: jwt}, nil
}
