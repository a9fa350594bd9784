package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	defaultHTTPAddr       = ":8080"
	defaultDatabaseURL    = "media.db"
	defaultJWTSecret      = "change-me-jwt-secret"
	defaultJWTTTL         = "24h"
	defaultTokenSecret    = "change-me-media-token-secret"
	defaultLinks          = "hard"
	defaultFallback       = "favicon.ico"
	defaultPublicDir      = "./public"
	defaultUploadDir      = "./uploads"
	defaultPlaceholderExt = "gif"
	defaultMaxUploadSize  = "5M"
	defaultMaxPixels      = "1600x1600"
	defaultJPEGQuality    = "90"
	defaultLockTTL        = "30s"
	defaultAllowedExts    = "jpg,jpeg,png,tif,tiff,gif,pdf,tmp"
	defaultAllowedMimes   = "image/jpeg,image/png,image/tiff,image/gif,application/pdf"
)

// Link modes for publishing files into the public store.
const (
	LinkHard = "hard"
	LinkSoft = "soft"
	LinkNone = "none"
)

// Config is built once at start-up and passed by value or pointer to every
// component. Nothing mutates it after Load returns.
type Config struct {
	AppEnv      string
	HTTPAddr    string        `validate:"required"`
	DatabaseURL string        `validate:"required"`
	JWTSecret   string        `validate:"required"`
	JWTTTL      time.Duration `validate:"gt=0"`
	CORSOrigins []string

	Media   MediaConfig
	Storage StorageConfig
	Upload  UploadConfig

	RedisURL string
	LockTTL  time.Duration `validate:"gt=0"`
}

// MediaConfig controls the serve path.
type MediaConfig struct {
	Enabled        bool
	UseTokens      bool
	TokenSecret    string
	Links          string `validate:"oneof=hard soft none"`
	Fallback       string `validate:"required"`
	AutoFallback   bool
	StoreOriginal  bool
	Store          bool
	PlaceholderDir string `validate:"required"`
	PlaceholderExt string `validate:"required,alphanum"`
	JPEGQuality    int    `validate:"min=1,max=100"`
	Presets        map[string]Preset

	// Renditions larger than this are refused. Zero leaves a side unbounded.
	MaxVariantWidth  int `validate:"gte=0"`
	MaxVariantHeight int `validate:"gte=0"`
	// GenerateTimeout bounds one shared rendering, independent of the
	// requests waiting on it.
	GenerateTimeout time.Duration `validate:"gte=0"`
}

// StorageConfig holds the filesystem roots.
type StorageConfig struct {
	PublicDir string `validate:"required"`
	UploadDir string `validate:"required"`
}

// UploadConfig holds the upload-time validation limits and the owner kinds
// media may be linked to.
type UploadConfig struct {
	MaxSize          int64 `validate:"gt=0"`
	MaxWidth         int   `validate:"gte=0"`
	MaxHeight        int   `validate:"gte=0"`
	AllowedExts      []string
	DeniedExts       []string
	AllowedMimeTypes []string
	DeniedMimeTypes  []string
	AlternativeFile  int `validate:"gte=0"`
	// PopulateOnRead enables the owner projection endpoint.
	PopulateOnRead bool
	Owners         map[string]OwnerFields
}

// Load reads the environment into a validated Config.
func Load() (*Config, error) {
	cfg := &Config{}

	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)
	cfg.HTTPAddr = strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))
	cfg.CORSOrigins = parseListEnv("CORS_ALLOWED_ORIGINS", "")
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))

	var err error
	if cfg.JWTTTL, err = parseDurationEnv("JWT_TTL", defaultJWTTTL); err != nil {
		return nil, err
	}
	if cfg.LockTTL, err = parseDurationEnv("LOCK_TTL", defaultLockTTL); err != nil {
		return nil, err
	}

	cfg.Storage.PublicDir = filepath.Clean(getEnv("PUBLIC_DIR", defaultPublicDir))
	cfg.Storage.UploadDir = filepath.Clean(getEnv("UPLOAD_DIR", defaultUploadDir))

	m := &cfg.Media
	m.Enabled = parseBoolEnv("MEDIA_ENABLED", "true")
	m.UseTokens = parseBoolEnv("MEDIA_USE_TOKENS", "false")
	m.TokenSecret = strings.TrimSpace(getEnv("MEDIA_TOKEN_SECRET", defaultTokenSecret))
	m.Links = strings.ToLower(strings.TrimSpace(getEnv("MEDIA_LINKS", defaultLinks)))
	m.AutoFallback = parseBoolEnv("MEDIA_AUTO_FALLBACK", "true")
	m.StoreOriginal = parseBoolEnv("MEDIA_STORE_ORIGINAL", "false")
	m.Store = parseBoolEnv("MEDIA_STORE", "true")
	m.PlaceholderDir = filepath.Clean(getEnv("PLACEHOLDER_DIR", filepath.Join(cfg.Storage.PublicDir, "img")))
	m.PlaceholderExt = strings.TrimPrefix(strings.TrimSpace(getEnv("PLACEHOLDER_EXT", defaultPlaceholderExt)), ".")
	m.Fallback = resolveFallback(getEnv("MEDIA_FALLBACK", defaultFallback), cfg.Storage.PublicDir)
	if m.JPEGQuality, err = strconv.Atoi(getEnv("JPEG_QUALITY", defaultJPEGQuality)); err != nil {
		return nil, fmt.Errorf("invalid JPEG_QUALITY: %w", err)
	}

	u := &cfg.Upload
	if u.MaxSize, err = ParseSize(getEnv("MAX_UPLOAD_SIZE", defaultMaxUploadSize)); err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_SIZE: %w", err)
	}
	if u.MaxWidth, u.MaxHeight, err = ParseDimensions(getEnv("MAX_PIXELS", defaultMaxPixels)); err != nil {
		return nil, fmt.Errorf("invalid MAX_PIXELS: %w", err)
	}
	maxVariant := getEnv("MAX_VARIANT_PIXELS", getEnv("MAX_PIXELS", defaultMaxPixels))
	if m.MaxVariantWidth, m.MaxVariantHeight, err = ParseDimensions(maxVariant); err != nil {
		return nil, fmt.Errorf("invalid MAX_VARIANT_PIXELS: %w", err)
	}
	m.GenerateTimeout = cfg.LockTTL
	u.AllowedExts = parseListEnv("ALLOWED_EXTENSIONS", defaultAllowedExts)
	u.DeniedExts = parseListEnv("DENIED_EXTENSIONS", "")
	u.AllowedMimeTypes = parseListEnv("ALLOWED_MIME_TYPES", defaultAllowedMimes)
	u.DeniedMimeTypes = parseListEnv("DENIED_MIME_TYPES", "")
	u.AlternativeFile = 100
	u.PopulateOnRead = parseBoolEnv("POPULATE_ON_READ", "true")

	doc := DefaultDocument()
	if path := strings.TrimSpace(os.Getenv("MEDIA_CONFIG")); path != "" {
		if doc, err = LoadDocument(path); err != nil {
			return nil, err
		}
	}
	m.Presets = doc.Presets
	u.Owners = doc.Owners

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks struct tags and the rules that span several fields.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for name, p := range cfg.Media.Presets {
		if name == "" || strings.ContainsAny(name, ",./") {
			return fmt.Errorf("invalid preset name %q", name)
		}
		if p.Transform == "" {
			return fmt.Errorf("preset %q has no transform", name)
		}
	}
	if cfg.Media.UseTokens && cfg.Media.TokenSecret == "" {
		return fmt.Errorf("MEDIA_TOKEN_SECRET must be set when MEDIA_USE_TOKENS=true")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if cfg.Media.UseTokens && isEmptyOrDefault(cfg.Media.TokenSecret, defaultTokenSecret) {
			return fmt.Errorf("in prod/release MEDIA_TOKEN_SECRET must be set and not default")
		}
	}
	return nil
}

// IsDev reports whether the process runs in a development environment.
func (c *Config) IsDev() bool {
	return !isProdLike(c.AppEnv)
}

// ParseSize accepts plain byte counts and K/M/G suffixed sizes ("5M").
func ParseSize(v string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(v))
	s = strings.TrimSuffix(s, "B")
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		mult, s = 1<<10, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		mult, s = 1<<20, strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		mult, s = 1<<30, strings.TrimSuffix(s, "G")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad size %q", v)
	}
	return n * mult, nil
}

// ParseDimensions parses "WxH". Zero on an axis means no limit.
func ParseDimensions(v string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(v)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("bad dimensions %q", v)
	}
	width, err := atoiOrZero(w)
	if err != nil {
		return 0, 0, fmt.Errorf("bad dimensions %q", v)
	}
	height, err := atoiOrZero(h)
	if err != nil {
		return 0, 0, fmt.Errorf("bad dimensions %q", v)
	}
	return width, height, nil
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return n, nil
}

// resolveFallback keeps an existing path as is and otherwise treats it as
// relative to the public store.
func resolveFallback(path, publicDir string) string {
	path = strings.TrimSpace(path)
	if _, err := os.Stat(path); err == nil {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(publicDir, path)
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func parseListEnv(name, fallback string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(name, fallback), ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
