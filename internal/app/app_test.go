package app

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	_ "image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mediaserver/internal/config"
	"mediaserver/internal/database"
	jwtsvc "mediaserver/internal/pkg/jwt"
)

type suite struct {
	app    *App
	public string
	editor string
	reader string
}

func setupSuite(t *testing.T, mutate func(*config.Config)) *suite {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop().Sugar()

	root := t.TempDir()
	public := filepath.Join(root, "public")
	require.NoError(t, os.MkdirAll(public, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(public, "favicon.ico"), []byte("fallback"), 0o644))

	doc := config.DefaultDocument()
	cfg := &config.Config{
		AppEnv:      "test",
		HTTPAddr:    ":0",
		DatabaseURL: ":memory:",
		JWTSecret:   "test-jwt-secret",
		JWTTTL:      time.Hour,
		LockTTL:     time.Second,
		Storage: config.StorageConfig{
			PublicDir: public,
			UploadDir: filepath.Join(root, "uploads"),
		},
		Media: config.MediaConfig{
			Enabled:        true,
			TokenSecret:    "test-media-secret",
			Links:          config.LinkHard,
			Fallback:       filepath.Join(public, "favicon.ico"),
			AutoFallback:   true,
			Store:          true,
			PlaceholderDir: filepath.Join(public, "img"),
			PlaceholderExt: "gif",
			JPEGQuality:    90,
			Presets:        doc.Presets,
		},
		Upload: config.UploadConfig{
			MaxSize:          1 << 20,
			MaxWidth:         1600,
			MaxHeight:        1600,
			AllowedExts:      []string{"jpg", "jpeg", "png", "gif"},
			AllowedMimeTypes: []string{"image/jpeg", "image/png", "image/gif"},
			AlternativeFile:  100,
			PopulateOnRead:   true,
			Owners:           doc.Owners,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, config.Validate(cfg))

	db, err := database.Connect(cfg.DatabaseURL, logger)
	require.NoError(t, err)

	a, err := New(cfg, db, nil, logger)
	require.NoError(t, err)

	editor, err := a.JWT.GenerateToken("editor-1", jwtsvc.RoleEditor)
	require.NoError(t, err)
	reader, err := a.JWT.GenerateToken("reader-1", jwtsvc.RoleReader)
	require.NoError(t, err)

	return &suite{app: a, public: public, editor: editor, reader: reader}
}

func (s *suite) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.app.Router.ServeHTTP(rr, req)
	return rr
}

func (s *suite) upload(t *testing.T, token, name string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("owner_type", "User"))
	require.NoError(t, w.WriteField("owner_id", "42"))
	require.NoError(t, w.WriteField("field", "avatar"))
	fw, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/media", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return s.do(req, token)
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func decodedSize(t *testing.T, body []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestApp_UploadThenServeVariants(t *testing.T) {
	s := setupSuite(t, nil)

	rr := s.upload(t, s.editor, "me.png", pngImage(t, 64, 48))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp struct {
		Data struct {
			Record struct {
				URL string `json:"url"`
			} `json:"record"`
			Fields map[string]any `json:"fields"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "/img/me.png", resp.Data.Record.URL)
	assert.Equal(t, "img/me.png", resp.Data.Fields["avatar"])

	rr = s.do(httptest.NewRequest(http.MethodGet, "/img/me,icon.png", nil), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "generated", rr.Header().Get("X-Media-Cache"))
	w, h := decodedSize(t, rr.Body.Bytes())
	assert.Equal(t, 32, w)
	assert.Equal(t, 32, h)
	assert.FileExists(t, filepath.Join(s.public, "img", "me,icon.png"))

	rr = s.do(httptest.NewRequest(http.MethodGet, "/img/me,icon.png", nil), "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "hit", rr.Header().Get("X-Media-Cache"))

	rr = s.do(httptest.NewRequest(http.MethodGet, "/img/me,16x.png", nil), "")
	require.Equal(t, http.StatusOK, rr.Code)
	w, h = decodedSize(t, rr.Body.Bytes())
	assert.Equal(t, 16, w)
	assert.Equal(t, 12, h)

	rr = s.do(httptest.NewRequest(http.MethodGet, "/img/me.png", nil), "")
	require.Equal(t, http.StatusOK, rr.Code)
	w, h = decodedSize(t, rr.Body.Bytes())
	assert.Equal(t, 64, w)
	assert.Equal(t, 48, h)
}

func TestApp_MissingMediaServesFallback(t *testing.T) {
	s := setupSuite(t, nil)

	rr := s.do(httptest.NewRequest(http.MethodGet, "/img/ghost,small.jpg", nil), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "fallback", rr.Body.String())
}

func TestApp_UploadRequiresEditor(t *testing.T) {
	s := setupSuite(t, nil)
	data := pngImage(t, 8, 8)

	rr := s.upload(t, "", "a.png", data)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.upload(t, s.reader, "a.png", data)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/owners/User/42/media", nil), s.reader)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(httptest.NewRequest(http.MethodDelete, "/api/v1/media/cache", nil), s.editor)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestApp_SignedVariants(t *testing.T) {
	s := setupSuite(t, func(c *config.Config) { c.Media.UseTokens = true })

	rr := s.upload(t, s.editor, "me.png", pngImage(t, 64, 64))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/media/sign?path=img/me,20x20.png", nil), s.reader)
	require.Equal(t, http.StatusOK, rr.Code)
	var signed struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &signed))

	rr = s.do(httptest.NewRequest(http.MethodGet, signed.Data.URL, nil), "")
	require.Equal(t, http.StatusOK, rr.Code)
	w, h := decodedSize(t, rr.Body.Bytes())
	assert.Equal(t, 20, w)
	assert.Equal(t, 20, h)

	rr = s.do(httptest.NewRequest(http.MethodGet, "/img/me,30x30.png", nil), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestApp_Health(t *testing.T) {
	s := setupSuite(t, nil)
	rr := s.do(httptest.NewRequest(http.MethodGet, "/health", nil), "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}
