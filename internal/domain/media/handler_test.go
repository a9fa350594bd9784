package media

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mediaserver/internal/config"
	"mediaserver/internal/pkg/signing"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func setupTestRouter(t *testing.T, mutate func(*config.UploadConfig)) (*gin.Engine, *testEnv) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := setupService(t, mutate)
	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), NewHandler(env.svc, signing.New("test-secret"), zap.NewNop().Sugar()), Guards{})
	return r, env
}

func multipartBody(t *testing.T, fields map[string]string, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func do(t *testing.T, r http.Handler, req *http.Request) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	var resp apiResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return rr, resp
}

func postUpload(t *testing.T, r http.Handler, fields map[string]string, filename string, data []byte) (*httptest.ResponseRecorder, apiResponse) {
	body, contentType := multipartBody(t, fields, filename, data)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/media", body)
	req.Header.Set("Content-Type", contentType)
	return do(t, r, req)
}

func TestHandler_UploadAndProject(t *testing.T) {
	r, _ := setupTestRouter(t, nil)
	owner := map[string]string{"owner_type": "User", "owner_id": "42", "field": "avatar"}

	rr, resp := postUpload(t, r, owner, "me.png", pngBytes(t, 16, 16, red))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.True(t, resp.Success)

	var up UploadResponse
	require.NoError(t, json.Unmarshal(resp.Data, &up))
	assert.Equal(t, "/img/me.png", up.Record.URL)
	assert.False(t, up.Duplicate)
	assert.Equal(t, "img/me.png", up.Fields["avatar"])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/owners/User/42/media", nil)
	rr, resp = do(t, r, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &fields))
	assert.Equal(t, "image/png", fields["avatar_mime_type"])

	req = httptest.NewRequest(http.MethodGet, "/api/v1/media/1", nil)
	rr, _ = do(t, r, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/owners/User/42/media/avatar", nil)
	rr, _ = do(t, r, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/owners/User/42/media/avatar", nil)
	rr, resp = do(t, r, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestHandler_UploadValidationFailure(t *testing.T) {
	r, env := setupTestRouter(t, func(c *config.UploadConfig) { c.MaxSize = 16 })
	owner := map[string]string{"owner_type": "User", "owner_id": "42", "field": "avatar"}

	rr, resp := postUpload(t, r, owner, "big.png", pngBytes(t, 64, 64, red))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Equal(t, map[string]string{"avatar": "size"}, resp.Error.Details)
	assert.Equal(t, int64(0), env.countMedia(t))
}

func TestHandler_UploadMissingFile(t *testing.T) {
	r, _ := setupTestRouter(t, nil)

	rr, resp := postUpload(t, r, map[string]string{"field": "cover"}, "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, map[string]string{"cover": "resource"}, resp.Error.Details)
}

func TestHandler_UploadBadForm(t *testing.T) {
	r, _ := setupTestRouter(t, nil)

	rr, resp := postUpload(t, r, map[string]string{"field": "no-dashes"}, "a.png", pngBytes(t, 8, 8, red))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "ident", resp.Error.Details["field"])
}

func TestHandler_Get(t *testing.T) {
	r, _ := setupTestRouter(t, nil)

	rr, resp := do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/media/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_ID", resp.Error.Code)

	rr, resp = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/media/12", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestHandler_Duplicates(t *testing.T) {
	r, _ := setupTestRouter(t, nil)

	rr, resp := do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/media/duplicates", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, string(resp.Data))
}

func TestHandler_Sign(t *testing.T) {
	r, _ := setupTestRouter(t, nil)
	signer := signing.New("test-secret")

	rr, resp := do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/media/sign?path=/img/photo,small.jpg", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var signed SignResponse
	require.NoError(t, json.Unmarshal(resp.Data, &signed))
	assert.Equal(t, "img/photo,small.jpg", signed.Path)
	assert.True(t, signer.Verify("img/photo,small.jpg", signed.Token))
	assert.Equal(t, "/img/photo,small.jpg?token="+signed.Token, signed.URL)

	rr, resp = do(t, r, httptest.NewRequest(http.MethodGet, "/api/v1/media/sign?path=../etc/passwd", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_PATH", resp.Error.Code)
}

func TestHandler_PurgeCache(t *testing.T) {
	r, env := setupTestRouter(t, nil)
	variantPath := filepath.Join(env.public, "img", "me,small.png")
	original := filepath.Join(env.public, "img", "me.png")
	for _, p := range []string{variantPath, original} {
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	rr, resp := do(t, r, httptest.NewRequest(http.MethodDelete, "/api/v1/media/cache?dry_run=true", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var purge PurgeResponse
	require.NoError(t, json.Unmarshal(resp.Data, &purge))
	assert.True(t, purge.DryRun)
	assert.Equal(t, []string{variantPath}, purge.Removed)
	assert.FileExists(t, variantPath)

	rr, _ = do(t, r, httptest.NewRequest(http.MethodDelete, "/api/v1/media/cache", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NoFileExists(t, variantPath)
	assert.FileExists(t, original)

	rr, resp = do(t, r, httptest.NewRequest(http.MethodDelete, "/api/v1/media/cache?older_than=soon", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, map[string]string{"older_than": "duration"}, resp.Error.Details)
}
