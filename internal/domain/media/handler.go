package media

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mediaserver/internal/domain/variant"
	"mediaserver/internal/pkg/response"
	"mediaserver/internal/pkg/signing"
	"mediaserver/internal/pkg/validator"
)

type Handler struct {
	service *Service
	signer  *signing.Signer
	logger  *zap.SugaredLogger
}

func NewHandler(service *Service, signer *signing.Signer, logger *zap.SugaredLogger) *Handler {
	return &Handler{service: service, signer: signer, logger: logger}
}

// Upload godoc
// @Summary Upload an original and optionally link it to an owner field
// @Tags Media
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "File to upload"
// @Param owner_type formData string false "Owner kind, e.g. User"
// @Param owner_id formData string false "Owner id"
// @Param field formData string false "Owner field, e.g. avatar"
// @Success 201 {object} response.Envelope
// @Failure 400,401,422,500 {object} response.Envelope
// @Router /media [post]
func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.service.RequestLimit())

	var req UploadRequest
	if err := c.ShouldBind(&req); err != nil {
		h.bindError(c, req.Field, err)
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid upload form", errs)
		return
	}
	field := req.Field
	if field == "" {
		field = "file"
	}

	fh, err := c.FormFile("file")
	if err != nil {
		h.bindError(c, field, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.ErrorWithDetails(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "upload is not readable",
			map[string]string{field: RuleAccess})
		return
	}
	defer f.Close()

	res, err := h.service.Upload(c.Request.Context(), UploadInput{
		Owner:    Owner{Kind: req.OwnerType, ID: req.OwnerID},
		Field:    req.Field,
		Filename: fh.Filename,
		Reader:   f,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, UploadResponse{
		Record:    toResponse(res.Media),
		Duplicate: res.Duplicate,
		Fields:    res.Fields,
	})
}

// Get godoc
// @Summary Get media metadata by id
// @Tags Media
// @Produce json
// @Security BearerAuth
// @Param id path int true "Media ID"
// @Success 200 {object} response.Envelope
// @Failure 400,404 {object} response.Envelope
// @Router /media/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "id must be a positive integer")
		return
	}
	m, err := h.service.Get(c.Request.Context(), uint(id))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, toResponse(m))
}

// Duplicates godoc
// @Summary List records that share a checksum
// @Tags Media
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /media/duplicates [get]
func (h *Handler) Duplicates(c *gin.Context) {
	list, err := h.service.Duplicates(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	items := make([]MediaResponse, 0, len(list))
	for _, m := range list {
		items = append(items, toResponse(m))
	}
	response.Success(c, http.StatusOK, items)
}

// Project godoc
// @Summary Owner fields populated from linked media
// @Tags Media
// @Produce json
// @Security BearerAuth
// @Param type path string true "Owner kind"
// @Param id path string true "Owner id"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /owners/{type}/{id}/media [get]
func (h *Handler) Project(c *gin.Context) {
	fields, err := h.service.Project(c.Request.Context(), ownerParam(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, fields)
}

// Unlink godoc
// @Summary Detach media from an owner field
// @Tags Media
// @Produce json
// @Security BearerAuth
// @Param type path string true "Owner kind"
// @Param id path string true "Owner id"
// @Param field path string true "Field"
// @Success 200 {object} response.Envelope
// @Failure 404,422 {object} response.Envelope
// @Router /owners/{type}/{id}/media/{field} [delete]
func (h *Handler) Unlink(c *gin.Context) {
	if err := h.service.Unlink(c.Request.Context(), ownerParam(c), c.Param("field")); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unlinked": c.Param("field")})
}

// Sign godoc
// @Summary Signed URL for a media path
// @Tags Media
// @Produce json
// @Security BearerAuth
// @Param path query string true "Media path, e.g. img/photo,small.jpg"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /media/sign [get]
func (h *Handler) Sign(c *gin.Context) {
	req, err := variant.ParsePath(c.Query("path"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_PATH", err.Error())
		return
	}
	token := h.signer.Sign(req.Path)
	response.Success(c, http.StatusOK, SignResponse{
		Path:  req.Path,
		Token: token,
		URL:   "/" + req.Path + "?" + url.Values{"token": {token}}.Encode(),
	})
}

// PurgeCache godoc
// @Summary Remove generated variants from the public store
// @Tags Media
// @Produce json
// @Security BearerAuth
// @Param older_than query string false "Keep variants modified within this duration, e.g. 720h"
// @Param dry_run query bool false "List without deleting"
// @Success 200 {object} response.Envelope
// @Failure 400,500 {object} response.Envelope
// @Router /media/cache [delete]
func (h *Handler) PurgeCache(c *gin.Context) {
	var req PurgeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	var olderThan time.Duration
	if req.OlderThan != "" {
		d, err := time.ParseDuration(req.OlderThan)
		if err != nil || d < 0 {
			response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid purge request",
				map[string]string{"older_than": "duration"})
			return
		}
		olderThan = d
	}

	removed, err := h.service.PurgeCache(olderThan, req.DryRun)
	if err != nil {
		h.fail(c, err)
		return
	}
	if removed == nil {
		removed = []string{}
	}
	response.Success(c, http.StatusOK, PurgeResponse{Removed: removed, DryRun: req.DryRun})
}

func (h *Handler) bindError(c *gin.Context, field string, err error) {
	if field == "" {
		field = "file"
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		response.ErrorWithDetails(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "upload rejected",
			map[string]string{field: RuleSize})
		return
	}
	if errors.Is(err, http.ErrMissingFile) {
		response.ErrorWithDetails(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "upload rejected",
			map[string]string{field: RuleResource})
		return
	}
	response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
}

func (h *Handler) fail(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		response.ErrorWithDetails(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "upload rejected", verr.Fields)
	case errors.Is(err, ErrMediaNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "media not found")
	case errors.Is(err, ErrLinkNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "media link not found")
	default:
		h.logger.Errorw("media request failed", "path", c.Request.URL.Path, "error", err)
		response.Error(c, http.StatusInternalServerError, "STORAGE_ERROR", "media operation failed")
	}
}

func ownerParam(c *gin.Context) Owner {
	return Owner{Kind: c.Param("type"), ID: c.Param("id")}
}
