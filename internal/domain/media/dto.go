package media

import "time"

type UploadRequest struct {
	OwnerType string `form:"owner_type" validate:"omitempty,ident,max=64"`
	OwnerID   string `form:"owner_id" validate:"omitempty,max=64"`
	Field     string `form:"field" validate:"omitempty,ident,max=64"`
}

type MediaResponse struct {
	ID        uint      `json:"id"`
	URL       string    `json:"url"`
	File      string    `json:"file"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type UploadResponse struct {
	Record    MediaResponse  `json:"record"`
	Duplicate bool           `json:"duplicate"`
	Fields    map[string]any `json:"fields"`
}

type SignResponse struct {
	Path  string `json:"path"`
	Token string `json:"token"`
	URL   string `json:"url"`
}

func toResponse(m *Media) MediaResponse {
	return MediaResponse{
		ID:        m.ID,
		URL:       m.URL(),
		File:      m.File,
		MimeType:  m.MimeType,
		Size:      m.Size,
		Checksum:  m.Checksum,
		Width:     m.Width,
		Height:    m.Height,
		CreatedAt: m.CreatedAt,
	}
}

type PurgeRequest struct {
	OlderThan string `form:"older_than"`
	DryRun    bool   `form:"dry_run"`
}

type PurgeResponse struct {
	Removed []string `json:"removed"`
	DryRun  bool     `json:"dry_run"`
}
