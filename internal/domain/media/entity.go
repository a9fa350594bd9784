package media

import (
	"fmt"
	"time"
)

// Media is one stored original. Content is deduplicated by checksum, so two
// uploads of the same bytes share a record.
type Media struct {
	ID        uint      `gorm:"column:id;primaryKey" json:"id"`
	File      string    `gorm:"column:file;size:512;not null" json:"file"` // relative to the upload store, "/" separated
	Dirname   string    `gorm:"column:dirname;size:255" json:"dirname"`
	Basename  string    `gorm:"column:basename;size:255" json:"basename"`
	MimeType  string    `gorm:"column:mime_type;size:128" json:"mime_type"`
	Size      int64     `gorm:"column:size" json:"size"`
	Checksum  string    `gorm:"column:checksum;size:64;not null;uniqueIndex" json:"checksum"`
	Width     int       `gorm:"column:width" json:"width,omitempty"`
	Height    int       `gorm:"column:height" json:"height,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Media) TableName() string { return "media" }

// URL is the public request path of the original.
func (m *Media) URL() string {
	return "/" + m.File
}

// Attribute returns a record attribute by its projection name.
func (m *Media) Attribute(name string) (any, bool) {
	switch name {
	case "id":
		return m.ID, true
	case "file":
		return m.File, true
	case "url":
		return m.URL(), true
	case "dirname":
		return m.Dirname, true
	case "basename":
		return m.Basename, true
	case "mime_type", "mimetype":
		return m.MimeType, true
	case "size":
		return m.Size, true
	case "checksum":
		return m.Checksum, true
	case "width":
		return m.Width, true
	case "height":
		return m.Height, true
	case "created_at":
		return m.CreatedAt, true
	}
	return nil, false
}

// Link attaches a record to one field of an owning entity.
type Link struct {
	ID        uint      `gorm:"column:id;primaryKey" json:"id"`
	Model     string    `gorm:"column:model;size:64;not null;uniqueIndex:idx_media_links_owner_field" json:"model"`
	ForeignID string    `gorm:"column:foreign_id;size:64;not null;uniqueIndex:idx_media_links_owner_field" json:"foreign_id"`
	Field     string    `gorm:"column:field;size:64;not null;uniqueIndex:idx_media_links_owner_field" json:"field"`
	MediaID   uint      `gorm:"column:media_id;not null;index" json:"media_id"`
	Media     *Media    `gorm:"foreignKey:MediaID" json:"-"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Link) TableName() string { return "media_links" }

// Owner identifies the entity a record is linked to, e.g. User:42.
type Owner struct {
	Kind string
	ID   string
}

func (o Owner) String() string {
	return fmt.Sprintf("%s:%s", o.Kind, o.ID)
}

// IsZero reports an upload without an owner.
func (o Owner) IsZero() bool {
	return o.Kind == "" && o.ID == ""
}

// Models lists the tables this package owns, for migrations.
func Models() []any {
	return []any{&Media{}, &Link{}}
}
