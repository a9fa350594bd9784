package media

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	GetByID(ctx context.Context, id uint) (*Media, error)
	GetByChecksum(ctx context.Context, checksum string) (*Media, error)
	// SaveAndLink inserts m unless its checksum is already stored, in which
	// case m is replaced by the stored record. A non-nil link is upserted
	// onto the resulting record in the same transaction.
	SaveAndLink(ctx context.Context, m *Media, link *Link) (created bool, err error)
	UpsertLink(ctx context.Context, link *Link) error
	DeleteLink(ctx context.Context, owner Owner, field string) error
	ListLinks(ctx context.Context, owner Owner) ([]*Link, error)
	Duplicates(ctx context.Context) ([]*Media, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id uint) (*Media, error) {
	var m Media
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMediaNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repository) GetByChecksum(ctx context.Context, checksum string) (*Media, error) {
	return getByChecksum(r.db.WithContext(ctx), checksum)
}

func getByChecksum(db *gorm.DB, checksum string) (*Media, error) {
	var m Media
	err := db.Where("checksum = ?", checksum).Order("id ASC").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMediaNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repository) SaveAndLink(ctx context.Context, m *Media, link *Link) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "checksum"}},
			DoNothing: true,
		}).Create(m)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		if !created {
			existing, err := getByChecksum(tx, m.Checksum)
			if err != nil {
				return err
			}
			*m = *existing
		}
		if link == nil {
			return nil
		}
		link.MediaID = m.ID
		return upsertLink(tx, link)
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (r *repository) UpsertLink(ctx context.Context, link *Link) error {
	return upsertLink(r.db.WithContext(ctx), link)
}

func upsertLink(db *gorm.DB, link *Link) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "model"}, {Name: "foreign_id"}, {Name: "field"}},
		DoUpdates: clause.AssignmentColumns([]string{"media_id", "updated_at"}),
	}).Create(link).Error
}

func (r *repository) DeleteLink(ctx context.Context, owner Owner, field string) error {
	res := r.db.WithContext(ctx).
		Where("model = ? AND foreign_id = ? AND field = ?", owner.Kind, owner.ID, field).
		Delete(&Link{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func (r *repository) ListLinks(ctx context.Context, owner Owner) ([]*Link, error) {
	var links []*Link
	err := r.db.WithContext(ctx).
		Preload("Media").
		Where("model = ? AND foreign_id = ?", owner.Kind, owner.ID).
		Order("field ASC").
		Find(&links).Error
	return links, err
}

func (r *repository) Duplicates(ctx context.Context) ([]*Media, error) {
	db := r.db.WithContext(ctx)
	dupes := db.Model(&Media{}).
		Select("checksum").
		Group("checksum").
		Having("COUNT(*) > 1")

	var out []*Media
	err := db.
		Where("checksum IN (?)", dupes).
		Order("checksum DESC").
		Order("id ASC").
		Find(&out).Error
	return out, err
}
