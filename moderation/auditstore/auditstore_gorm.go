package auditstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type ModerationAuditEntry struct {
	ID         uint64 `gorm:"primaryKey"`
	ItemID     string `gorm:"not null;index"`
	Source     string `gorm:"not null"`
	Decision   string `gorm:"not null"`
	Confidence *float64
	Reasons    string
	CreatedAt  time.Time `gorm:"not null"`
}

type GormAuditStore struct {
	db *gorm.DB
}

var _ AuditStore = (*GormAuditStore)(nil)

func NewGormAuditStore(db *gorm.DB) (*GormAuditStore, error) {
	if err := db.AutoMigrate(&ModerationAuditEntry{}); err != nil {
		return nil, fmt.Errorf("migrating audit table: %w", err)
	}
	return &GormAuditStore{db: db}, nil
}

func (s *GormAuditStore) Append(ctx context.Context, entry *Entry) error {
	reasons, err := json.Marshal(entry.Reasons)
	if err != nil {
		return fmt.Errorf("encoding audit reasons: %w", err)
	}
	rec := ModerationAuditEntry{
		ItemID:     entry.ItemID,
		Source:     entry.Source,
		Decision:   entry.Decision,
		Confidence: entry.Confidence,
		Reasons:    string(reasons),
		CreatedAt:  entry.CreatedAt,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return err
	}
	entry.ID = rec.ID
	return nil
}

func (s *GormAuditStore) ListByItem(ctx context.Context, itemID string) ([]*Entry, error) {
	var recs []ModerationAuditEntry
	err := s.db.WithContext(ctx).Where("item_id = ?", itemID).Order("id asc").Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]*Entry, 0, len(recs))
	for i := range recs {
		rec := &recs[i]
		entry := &Entry{
			ID:         rec.ID,
			ItemID:     rec.ItemID,
			Source:     rec.Source,
			Decision:   rec.Decision,
			Confidence: rec.Confidence,
			CreatedAt:  rec.CreatedAt,
		}
		if rec.Reasons != "" {
			if err := json.Unmarshal([]byte(rec.Reasons), &entry.Reasons); err != nil {
				return nil, fmt.Errorf("decoding audit reasons: %w", err)
			}
		}
		out = append(out, entry)
	}
	return out, nil
}
