package itemstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ModerationItem is the gorm row backing an Item. Set-valued consensus fields
// are stored as JSON strings so the duplicate checks and counters always
// travel in the same row, and therefore in the same transaction.
type ModerationItem struct {
	ID        string `gorm:"primaryKey"`
	Kind      string `gorm:"not null;index"`
	AuthorDid string `gorm:"index"`
	Content   string `gorm:"not null"`
	Category  string
	Severity  string
	Status    string `gorm:"not null;index"`

	ProtocolToken *string `gorm:"uniqueIndex"`

	Score          *float64
	Recommendation *string
	ScoreReasons   *string
	ScoredAt       *time.Time

	Upvotes      int `gorm:"not null;default:0"`
	Downvotes    int `gorm:"not null;default:0"`
	ReportCount  int `gorm:"not null;default:0"`
	VoterDids    *string
	ReporterDids *string
	HasConsensus bool `gorm:"not null;default:false"`

	DecisionReviewerDid *string
	Decision            *string
	DecisionReason      *string
	DecidedAt           *time.Time

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type GormItemStore struct {
	db *gorm.DB
}

var _ ItemStore = (*GormItemStore)(nil)

func NewGormItemStore(db *gorm.DB) (*GormItemStore, error) {
	if err := db.AutoMigrate(&ModerationItem{}); err != nil {
		return nil, fmt.Errorf("migrating moderation item table: %w", err)
	}
	return &GormItemStore{db: db}, nil
}

func (s *GormItemStore) CreateItem(ctx context.Context, item *Item) error {
	rec, err := recordFromItem(item)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *GormItemStore) GetItem(ctx context.Context, id string) (*Item, error) {
	var rec ModerationItem
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return itemFromRecord(&rec)
}

func (s *GormItemStore) GetItemByToken(ctx context.Context, token string) (*Item, error) {
	var rec ModerationItem
	err := s.db.WithContext(ctx).First(&rec, "protocol_token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return itemFromRecord(&rec)
}

// UpdateItem re-reads the row inside a transaction, applies the mutation, and
// writes the result back. On postgres the read takes a SELECT ... FOR UPDATE
// row lock; sqlite deployments run with a single connection (see
// cliutil.SetupDatabase) so writes are serialized there anyway.
func (s *GormItemStore) UpdateItem(ctx context.Context, id string, mutate func(*Item) error) (*Item, error) {
	var out *Item
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var rec ModerationItem
		if err := q.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		item, err := itemFromRecord(&rec)
		if err != nil {
			return err
		}
		if err := mutate(item); err != nil {
			return err
		}
		item.UpdatedAt = time.Now().UTC()
		updated, err := recordFromItem(item)
		if err != nil {
			return err
		}
		if err := tx.Save(updated).Error; err != nil {
			return err
		}
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormItemStore) ListByStatus(ctx context.Context, status string, limit int) ([]*Item, error) {
	q := s.db.WithContext(ctx).Where("status = ?", status).Order("created_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []ModerationItem
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*Item, 0, len(recs))
	for i := range recs {
		item, err := itemFromRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func recordFromItem(item *Item) (*ModerationItem, error) {
	rec := &ModerationItem{
		ID:        item.ID,
		Kind:      item.Kind,
		AuthorDid: item.AuthorDID,
		Content:   item.Content,
		Category:  item.Category,
		Severity:  item.Severity,
		Status:    item.Status,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
	if item.ProtocolToken != "" {
		rec.ProtocolToken = &item.ProtocolToken
	}
	if item.Scoring != nil {
		reasons, err := json.Marshal(item.Scoring.Reasons)
		if err != nil {
			return nil, fmt.Errorf("encoding score reasons: %w", err)
		}
		reasonsStr := string(reasons)
		rec.Score = &item.Scoring.Score
		rec.Recommendation = &item.Scoring.Recommendation
		rec.ScoreReasons = &reasonsStr
		rec.ScoredAt = &item.Scoring.ScoredAt
	}
	if item.Consensus != nil {
		voters, err := json.Marshal(item.Consensus.VoterDIDs)
		if err != nil {
			return nil, fmt.Errorf("encoding voter set: %w", err)
		}
		reporters, err := json.Marshal(item.Consensus.ReporterDIDs)
		if err != nil {
			return nil, fmt.Errorf("encoding reporter set: %w", err)
		}
		votersStr := string(voters)
		reportersStr := string(reporters)
		rec.Upvotes = item.Consensus.Upvotes
		rec.Downvotes = item.Consensus.Downvotes
		rec.ReportCount = item.Consensus.ReportCount
		rec.VoterDids = &votersStr
		rec.ReporterDids = &reportersStr
		rec.HasConsensus = true
	}
	if item.Decision != nil {
		rec.DecisionReviewerDid = &item.Decision.ReviewerDID
		rec.Decision = &item.Decision.Decision
		rec.DecisionReason = &item.Decision.Reason
		rec.DecidedAt = &item.Decision.DecidedAt
	}
	return rec, nil
}

func itemFromRecord(rec *ModerationItem) (*Item, error) {
	item := &Item{
		ID:        rec.ID,
		Kind:      rec.Kind,
		AuthorDID: rec.AuthorDid,
		Content:   rec.Content,
		Category:  rec.Category,
		Severity:  rec.Severity,
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.ProtocolToken != nil {
		item.ProtocolToken = *rec.ProtocolToken
	}
	if rec.Score != nil {
		sc := &ScoreInfo{Score: *rec.Score}
		if rec.Recommendation != nil {
			sc.Recommendation = *rec.Recommendation
		}
		if rec.ScoredAt != nil {
			sc.ScoredAt = *rec.ScoredAt
		}
		if rec.ScoreReasons != nil {
			if err := json.Unmarshal([]byte(*rec.ScoreReasons), &sc.Reasons); err != nil {
				return nil, fmt.Errorf("decoding score reasons: %w", err)
			}
		}
		item.Scoring = sc
	}
	if rec.HasConsensus {
		cs := &Consensus{
			Upvotes:     rec.Upvotes,
			Downvotes:   rec.Downvotes,
			ReportCount: rec.ReportCount,
		}
		if rec.VoterDids != nil {
			if err := json.Unmarshal([]byte(*rec.VoterDids), &cs.VoterDIDs); err != nil {
				return nil, fmt.Errorf("decoding voter set: %w", err)
			}
		}
		if rec.ReporterDids != nil {
			if err := json.Unmarshal([]byte(*rec.ReporterDids), &cs.ReporterDIDs); err != nil {
				return nil, fmt.Errorf("decoding reporter set: %w", err)
			}
		}
		item.Consensus = cs
	}
	if rec.Decision != nil && rec.DecisionReviewerDid != nil && rec.DecidedAt != nil {
		item.Decision = &AuthorityDecision{
			ReviewerDID: *rec.DecisionReviewerDid,
			Decision:    *rec.Decision,
			DecidedAt:   *rec.DecidedAt,
		}
		if rec.DecisionReason != nil {
			item.Decision.Reason = *rec.DecisionReason
		}
	}
	return item, nil
}
