package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type processedEventModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey;size:128"`
	ProcessedAt time.Time `gorm:"column:processed_at;not null"`
}

func (processedEventModel) TableName() string {
	return "processed_events"
}

// ProcessedEvents records consumed event ids so redeliveries are recognised
// across restarts and replicas.
type ProcessedEvents struct {
	db *gorm.DB
}

func NewProcessedEvents(db *gorm.DB) *ProcessedEvents {
	return &ProcessedEvents{db: db}
}

func (p *ProcessedEvents) Seen(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Model(&processedEventModel{}).
		Where("event_id = ?", strings.TrimSpace(eventID)).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("lookup processed event: %w", err)
	}
	return count > 0, nil
}

func (p *ProcessedEvents) Mark(ctx context.Context, eventID string) error {
	row := processedEventModel{
		EventID:     strings.TrimSpace(eventID),
		ProcessedAt: time.Now().UTC(),
	}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("mark processed event: %w", err)
	}
	return nil
}
