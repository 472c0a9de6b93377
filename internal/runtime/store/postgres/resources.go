package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/drblury/resourceflow/internal/runtime/resource"
)

type resourceModel struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name        string    `gorm:"column:name;size:255;not null;uniqueIndex"`
	Description string    `gorm:"column:description;size:2000"`
	Status      string    `gorm:"column:status;size:32;not null;index"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (resourceModel) TableName() string {
	return "resources"
}

func resourceModelFromEntity(e resource.Entity) resourceModel {
	return resourceModel{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Status:      e.Status,
		CreatedAt:   e.CreatedAt.UTC(),
		UpdatedAt:   e.UpdatedAt.UTC(),
	}
}

func (m resourceModel) toEntity() resource.Entity {
	return resource.Entity{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Status:      m.Status,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

var sortColumns = map[string]string{
	"id":          "id",
	"name":        "name",
	"description": "description",
	"status":      "status",
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
}

// Store implements resource.Store on a gorm connection.
type Store struct {
	db *gorm.DB
}

// NewStore returns a Store using db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FindByID(ctx context.Context, id int64) (resource.Entity, error) {
	var row resourceModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return resource.Entity{}, resource.ErrNotFound
		}
		return resource.Entity{}, fmt.Errorf("find resource %d: %w", id, err)
	}
	return row.toEntity(), nil
}

func (s *Store) List(ctx context.Context, filter resource.Filter, page resource.PageRequest) ([]resource.Entity, int64, error) {
	var total int64
	if err := s.filtered(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count resources: %w", err)
	}

	var rows []resourceModel
	err := s.ordered(s.filtered(ctx, filter), page.Sort).
		Offset(page.Offset()).
		Limit(page.Size).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list resources: %w", err)
	}

	items := make([]resource.Entity, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, total, nil
}

func (s *Store) filtered(ctx context.Context, filter resource.Filter) *gorm.DB {
	tx := s.db.WithContext(ctx).Model(&resourceModel{})
	if filter.Status != "" {
		tx = tx.Where("status = ?", filter.Status)
	}
	if filter.Term != "" {
		pattern := "%" + escapeLike(filter.Term) + "%"
		tx = tx.Where("name LIKE ? OR description LIKE ?", pattern, pattern)
	}
	return tx
}

func (s *Store) ordered(tx *gorm.DB, sort resource.Sort) *gorm.DB {
	column, ok := sortColumns[sort.Field]
	if !ok {
		column = "id"
	}
	tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: sort.Descending})
	if column != "id" {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: sort.Descending})
	}
	return tx
}

func (s *Store) ExistsByName(ctx context.Context, name string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&resourceModel{}).Where("name = ?", name).Limit(1).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check resource name: %w", err)
	}
	return count > 0, nil
}

func (s *Store) Insert(ctx context.Context, e resource.Entity) (resource.Entity, error) {
	row := resourceModelFromEntity(e)
	row.ID = 0
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return resource.Entity{}, resource.ErrDuplicateName
		}
		return resource.Entity{}, fmt.Errorf("insert resource: %w", err)
	}
	return row.toEntity(), nil
}

func (s *Store) Update(ctx context.Context, e resource.Entity) (resource.Entity, error) {
	row := resourceModelFromEntity(e)
	res := s.db.WithContext(ctx).
		Model(&resourceModel{}).
		Where("id = ?", e.ID).
		Updates(map[string]any{
			"name":        row.Name,
			"description": row.Description,
			"status":      row.Status,
			"updated_at":  row.UpdatedAt,
		})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return resource.Entity{}, resource.ErrDuplicateName
		}
		return resource.Entity{}, fmt.Errorf("update resource %d: %w", e.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return resource.Entity{}, resource.ErrNotFound
	}
	return s.FindByID(ctx, e.ID)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&resourceModel{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete resource %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return resource.ErrNotFound
	}
	return nil
}

func (s *Store) InTx(ctx context.Context, fn func(tx resource.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

var _ resource.Store = (*Store)(nil)
