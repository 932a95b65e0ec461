package entity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrUnknownType = errors.New("unknown entity type")
	ErrNotFound    = errors.New("entity not found")
)

var classes = map[string]string{
	"shipment":       "Shipment",
	"purchase_order": "PurchaseOrder",
	"sales_order":    "SalesOrder",
	"delivery":       "Delivery",
	"inventory":      "Inventory",
}

// Record represents the domain_entities table: the latest known state of a
// business object, written by the systems that own those objects.
type Record struct {
	TenantID   string         `gorm:"primaryKey"`
	EntityType string         `gorm:"primaryKey"`
	EntityID   string         `gorm:"primaryKey"`
	Data       datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt  time.Time
}

func (Record) TableName() string {
	return "domain_entities"
}

// Snapshot is the denormalized copy stored in a room's context archive.
type Snapshot struct {
	Type       string         `json:"type"`
	Class      string         `json:"class"`
	ID         string         `json:"id"`
	Data       datatypes.JSON `json:"data"`
	CapturedAt time.Time      `json:"captured_at"`
}

type Reader struct {
	db *gorm.DB
}

func NewReader(db *gorm.DB) *Reader {
	return &Reader{db: db}
}

// ClassFor maps an entity type to its type tag.
func ClassFor(entityType string) (string, error) {
	class, ok := classes[strings.ToLower(strings.TrimSpace(entityType))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownType, entityType)
	}
	return class, nil
}

func (r *Reader) ClassFor(entityType string) (string, error) {
	return ClassFor(entityType)
}

func (r *Reader) Get(ctx context.Context, tenantID, entityType, id string) (Snapshot, error) {
	class, err := ClassFor(entityType)
	if err != nil {
		return Snapshot{}, err
	}

	var rec Record
	err = r.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND entity_id = ?", tenantID, strings.ToLower(entityType), id).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Snapshot{}, fmt.Errorf("%w: %s %s", ErrNotFound, entityType, id)
		}
		return Snapshot{}, err
	}

	return Snapshot{
		Type:       rec.EntityType,
		Class:      class,
		ID:         rec.EntityID,
		Data:       rec.Data,
		CapturedAt: time.Now().UTC(),
	}, nil
}
