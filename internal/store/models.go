package store

import (
	"time"

	"gorm.io/datatypes"

	"shopify-catalog-scraper/internal/types"
)

// Item is the crawl status row of a product or variant
type Item struct {
	ID           uint   `gorm:"primaryKey"`
	Supplier     string `gorm:"size:32;not null;uniqueIndex:idx_item_key"`
	Type         string `gorm:"size:16;not null;uniqueIndex:idx_item_key"`
	Code         string `gorm:"size:128;not null;uniqueIndex:idx_item_key"`
	Status       string `gorm:"size:16;not null;index"`
	ErrorMessage string
	Name         string
	URL          string
	Category     string
	Collection   string
	ParentCode   string `gorm:"size:128;index"`
	Attempts     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Item) TableName() string { return "items" }

func (i Item) toStatus() types.ItemStatus {
	return types.ItemStatus{
		Supplier:     i.Supplier,
		Code:         i.Code,
		Type:         types.ItemType(i.Type),
		Status:       types.ParseStatus(i.Status),
		ErrorMessage: i.ErrorMessage,
		Name:         i.Name,
		URL:          i.URL,
		Category:     i.Category,
		Collection:   i.Collection,
		ParentCode:   i.ParentCode,
	}
}

// ProductSnapshot keeps the last extracted version of a product so that a
// later export can reuse it without crawling again.
type ProductSnapshot struct {
	ID        uint                              `gorm:"primaryKey"`
	Supplier  string                            `gorm:"size:32;not null;uniqueIndex:idx_snapshot_key"`
	Code      string                            `gorm:"size:128;not null;uniqueIndex:idx_snapshot_key"`
	Data      datatypes.JSONType[types.Product] `gorm:"not null"`
	UpdatedAt time.Time
}

func (ProductSnapshot) TableName() string { return "product_snapshots" }

// Run is one crawl of a supplier. An unfinished run holds the supplier's
// lease until it finishes or goes stale.
type Run struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	Supplier   string     `gorm:"size:32;not null;index" json:"supplier"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Success    *bool      `json:"success,omitempty"`
	Products   int        `json:"products"`
	Errors     int        `json:"errors"`
	OutputPath string     `json:"output_path,omitempty"`
	Message    string     `json:"message,omitempty"`
}

func (Run) TableName() string { return "runs" }
