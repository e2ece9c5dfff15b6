package models

import (
	"time"

	"github.com/google/uuid"
)

// Garment categories. Prompt-based drivers key their edit templates off
// these values, so additions need a matching template.
const (
	GarmentCategoryTop    = "TOP"
	GarmentCategoryBottom = "BOTTOM"
	GarmentCategoryDress  = "DRESS"
	GarmentCategorySet    = "SET"
	GarmentCategoryOther  = "OTHER"
)

// ValidGarmentCategory reports whether c is a known category value.
func ValidGarmentCategory(c string) bool {
	switch c {
	case GarmentCategoryTop, GarmentCategoryBottom, GarmentCategoryDress,
		GarmentCategorySet, GarmentCategoryOther:
		return true
	}
	return false
}

// Garment is a catalog entry. Read-only from the orchestrator's perspective;
// only active garments are eligible for job creation.
type Garment struct {
	ID          uuid.UUID `db:"id"          json:"id"`
	Name        string    `db:"name"        json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	Category    string    `db:"category"    json:"category"`

	ImageURL     string  `db:"image_url"     json:"image_url"`
	ThumbnailURL *string `db:"thumbnail_url" json:"thumbnail_url,omitempty"`

	Brand *string `db:"brand" json:"brand,omitempty"`
	Color *string `db:"color" json:"color,omitempty"`

	IsActive     bool `db:"is_active"     json:"is_active"`
	DisplayOrder int  `db:"display_order" json:"display_order"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
