package models

import "time"

// Product represents a catalog product row.
// Nullable columns use pointers so that "absent" and "empty" stay distinct.
// Fields are tagged for both DB scanning and JSON serialization.
type Product struct {
	ID                int       `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Description       string    `db:"description" json:"description"`
	Price             float64   `db:"price" json:"price"`
	Category          *string   `db:"category" json:"category"`
	Stock             int       `db:"stock" json:"stock"`
	SKU               *string   `db:"sku" json:"sku"`
	FeaturedImage     *string   `db:"featured_image" json:"-"`
	FeaturedImageName *string   `db:"featured_image_original_name" json:"featuredImageOriginalName"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`

	// Resolved from FeaturedImage at read time, never stored.
	FeaturedImageURL *string `db:"-" json:"featuredImageUrl"`
}
