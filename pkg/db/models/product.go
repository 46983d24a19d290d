package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a sellable catalog row. Stock is only ever mutated through
// conditional updates so concurrent checkouts cannot oversell.
type Product struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ShopID         uuid.UUID `gorm:"column:shop_id;type:uuid;not null"`
	Name           string    `gorm:"column:name;not null"`
	UnitPriceCents int       `gorm:"column:unit_price_cents;not null"`
	Stock          int       `gorm:"column:stock;not null;default:0"`
	Active         bool      `gorm:"column:active;not null;default:true"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
