package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Customer struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	Name            string       `gorm:"not null" json:"name"`
	Email           string       `gorm:"not null;uniqueIndex" json:"email"`
	Company         string       `json:"company,omitempty"`
	PaymentMethodID string       `gorm:"column:payment_method_id" json:"payment_method_id,omitempty"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Customer) TableName() string {
	return "customers"
}
