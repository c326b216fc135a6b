package domain

import "time"

// Specification transient behavior contract of one service for one cause.
// (service_id, cause) is unique.
type Specification struct {
	ID              int64     `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	ServiceID       int64     `json:"service,string" gorm:"not null;uniqueIndex:idx_specification_pair"`
	Cause           string    `json:"cause" gorm:"size:200;not null;uniqueIndex:idx_specification_pair"`
	MaxInitialLoss  int64     `json:"max_initial_loss"`
	MaxRecoveryTime int64     `json:"max_recovery_time"` // seconds
	MaxLor          float64   `json:"max_lor"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Specification) TableName() string {
	return "specification"
}
