package domain

import "time"

const (
	SourceDeclared = "declared"
	SourceObserved = "observed"
)

// Assessment the resilience loss computed for a specification. There is at
// most one per specification, a new computation replaces the previous one.
type Assessment struct {
	ID              int64     `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	SpecificationID int64     `json:"specification,string" gorm:"not null;uniqueIndex"`
	ServiceID       int64     `json:"service,string" gorm:"index"`
	Cause           string    `json:"cause" gorm:"size:200"`
	Source          string    `json:"source" gorm:"size:16"`
	CallID          *int64    `json:"call_id,omitempty"`
	InitialLoss     float64   `json:"initial_loss"`
	RecoveryTime    float64   `json:"recovery_time"` // seconds
	Lor             float64   `json:"lor"`
	EvaluatedAt     time.Time `json:"evaluated_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Assessment) TableName() string {
	return "resilience_loss"
}
