package domain

import "time"

// Service a node of the dependency graph, identified by its unique name
type Service struct {
	ID        int64     `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	Name      string    `json:"name" gorm:"size:200;not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Service) TableName() string {
	return "service"
}

// Dependency directed edge, Source depends on Target
type Dependency struct {
	ID        int64     `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	SourceID  int64     `json:"source,string" gorm:"not null;uniqueIndex:idx_dependency_edge"`
	TargetID  int64     `json:"target,string" gorm:"not null;uniqueIndex:idx_dependency_edge;index"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName Specify table name
func (Dependency) TableName() string {
	return "dependency"
}
