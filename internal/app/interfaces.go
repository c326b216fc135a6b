package app

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/talkincode/resilienced/config"
	"github.com/talkincode/resilienced/internal/notify"
	"github.com/talkincode/resilienced/internal/resilience"
	"gorm.io/gorm"
)

// DBProvider provides database access
type DBProvider interface {
	DB() *gorm.DB
}

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// NotifierProvider provides the notification bus
type NotifierProvider interface {
	Bus() *notify.Bus
}

// ResilienceProvider provides the evaluation services
type ResilienceProvider interface {
	Evaluator() *resilience.Evaluator
	Specifications() *resilience.Specifications
}

// AppContext combines all provider interfaces for full application context
// Services should depend on specific providers or this combined interface
type AppContext interface {
	DBProvider
	ConfigProvider
	SchedulerProvider
	NotifierProvider
	ResilienceProvider

	// Application lifecycle methods
	MigrateDB(track bool) error
	InitDb()
	DropAll()
	// RecheckAll re-evaluates every specification now
	RecheckAll(ctx context.Context) (*RecheckReport, error)
}
