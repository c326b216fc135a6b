package app

import (
	"context"
	"os"
	"runtime/debug"
	"time"
	_ "time/tzdata"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/talkincode/resilienced/config"
	"github.com/talkincode/resilienced/internal/domain"
	"github.com/talkincode/resilienced/internal/notify"
	"github.com/talkincode/resilienced/internal/repository"
	"github.com/talkincode/resilienced/internal/resilience"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

type Application struct {
	appConfig *config.AppConfig
	gormDB    *gorm.DB
	sched     *cron.Cron
	bus       *notify.Bus
	store     *repository.GormStore
	evaluator *resilience.Evaluator
	specs     *resilience.Specifications
}

// Ensure Application implements all interfaces
var (
	_ DBProvider         = (*Application)(nil)
	_ ConfigProvider     = (*Application)(nil)
	_ SchedulerProvider  = (*Application)(nil)
	_ NotifierProvider   = (*Application)(nil)
	_ ResilienceProvider = (*Application)(nil)
	_ AppContext         = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	if appConfig == nil {
		appConfig = config.Default()
	}
	return &Application{appConfig: appConfig, bus: notify.NewBus()}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle and rebuilds the
// services bound to it (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
	a.wire()
}

func (a *Application) wire() {
	if a.bus == nil {
		a.bus = notify.NewBus()
	}
	a.store = repository.NewGormStore(a.gormDB)
	a.evaluator = resilience.NewEvaluator(a.store, a.bus, resilience.WithTopic(a.appConfig.Evaluation.NotifyTopic))
	a.specs = resilience.NewSpecifications(a.store, a.evaluator)
}

// SetTimezone sets the process local time zone. It must run before any
// goroutine reads the clock, Init does not touch it.
func SetTimezone(location string) error {
	loc, err := time.LoadLocation(location)
	if err != nil {
		return errors.Wrapf(err, "timezone %q", location)
	}
	time.Local = loc
	return nil
}

func (a *Application) Init(cfg *config.AppConfig) error {
	if cfg != nil {
		a.appConfig = cfg
	}
	cfg = a.appConfig

	if err := initLogger(cfg); err != nil {
		return err
	}

	if cfg.Database.Type == "" {
		cfg.Database.Type = "sqlite"
	}
	var err error
	a.gormDB, err = getDatabase(cfg.Database, cfg.System.Workdir)
	if err != nil {
		return err
	}
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	if err := a.MigrateDB(false); err != nil {
		return errors.Wrap(err, "database migration")
	}

	a.wire()
	a.checkTopology()
	a.initJob()
	return nil
}

func initLogger(cfg *config.AppConfig) error {
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.OutputPaths = []string{"stdout"}

	// Build logger with file rotation if enabled
	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Logger.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller())
	} else {
		var err error
		logger, err = zapConfig.Build(zap.AddCaller())
		if err != nil {
			return errors.Wrap(err, "build logger")
		}
	}

	zap.ReplaceGlobals(logger)
	return nil
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEBUG_TRACE") != "" {
				debug.PrintStack()
			}
			if err2, ok := err1.(error); ok {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	db := a.gormDB
	if track {
		db = db.Debug()
	}
	return db.Migrator().AutoMigrate(domain.Tables...)
}

func (a *Application) DropAll() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
}

// InitDb drops and recreates every table
func (a *Application) InitDb() {
	a.DropAll()
	if err := a.gormDB.Migrator().AutoMigrate(domain.Tables...); err != nil {
		zap.S().Error(err)
	}
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

func (a *Application) Bus() *notify.Bus {
	return a.bus
}

func (a *Application) Evaluator() *resilience.Evaluator {
	return a.evaluator
}

func (a *Application) Specifications() *resilience.Specifications {
	return a.specs
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		<-a.sched.Stop().Done()
	}
	if a.bus != nil {
		a.bus.Wait()
	}
	if a.gormDB != nil {
		if sqlDB, err := a.gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = zap.L().Sync()
}

// RecheckAll re-evaluates every specification against its declared bounds,
// see Recheck.
func (a *Application) RecheckAll(ctx context.Context) (*RecheckReport, error) {
	return Recheck(ctx, a.specs, a.appConfig.Evaluation.Workers)
}
