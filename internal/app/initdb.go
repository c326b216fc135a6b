package app

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/talkincode/resilienced/config"
	"github.com/talkincode/resilienced/internal/domain"
	"github.com/talkincode/resilienced/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// checkTopology makes sure the configured services and dependencies exist
func (a *Application) checkTopology() {
	created, err := EnsureTopology(a.gormDB, a.appConfig.Topology)
	if err != nil {
		zap.L().Error("failed to initialize topology", zap.Error(err))
		return
	}
	if created > 0 {
		zap.L().Info("initialized topology", zap.Int("created", created))
	}
}

// EnsureTopology creates the missing services and dependencies of topo and
// returns how many rows it created. Existing rows are left alone.
func EnsureTopology(db *gorm.DB, topo config.TopologyConfig) (int, error) {
	created := 0
	err := db.Transaction(func(tx *gorm.DB) error {
		ids := make(map[string]int64)
		ensure := func(name string) (int64, error) {
			name = strings.TrimSpace(name)
			if common.IsEmptyOrNA(name) {
				return 0, errors.New("empty service name in topology")
			}
			if id, ok := ids[name]; ok {
				return id, nil
			}
			var svc domain.Service
			err := tx.Where("name = ?", name).First(&svc).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				svc = domain.Service{ID: common.UUIDint64(), Name: name}
				if err := tx.Create(&svc).Error; err != nil {
					return 0, errors.Wrapf(err, "create service %s", name)
				}
				created++
			case err != nil:
				return 0, errors.Wrapf(err, "query service %s", name)
			}
			ids[name] = svc.ID
			return svc.ID, nil
		}

		for _, name := range topo.Services {
			if _, err := ensure(name); err != nil {
				return err
			}
		}
		for _, dep := range topo.Dependencies {
			if strings.TrimSpace(dep.Source) == strings.TrimSpace(dep.Target) {
				return errors.Errorf("service %s cannot depend on itself", dep.Source)
			}
			source, err := ensure(dep.Source)
			if err != nil {
				return err
			}
			target, err := ensure(dep.Target)
			if err != nil {
				return err
			}
			var count int64
			if err := tx.Model(&domain.Dependency{}).
				Where("source_id = ? AND target_id = ?", source, target).
				Count(&count).Error; err != nil {
				return errors.Wrap(err, "query dependency")
			}
			if count > 0 {
				continue
			}
			if err := tx.Create(&domain.Dependency{ID: common.UUIDint64(), SourceID: source, TargetID: target}).Error; err != nil {
				return errors.Wrapf(err, "create dependency %s -> %s", dep.Source, dep.Target)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}
