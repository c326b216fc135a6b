package adminapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/talkincode/resilienced/internal/domain"
	"github.com/talkincode/resilienced/internal/repository"
	"github.com/talkincode/resilienced/internal/webserver"
	"github.com/talkincode/resilienced/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type servicePayload struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

// registerServiceRoutes registers service CRUD routes
func registerServiceRoutes() {
	webserver.ApiGET("/services", ListServices)
	webserver.ApiGET("/services/:id", GetService)
	webserver.ApiPOST("/services", CreateService)
	webserver.ApiPUT("/services/:id", UpdateService)
	webserver.ApiDELETE("/services/:id", DeleteService)
}

// ListServices returns a paginated list of services
func ListServices(c echo.Context) error {
	page, pageSize := parsePagination(c)
	db := GetDB(c).Model(&domain.Service{})

	if q := strings.TrimSpace(c.QueryParam("q")); q != "" {
		db = likeFilter(db, "name", q)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return databaseError(c, "Failed to query services", err)
	}

	var services []domain.Service
	if err := db.Order("name ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&services).Error; err != nil {
		return databaseError(c, "Failed to query services", err)
	}
	return paged(c, services, total, page, pageSize)
}

// GetService returns a single service by ID
func GetService(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid service ID", nil)
	}

	var s domain.Service
	if err := GetDB(c).Where("id = ?", id).First(&s).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "SERVICE_NOT_FOUND", "Service not found", nil)
	} else if err != nil {
		return databaseError(c, "Failed to query service", err)
	}
	return ok(c, s)
}

func CreateService(c echo.Context) error {
	var payload servicePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse service parameters", nil)
	}
	payload.Name = strings.TrimSpace(payload.Name)
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	svc := domain.Service{ID: common.UUIDint64(), Name: payload.Name}
	if err := GetDB(c).Create(&svc).Error; err != nil {
		if repository.IsDuplicate(err) {
			return fail(c, http.StatusConflict, "SERVICE_EXISTS", "Service name already exists", nil)
		}
		return databaseError(c, "Failed to create service", err)
	}

	zap.L().Info("service created", zap.String("namespace", "adminapi"), zap.String("name", svc.Name))
	return created(c, svc)
}

// UpdateService renames a service
func UpdateService(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid service ID", nil)
	}
	var payload servicePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse service parameters", nil)
	}
	payload.Name = strings.TrimSpace(payload.Name)
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	var svc domain.Service
	if err := GetDB(c).Where("id = ?", id).First(&svc).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "SERVICE_NOT_FOUND", "Service not found", nil)
	} else if err != nil {
		return databaseError(c, "Failed to query service", err)
	}

	now := time.Now()
	updates := map[string]interface{}{"name": payload.Name, "updated_at": now}
	if err := GetDB(c).Model(&domain.Service{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		if repository.IsDuplicate(err) {
			return fail(c, http.StatusConflict, "SERVICE_EXISTS", "Service name already exists", nil)
		}
		return databaseError(c, "Failed to update service", err)
	}
	svc.Name = payload.Name
	svc.UpdatedAt = now
	return ok(c, svc)
}

// DeleteService removes a service with its dependencies and observations. A
// service that still has specifications is refused.
func DeleteService(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid service ID", nil)
	}

	var specs int64
	if err := GetDB(c).Model(&domain.Specification{}).Where("service_id = ?", id).Count(&specs).Error; err != nil {
		return databaseError(c, "Failed to query specifications", err)
	}
	if specs > 0 {
		return fail(c, http.StatusConflict, "SERVICE_IN_USE", "Delete the specifications of this service first", map[string]int64{"specifications": specs})
	}

	var deleted int64
	err = GetDB(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source_id = ? OR target_id = ?", id, id).Delete(&domain.Dependency{}).Error; err != nil {
			return err
		}
		if err := tx.Where("service_id = ?", id).Delete(&domain.ServiceData{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&domain.Service{})
		deleted = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return databaseError(c, "Failed to delete service", err)
	}
	if deleted == 0 {
		return fail(c, http.StatusNotFound, "SERVICE_NOT_FOUND", "Service not found", nil)
	}

	zap.L().Info("service deleted", zap.String("namespace", "adminapi"), zap.Int64("id", id))
	return ok(c, map[string]interface{}{"id": id})
}
