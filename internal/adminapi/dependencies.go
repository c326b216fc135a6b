package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/talkincode/resilienced/internal/domain"
	"github.com/talkincode/resilienced/internal/repository"
	"github.com/talkincode/resilienced/internal/webserver"
	"github.com/talkincode/resilienced/pkg/common"
)

type dependencyPayload struct {
	Source int64 `json:"source,string" validate:"required"`
	Target int64 `json:"target,string" validate:"required,nefield=Source"`
}

// registerDependencyRoutes registers dependency graph routes
func registerDependencyRoutes() {
	webserver.ApiGET("/dependencies", ListDependencies)
	webserver.ApiPOST("/dependencies", CreateDependency)
	webserver.ApiDELETE("/dependencies/:id", DeleteDependency)
}

// ListDependencies lists edges, optionally those touching ?service=
func ListDependencies(c echo.Context) error {
	db := GetDB(c).Model(&domain.Dependency{})
	service, has, err := parseIDQuery(c, "service")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid service ID", nil)
	}
	if has {
		db = db.Where("source_id = ? OR target_id = ?", service, service)
	}

	var deps []domain.Dependency
	if err := db.Order("id ASC").Find(&deps).Error; err != nil {
		return databaseError(c, "Failed to query dependencies", err)
	}
	return ok(c, deps)
}

func CreateDependency(c echo.Context) error {
	var payload dependencyPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse dependency parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	var count int64
	if err := GetDB(c).Model(&domain.Service{}).Where("id IN ?", []int64{payload.Source, payload.Target}).Count(&count).Error; err != nil {
		return databaseError(c, "Failed to query services", err)
	}
	if count != 2 {
		return fail(c, http.StatusNotFound, "SERVICE_NOT_FOUND", "Both ends of a dependency must exist", nil)
	}

	dep := domain.Dependency{ID: common.UUIDint64(), SourceID: payload.Source, TargetID: payload.Target}
	if err := GetDB(c).Create(&dep).Error; err != nil {
		if repository.IsDuplicate(err) {
			return fail(c, http.StatusConflict, "DEPENDENCY_EXISTS", "Dependency already exists", nil)
		}
		return databaseError(c, "Failed to create dependency", err)
	}
	return created(c, dep)
}

func DeleteDependency(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid dependency ID", nil)
	}
	result := GetDB(c).Where("id = ?", id).Delete(&domain.Dependency{})
	if result.Error != nil {
		return databaseError(c, "Failed to delete dependency", result.Error)
	}
	if result.RowsAffected == 0 {
		return fail(c, http.StatusNotFound, "DEPENDENCY_NOT_FOUND", "Dependency not found", nil)
	}
	return ok(c, map[string]interface{}{"id": id})
}
