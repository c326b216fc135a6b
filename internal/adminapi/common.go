package adminapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/talkincode/resilienced/internal/app"
	"github.com/talkincode/resilienced/internal/resilience"
	"github.com/talkincode/resilienced/internal/webserver"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrorResponse error envelope of every failed request
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ListResponse envelope of paginated lists
type ListResponse struct {
	Data     interface{} `json:"data"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"data": data})
}

func created(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusCreated, map[string]interface{}{"data": data})
}

func fail(c echo.Context, status int, code, message string, details interface{}) error {
	return c.JSON(status, ErrorResponse{Error: code, Message: message, Details: details})
}

func paged(c echo.Context, data interface{}, total int64, page, pageSize int) error {
	return c.JSON(http.StatusOK, ListResponse{Data: data, Total: total, Page: page, PageSize: pageSize})
}

func parsePagination(c echo.Context) (int, int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("perPage"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}

func parseIDParam(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid %s", name)
	}
	return id, nil
}

func parseIDQuery(c echo.Context, name string) (int64, bool, error) {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, errors.Errorf("invalid %s", name)
	}
	return id, true, nil
}

func handleValidationError(c echo.Context, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[strings.ToLower(fe.Field())] = fe.Tag()
		}
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", fields)
	}
	return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
}

// resilienceError maps evaluation failures onto HTTP statuses
func resilienceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, resilience.ErrNotFound):
		return fail(c, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, resilience.ErrInvalidUnit):
		return fail(c, http.StatusBadRequest, "INVALID_UNIT", err.Error(), nil)
	case errors.Is(err, resilience.ErrInvalidMeasurement):
		return fail(c, http.StatusBadRequest, "INVALID_MEASUREMENT", err.Error(), nil)
	case errors.Is(err, resilience.ErrInvalidInput):
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case errors.Is(err, resilience.ErrConflict):
		return fail(c, http.StatusConflict, "SPECIFICATION_EXISTS", err.Error(), nil)
	case errors.Is(err, resilience.ErrStoreUnavailable):
		zap.L().Error("store unavailable", zap.String("namespace", "adminapi"), zap.Error(err))
		return fail(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Specification store unavailable", nil)
	default:
		zap.L().Error("evaluation failed", zap.String("namespace", "adminapi"), zap.Error(err))
		return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
	}
}

func databaseError(c echo.Context, message string, err error) error {
	zap.L().Error(message, zap.String("namespace", "adminapi"), zap.Error(err))
	return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", message, err.Error())
}

func GetAppContext(c echo.Context) app.AppContext {
	appCtx, _ := webserver.GetAppContext(c).(app.AppContext)
	return appCtx
}

func GetDB(c echo.Context) *gorm.DB {
	return GetAppContext(c).DB().WithContext(c.Request().Context())
}

func likeFilter(db *gorm.DB, column, q string) *gorm.DB {
	if strings.EqualFold(db.Name(), "postgres") { //nolint:staticcheck
		return db.Where(column+" ILIKE ?", "%"+q+"%")
	}
	return db.Where("LOWER("+column+") LIKE ?", "%"+strings.ToLower(q)+"%")
}
