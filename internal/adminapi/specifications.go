package adminapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/talkincode/resilienced/internal/domain"
	"github.com/talkincode/resilienced/internal/resilience"
	"github.com/talkincode/resilienced/internal/webserver"
)

type specificationPayload struct {
	Service         string               `json:"service" validate:"required,max=200"`
	Cause           string               `json:"cause" validate:"required,max=200"`
	MaxInitialLoss  int64                `json:"max_initial_loss" validate:"min=0"`
	MaxRecoveryTime *int64               `json:"max_recovery_time" validate:"omitempty,min=0"`
	RecoveryTime    *resilience.Duration `json:"recovery_time"`
	MaxLor          *float64             `json:"max_lor" validate:"omitempty,min=0"`
}

// specificationUpdatePayload max_lor is fixed at creation
type specificationUpdatePayload struct {
	MaxInitialLoss  *int64               `json:"max_initial_loss" validate:"omitempty,min=0"`
	MaxRecoveryTime *int64               `json:"max_recovery_time" validate:"omitempty,min=0"`
	RecoveryTime    *resilience.Duration `json:"recovery_time"`
}

type observationPayload struct {
	CallID int64 `json:"call_id"`
}

// SpecificationView a specification with its current evaluation
type SpecificationView struct {
	*resilience.Outcome
	Observation *resilience.Observation `json:"observation,omitempty"`
}

// registerSpecificationRoutes registers specification routes. Every mutation
// is evaluated and announced.
func registerSpecificationRoutes() {
	webserver.ApiGET("/specifications", ListSpecifications)
	webserver.ApiPOST("/specifications", CreateSpecification)
	webserver.ApiPOST("/specifications/recheck", RecheckSpecifications)
	webserver.ApiGET("/specifications/:id", GetSpecification)
	webserver.ApiPUT("/specifications/:id", UpdateSpecification)
	webserver.ApiDELETE("/specifications/:id", DeleteSpecification)
	webserver.ApiGET("/specifications/:id/assessment", GetSpecificationAssessment)
	webserver.ApiPOST("/specifications/:id/observations", EvaluateSpecificationObservation)
}

// ListSpecifications filtered by ?service= (id) and ?cause=
func ListSpecifications(c echo.Context) error {
	page, pageSize := parsePagination(c)
	db := GetDB(c).Model(&domain.Specification{})

	service, has, err := parseIDQuery(c, "service")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid service ID", nil)
	}
	if has {
		db = db.Where("service_id = ?", service)
	}
	if cause := strings.TrimSpace(c.QueryParam("cause")); cause != "" {
		db = db.Where("cause = ?", cause)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return databaseError(c, "Failed to query specifications", err)
	}
	var specs []domain.Specification
	if err := db.Order("service_id ASC, cause ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&specs).Error; err != nil {
		return databaseError(c, "Failed to query specifications", err)
	}
	return paged(c, specs, total, page, pageSize)
}

// GetSpecification returns the specification with its assessment and verdict
func GetSpecification(c echo.Context) error {
	pair, resolved, err := pairParam(c)
	if !resolved {
		return err
	}
	out, err := GetAppContext(c).Specifications().Show(c.Request().Context(), pair)
	if err != nil {
		return resilienceError(c, err)
	}
	return ok(c, SpecificationView{Outcome: out})
}

func CreateSpecification(c echo.Context) error {
	var payload specificationPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse specification parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	var recovery resilience.Duration
	switch {
	case payload.RecoveryTime != nil:
		recovery = *payload.RecoveryTime
	case payload.MaxRecoveryTime != nil:
		recovery = resilience.Seconds(float64(*payload.MaxRecoveryTime))
	default:
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "recovery_time or max_recovery_time is required", nil)
	}

	out, err := GetAppContext(c).Specifications().Create(c.Request().Context(), resilience.NewSpecification{
		Service:        payload.Service,
		Cause:          payload.Cause,
		MaxInitialLoss: payload.MaxInitialLoss,
		RecoveryTime:   recovery,
		MaxLor:         payload.MaxLor,
	})
	if err != nil {
		return resilienceError(c, err)
	}
	return created(c, SpecificationView{Outcome: out})
}

// UpdateSpecification edits max_initial_loss and max_recovery_time
func UpdateSpecification(c echo.Context) error {
	pair, resolved, err := pairParam(c)
	if !resolved {
		return err
	}
	var payload specificationUpdatePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse specification parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	fields := resilience.SpecificationFields{MaxInitialLoss: payload.MaxInitialLoss, MaxRecoveryTime: payload.MaxRecoveryTime}
	if payload.RecoveryTime != nil {
		seconds, err := payload.RecoveryTime.Seconds()
		if err != nil {
			return resilienceError(c, err)
		}
		whole, err := resilience.WholeSeconds(seconds)
		if err != nil {
			return resilienceError(c, err)
		}
		fields.MaxRecoveryTime = &whole
	}

	out, err := GetAppContext(c).Specifications().Update(c.Request().Context(), pair, fields)
	if err != nil {
		return resilienceError(c, err)
	}
	return ok(c, SpecificationView{Outcome: out})
}

// DeleteSpecification removes the specification and retracts its assessment
func DeleteSpecification(c echo.Context) error {
	pair, resolved, err := pairParam(c)
	if !resolved {
		return err
	}
	spec, err := GetAppContext(c).Specifications().Delete(c.Request().Context(), pair)
	if err != nil {
		return resilienceError(c, err)
	}
	return ok(c, map[string]interface{}{"id": spec.ID, "service": pair.Service, "cause": pair.Cause})
}

func GetSpecificationAssessment(c echo.Context) error {
	pair, resolved, err := pairParam(c)
	if !resolved {
		return err
	}
	out, err := GetAppContext(c).Specifications().Assessment(c.Request().Context(), pair)
	if err != nil {
		return resilienceError(c, err)
	}
	return ok(c, map[string]interface{}{"assessment": out.Assessment, "verdict": out.Verdict})
}

// EvaluateSpecificationObservation evaluates the specification against the
// ServiceData batch call_id of its service
func EvaluateSpecificationObservation(c echo.Context) error {
	pair, resolved, err := pairParam(c)
	if !resolved {
		return err
	}
	var payload observationPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse observation parameters", nil)
	}
	out, obs, err := GetAppContext(c).Specifications().EvaluateObservation(c.Request().Context(), pair, payload.CallID)
	if err != nil {
		return resilienceError(c, err)
	}
	return ok(c, SpecificationView{Outcome: out, Observation: obs})
}

// RecheckSpecifications re-evaluates every specification now
func RecheckSpecifications(c echo.Context) error {
	report, err := GetAppContext(c).RecheckAll(c.Request().Context())
	if err != nil {
		return resilienceError(c, err)
	}
	return ok(c, report)
}

// pairParam resolves :id to its (service, cause) pair. When it cannot, the
// error response is already written and resolved is false.
func pairParam(c echo.Context) (pair resilience.Pair, resolved bool, err error) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return pair, false, fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid specification ID", nil)
	}
	pair, err = GetAppContext(c).Specifications().PairOf(c.Request().Context(), id)
	if errors.Is(err, resilience.ErrNotFound) {
		return pair, false, fail(c, http.StatusNotFound, "SPECIFICATION_NOT_FOUND", "Specification not found", nil)
	} else if err != nil {
		return pair, false, resilienceError(c, err)
	}
	return pair, true, nil
}
