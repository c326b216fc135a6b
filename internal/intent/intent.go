// Package intent turns Dialogflow fulfillment requests into specification
// operations.
package intent

import (
	"math"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/talkincode/resilienced/internal/resilience"
)

// Dialogflow intent display names
const (
	NameSelectService                 = "SelectService"
	NameAddSpecification              = "AddSpecification"
	NameDeleteSpecification           = "DeleteSpecification"
	NameEditSpecificationLoss         = "EditSpecificationLoss"
	NameEditSpecificationRecoveryTime = "EditSpecificationRecoveryTime"
	NameShowSpecification             = "ShowSpecification"
)

// Keys of the params published with an interaction
const (
	ParamServiceName      = "service_name"
	ParamTbCause          = "tb_cause"
	ParamInitialLoss      = "initial_loss"
	ParamRecoveryTime     = "recovery_time"
	ParamLossOfResilience = "loss_of_resilience"
)

var (
	ErrUnknownIntent = errors.New("unknown intent")
	ErrInvalidParams = errors.New("invalid intent parameters")
)

// Request the part of a Dialogflow v2 WebhookRequest that is used
type Request struct {
	ResponseID  string      `json:"responseId"`
	Session     string      `json:"session"`
	QueryResult QueryResult `json:"queryResult"`
}

type QueryResult struct {
	QueryText  string                 `json:"queryText"`
	Parameters map[string]interface{} `json:"parameters"`
	Intent     struct {
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
	} `json:"intent"`
}

// Response a Dialogflow WebhookResponse
type Response struct {
	FulfillmentText string `json:"fulfillmentText"`
}

// Intent one decoded operator request. The concrete types below are the only
// implementations.
type Intent interface {
	Name() string
	// Params the parameters announced to observers
	Params() map[string]interface{}
	intent()
}

type SelectService struct {
	Service string
}

type AddSpecification struct {
	Service      string
	Cause        string
	InitialLoss  int64
	RecoveryTime resilience.Duration
	// MaxLor nil when the operator left the bound out
	MaxLor *float64
}

type DeleteSpecification struct {
	resilience.Pair
}

type EditSpecificationLoss struct {
	resilience.Pair
	InitialLoss int64
}

type EditSpecificationRecoveryTime struct {
	resilience.Pair
	RecoveryTime resilience.Duration
}

// ShowSpecification Service may be empty, the visualization then highlights
// the cause on every service.
type ShowSpecification struct {
	resilience.Pair
}

func (SelectService) Name() string                 { return NameSelectService }
func (AddSpecification) Name() string              { return NameAddSpecification }
func (DeleteSpecification) Name() string           { return NameDeleteSpecification }
func (EditSpecificationLoss) Name() string         { return NameEditSpecificationLoss }
func (EditSpecificationRecoveryTime) Name() string { return NameEditSpecificationRecoveryTime }
func (ShowSpecification) Name() string             { return NameShowSpecification }

func (SelectService) intent()                 {}
func (AddSpecification) intent()              {}
func (DeleteSpecification) intent()           {}
func (EditSpecificationLoss) intent()         {}
func (EditSpecificationRecoveryTime) intent() {}
func (ShowSpecification) intent()             {}

func (i SelectService) Params() map[string]interface{} {
	return map[string]interface{}{ParamServiceName: i.Service}
}

func (i AddSpecification) Params() map[string]interface{} {
	p := map[string]interface{}{
		ParamServiceName:  i.Service,
		ParamTbCause:      i.Cause,
		ParamInitialLoss:  i.InitialLoss,
		ParamRecoveryTime: i.RecoveryTime,
	}
	if i.MaxLor != nil {
		p[ParamLossOfResilience] = *i.MaxLor
	}
	return p
}

func (i DeleteSpecification) Params() map[string]interface{} {
	return pairParams(i.Pair)
}

func (i EditSpecificationLoss) Params() map[string]interface{} {
	p := pairParams(i.Pair)
	p[ParamInitialLoss] = i.InitialLoss
	return p
}

func (i EditSpecificationRecoveryTime) Params() map[string]interface{} {
	p := pairParams(i.Pair)
	p[ParamRecoveryTime] = i.RecoveryTime
	return p
}

func (i ShowSpecification) Params() map[string]interface{} {
	p := map[string]interface{}{ParamTbCause: i.Cause}
	if i.Service != "" {
		p[ParamServiceName] = i.Service
	}
	return p
}

func pairParams(p resilience.Pair) map[string]interface{} {
	return map[string]interface{}{ParamServiceName: p.Service, ParamTbCause: p.Cause}
}

// rawParams Dialogflow parameter names
type rawParams struct {
	Service          string               `mapstructure:"service-name"`
	Cause            string               `mapstructure:"tb-cause"`
	InitialLoss      interface{}          `mapstructure:"initial-loss"`
	RecoveryTime     *resilience.Duration `mapstructure:"recovery-time"`
	LossOfResilience interface{}          `mapstructure:"loss-of-resilience"`
}

// Decode builds the intent named by the request from its parameters.
func Decode(req *Request) (Intent, error) {
	if req == nil {
		return nil, errors.Wrap(ErrInvalidParams, "empty request")
	}
	name := strings.TrimSpace(req.QueryResult.Intent.DisplayName)

	var raw rawParams
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &raw,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(filled(req.QueryResult.Parameters)); err != nil {
		return nil, errors.Wrapf(ErrInvalidParams, "%s: %v", name, err)
	}
	raw.Service = strings.TrimSpace(raw.Service)
	raw.Cause = strings.TrimSpace(raw.Cause)
	pair := resilience.Pair{Service: raw.Service, Cause: raw.Cause}

	switch name {
	case NameSelectService:
		if raw.Service == "" {
			return nil, missing(name, "service-name")
		}
		return SelectService{Service: raw.Service}, nil

	case NameAddSpecification:
		if err := requirePair(name, pair); err != nil {
			return nil, err
		}
		loss, err := initialLoss(name, raw.InitialLoss)
		if err != nil {
			return nil, err
		}
		if raw.RecoveryTime == nil {
			return nil, missing(name, "recovery-time")
		}
		lor, err := lossOfResilience(name, raw.LossOfResilience)
		if err != nil {
			return nil, err
		}
		return AddSpecification{
			Service:      raw.Service,
			Cause:        raw.Cause,
			InitialLoss:  loss,
			RecoveryTime: *raw.RecoveryTime,
			MaxLor:       lor,
		}, nil

	case NameDeleteSpecification:
		if err := requirePair(name, pair); err != nil {
			return nil, err
		}
		return DeleteSpecification{Pair: pair}, nil

	case NameEditSpecificationLoss:
		if err := requirePair(name, pair); err != nil {
			return nil, err
		}
		loss, err := initialLoss(name, raw.InitialLoss)
		if err != nil {
			return nil, err
		}
		return EditSpecificationLoss{Pair: pair, InitialLoss: loss}, nil

	case NameEditSpecificationRecoveryTime:
		if err := requirePair(name, pair); err != nil {
			return nil, err
		}
		if raw.RecoveryTime == nil {
			return nil, missing(name, "recovery-time")
		}
		return EditSpecificationRecoveryTime{Pair: pair, RecoveryTime: *raw.RecoveryTime}, nil

	case NameShowSpecification:
		if raw.Cause == "" {
			return nil, missing(name, "tb-cause")
		}
		return ShowSpecification{Pair: pair}, nil
	}
	return nil, errors.Wrapf(ErrUnknownIntent, "%q", name)
}

// filled drops the parameters Dialogflow left unfilled ("")
func filled(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func missing(intent, param string) error {
	return errors.Wrapf(ErrInvalidParams, "%s: %s is required", intent, param)
}

func requirePair(intent string, p resilience.Pair) error {
	if p.Service == "" {
		return missing(intent, "service-name")
	}
	if p.Cause == "" {
		return missing(intent, "tb-cause")
	}
	return nil
}

// initialLoss Dialogflow sends numbers as floats, the bound is a whole percentage
func initialLoss(intent string, v interface{}) (int64, error) {
	if v == nil {
		return 0, missing(intent, "initial-loss")
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Wrapf(ErrInvalidParams, "%s: initial-loss %v", intent, v)
	}
	if f < 0 || f >= math.MaxInt64 {
		return 0, errors.Wrapf(resilience.ErrInvalidMeasurement, "%s: initial-loss %v", intent, v)
	}
	return int64(math.Round(f)), nil
}

// lossOfResilience nil when no bound was given
func lossOfResilience(intent string, v interface{}) (*float64, error) {
	if v == nil {
		return nil, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidParams, "%s: loss-of-resilience %v", intent, v)
	}
	return &f, nil
}
