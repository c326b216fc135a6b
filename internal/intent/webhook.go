package intent

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/talkincode/resilienced/internal/app"
	"github.com/talkincode/resilienced/internal/resilience"
	"github.com/talkincode/resilienced/internal/webserver"
	"go.uber.org/zap"
)

const EventTypeInteraction = "interaction"

// Interaction announces an executed intent to the visualization
type Interaction struct {
	Type   string                 `json:"type"`
	Intent string                 `json:"intent"`
	Params map[string]interface{} `json:"params"`
}

// Webhook executes intents through the specification workflow
type Webhook struct {
	specs   *resilience.Specifications
	emitter resilience.Emitter
	topic   string
}

func NewWebhook(specs *resilience.Specifications, emitter resilience.Emitter, topic string) *Webhook {
	if emitter == nil {
		emitter = resilience.NopEmitter{}
	}
	if strings.TrimSpace(topic) == "" {
		topic = resilience.DefaultTopic
	}
	return &Webhook{specs: specs, emitter: emitter, topic: topic}
}

// Handle executes the intent and returns the reply for the operator. Requests
// the operator can correct (unknown pair, bad unit, duplicate) are answered,
// not failed. The interaction is published once the intent took effect.
func (w *Webhook) Handle(ctx context.Context, in Intent) (string, error) {
	reply, done, err := w.execute(ctx, in)
	if err != nil {
		if text, answered := explain(in, err); answered {
			zap.L().Info("intent not applied",
				zap.String("namespace", "intent"),
				zap.String("intent", in.Name()),
				zap.Error(err))
			return text, nil
		}
		return "", err
	}
	if done != nil {
		w.publish(done)
	}
	return reply, nil
}

// execute returns the intent to announce, resolved with stored values
func (w *Webhook) execute(ctx context.Context, in Intent) (string, Intent, error) {
	switch i := in.(type) {
	case SelectService:
		return fmt.Sprintf("I am selecting %s", i.Service), i, nil

	case AddSpecification:
		out, err := w.specs.Create(ctx, resilience.NewSpecification{
			Service:        i.Service,
			Cause:          i.Cause,
			MaxInitialLoss: i.InitialLoss,
			RecoveryTime:   i.RecoveryTime,
			MaxLor:         i.MaxLor,
		})
		if err != nil {
			return "", nil, err
		}
		spec := out.Specification
		i.MaxLor = &spec.MaxLor
		return fmt.Sprintf("I specified the following transient behavior for %s in case of %s: initial loss: %d, recovery time: %ds, loss of resilience: %s",
			i.Service, i.Cause, spec.MaxInitialLoss, spec.MaxRecoveryTime, formatFloat(spec.MaxLor)), i, nil

	case DeleteSpecification:
		if _, err := w.specs.Delete(ctx, i.Pair); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("I deleted the transient behavior specification for %s of %s", i.Cause, i.Service), i, nil

	case EditSpecificationLoss:
		out, err := w.specs.EditInitialLoss(ctx, i.Pair, i.InitialLoss)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Updated the initial loss for %s of %s to %d", i.Cause, i.Service, out.Specification.MaxInitialLoss), i, nil

	case EditSpecificationRecoveryTime:
		out, err := w.specs.EditRecoveryTime(ctx, i.Pair, i.RecoveryTime)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Updated the recovery time for %s of %s to %d s", i.Cause, i.Service, out.Specification.MaxRecoveryTime), i, nil

	case ShowSpecification:
		if i.Service == "" {
			return "Here is your specification.", i, nil
		}
		out, err := w.specs.Show(ctx, i.Pair)
		if err != nil {
			return "", nil, err
		}
		return "Here is your specification." + describe(out), i, nil
	}
	return "", nil, errors.Wrapf(ErrUnknownIntent, "%T", in)
}

func (w *Webhook) publish(in Intent) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("interaction publish panic", zap.String("topic", w.topic), zap.Any("panic", r))
		}
	}()
	w.emitter.Publish(w.topic, Interaction{Type: EventTypeInteraction, Intent: in.Name(), Params: in.Params()})
}

// explain answers the failures an operator can fix in the conversation
func explain(in Intent, err error) (string, bool) {
	var pair resilience.Pair
	switch i := in.(type) {
	case AddSpecification:
		pair = resilience.Pair{Service: i.Service, Cause: i.Cause}
	case DeleteSpecification:
		pair = i.Pair
	case EditSpecificationLoss:
		pair = i.Pair
	case EditSpecificationRecoveryTime:
		pair = i.Pair
	case ShowSpecification:
		pair = i.Pair
	}

	switch {
	case errors.Is(err, resilience.ErrConflict):
		return fmt.Sprintf("There already is a transient behavior specification for %s of %s", pair.Cause, pair.Service), true
	case errors.Is(err, resilience.ErrNotFound):
		if _, adding := in.(AddSpecification); adding {
			return fmt.Sprintf("I do not know the service %s", pair.Service), true
		}
		return fmt.Sprintf("There is no transient behavior specification for %s of %s", pair.Cause, pair.Service), true
	case errors.Is(err, resilience.ErrInvalidUnit),
		errors.Is(err, resilience.ErrInvalidMeasurement),
		errors.Is(err, resilience.ErrInvalidInput):
		return fmt.Sprintf("I could not apply that: %v", err), true
	}
	return "", false
}

func describe(out *resilience.Outcome) string {
	if out.Assessment == nil || out.Verdict == nil {
		return " It has not been evaluated yet."
	}
	text := fmt.Sprintf(" Loss of resilience: %s of at most %s, %s.",
		formatFloat(out.Assessment.Lor), formatFloat(out.Specification.MaxLor), out.Verdict.Status)
	if out.Verdict.Violating() {
		axes := make([]string, 0, len(out.Verdict.Violations))
		for _, axis := range out.Verdict.Axes() {
			axes = append(axes, strings.ReplaceAll(string(axis), "_", " "))
		}
		text += " Violated: " + strings.Join(axes, ", ") + "."
	}
	return text
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var initOnce sync.Once

// Init registers the Dialogflow fulfillment route
func Init() {
	initOnce.Do(func() {
		webserver.ApiPOST("/dialogflow", Fulfill)
	})
}

// Fulfill answers a Dialogflow fulfillment request
func Fulfill(c echo.Context) error {
	appCtx, _ := webserver.GetAppContext(c).(app.AppContext)

	var req Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Response{FulfillmentText: "I could not read that request"})
	}
	in, err := Decode(&req)
	if err != nil {
		zap.L().Warn("undecodable intent",
			zap.String("namespace", "intent"),
			zap.String("intent", req.QueryResult.Intent.DisplayName),
			zap.Error(err))
		return c.JSON(http.StatusBadRequest, Response{FulfillmentText: err.Error()})
	}
	zap.L().Info("dialogflow intent",
		zap.String("namespace", "intent"),
		zap.String("intent", in.Name()),
		zap.String("session", req.Session))

	hook := NewWebhook(appCtx.Specifications(), appCtx.Bus(), appCtx.Evaluator().Topic())
	reply, err := hook.Handle(c.Request().Context(), in)
	if err != nil {
		zap.L().Error("intent failed",
			zap.String("namespace", "intent"),
			zap.String("intent", in.Name()),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, Response{FulfillmentText: "Sorry, something went wrong while handling " + in.Name()})
	}
	return c.JSON(http.StatusOK, Response{FulfillmentText: reply})
}
