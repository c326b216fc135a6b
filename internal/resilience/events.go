package resilience

import (
	"time"

	"github.com/talkincode/resilienced/internal/domain"
)

const DefaultTopic = "vis-interaction"

type Operation string

const (
	OpCreate  Operation = "create"
	OpRecheck Operation = "recheck"
	OpObserve Operation = "observe"
	OpRetract Operation = "retract"
)

// Outcome of one evaluation of a (service, cause) pair.
type Outcome struct {
	Service       string                `json:"service"`
	Specification *domain.Specification `json:"specification"`
	Assessment    *domain.Assessment    `json:"assessment,omitempty"`
	Verdict       *Verdict              `json:"verdict,omitempty"`
}

// Event payload published on the notification topic after every operation.
type Event struct {
	Type       string             `json:"type"`
	Operation  Operation          `json:"operation"`
	Service    string             `json:"service"`
	Cause      string             `json:"cause"`
	Assessment *domain.Assessment `json:"assessment,omitempty"`
	Verdict    *Verdict           `json:"verdict,omitempty"`
	Time       time.Time          `json:"time"`
}

const EventTypeEvaluation = "evaluation"
