package resilience

import (
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/talkincode/resilienced/internal/domain"
)

// Observation the transient behavior derived from one batch of ServiceData.
type Observation struct {
	CallID           int64   `json:"call_id"`
	Samples          int     `json:"samples"`
	InitialLoss      float64 `json:"initial_loss"`  // percent of transactions lost at the peak
	RecoveryTime     float64 `json:"recovery_time"` // seconds from onset to the first loss free sample
	Recovered        bool    `json:"recovered"`
	MeanResponseTime float64 `json:"mean_response_time"`
}

// LossPercent share of failed and dropped transactions in a sample.
func LossPercent(d *domain.ServiceData) float64 {
	total := d.Total()
	if total == 0 {
		return 0
	}
	return float64(d.FailedTransactions+d.DroppedTransactions) * 100 / float64(total)
}

// AnalyzeObservations derives initial loss and recovery time from a batch.
// Onset is the first sample with a loss. The initial loss is the peak loss
// before recovery, recovery is the first later sample without loss. A batch
// that never recovers is measured up to its last sample.
func AnalyzeObservations(rows []*domain.ServiceData) (*Observation, error) {
	if len(rows) == 0 {
		return nil, errors.Wrap(ErrNotFound, "no observations")
	}
	samples := make([]*domain.ServiceData, len(rows))
	copy(samples, rows)
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Time < samples[j].Time })

	responseTimes := make(stats.Float64Data, 0, len(samples))
	for _, s := range samples {
		if s.SuccessfulTransactions < 0 || s.FailedTransactions < 0 || s.DroppedTransactions < 0 {
			return nil, errors.Wrapf(ErrInvalidMeasurement, "negative transaction count at t=%v", s.Time)
		}
		if err := checkMeasurement("response time", s.AvgResponseTime); err != nil {
			return nil, err
		}
		responseTimes = append(responseTimes, s.AvgResponseTime)
	}

	obs := &Observation{CallID: samples[0].CallID, Samples: len(samples), Recovered: true}
	if mean, err := stats.Mean(responseTimes); err == nil {
		obs.MeanResponseTime = mean
	}

	onset := -1
	for i, s := range samples {
		if LossPercent(s) > 0 {
			onset = i
			break
		}
	}
	if onset < 0 {
		return obs, nil
	}

	end := len(samples) - 1
	obs.Recovered = false
	for i := onset + 1; i < len(samples); i++ {
		if LossPercent(samples[i]) == 0 {
			end = i
			obs.Recovered = true
			break
		}
	}

	window := make(stats.Float64Data, 0, end-onset+1)
	for _, s := range samples[onset : end+1] {
		window = append(window, LossPercent(s))
	}
	peak, err := stats.Max(window)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidMeasurement, err.Error())
	}
	obs.InitialLoss = peak
	obs.RecoveryTime = samples[end].Time - samples[onset].Time
	return obs, nil
}
