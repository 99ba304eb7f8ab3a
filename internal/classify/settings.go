package classify

import (
	"context"
	"time"
)

// Settings holds every tunable of a classification run. Zero fields fall back
// to the defaults below. A negative MaxRetries or pause means none.
type Settings struct {
	Model string

	BatchSize       int
	MaxRetries      int
	ShrinkFloor     int
	RetryPause      time.Duration
	BatchPause      time.Duration
	Timeout         time.Duration
	Temperature     float64
	MaxOutputTokens int

	RescueThreshold       int
	RescueBatchSize       int
	RescueTemperature     float64
	RescueMaxOutputTokens int
}

const (
	defaultBatchSize             = 150
	defaultMaxRetries            = 2
	defaultShrinkFloor           = 10
	defaultRetryPause            = time.Second
	defaultBatchPause            = 500 * time.Millisecond
	defaultTimeout               = 45 * time.Second
	defaultTemperature           = 0.3
	defaultMaxOutputTokens       = 8000
	defaultRescueThreshold       = 10
	defaultRescueBatchSize       = 20
	defaultRescueTemperature     = 0.1
	defaultRescueMaxOutputTokens = 3000
)

func DefaultSettings() Settings {
	return Settings{}.withDefaults()
}

func (s Settings) withDefaults() Settings {
	if s.BatchSize <= 0 {
		s.BatchSize = defaultBatchSize
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	} else if s.MaxRetries == 0 {
		s.MaxRetries = defaultMaxRetries
	}
	if s.ShrinkFloor <= 0 {
		s.ShrinkFloor = defaultShrinkFloor
	}
	if s.RetryPause == 0 {
		s.RetryPause = defaultRetryPause
	}
	if s.BatchPause == 0 {
		s.BatchPause = defaultBatchPause
	}
	if s.Timeout <= 0 {
		s.Timeout = defaultTimeout
	}
	if s.Temperature == 0 {
		s.Temperature = defaultTemperature
	}
	if s.MaxOutputTokens <= 0 {
		s.MaxOutputTokens = defaultMaxOutputTokens
	}
	if s.RescueThreshold <= 0 {
		s.RescueThreshold = defaultRescueThreshold
	}
	if s.RescueBatchSize <= 0 {
		s.RescueBatchSize = defaultRescueBatchSize
	}
	if s.RescueTemperature == 0 {
		s.RescueTemperature = defaultRescueTemperature
	}
	if s.RescueMaxOutputTokens <= 0 {
		s.RescueMaxOutputTokens = defaultRescueMaxOutputTokens
	}
	return s
}

// sleepFunc waits for d or until ctx is done. Negative durations disable the pause.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
