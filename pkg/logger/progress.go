package logger

import (
	"fmt"
	"sync"
	"time"
)

// StageTimer measures one pipeline stage and logs its row counts and throughput.
// It also reports periodic progress for long loops such as fuzzy matching.
type StageTimer struct {
	logger      Logger
	stage       string
	total       int64
	current     int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mutex       sync.Mutex
}

// StageConfig configures a StageTimer
type StageConfig struct {
	Stage       string        `json:"stage"`
	Total       int64         `json:"total"`
	LogInterval time.Duration `json:"log_interval"`
	Logger      Logger        `json:"-"`
}

// StageStats is the snapshot returned when a stage finishes
type StageStats struct {
	Stage     string        `json:"stage"`
	Total     int64         `json:"total"`
	Processed int64         `json:"processed"`
	Duration  time.Duration `json:"duration"`
	Rate      float64       `json:"rate"`
}

// String returns a human-readable representation of the stage
func (s StageStats) String() string {
	return fmt.Sprintf("%s: %d/%d in %v (%.2f/sec)", s.Stage, s.Processed, s.Total, s.Duration, s.Rate)
}

// StartStage creates a timer and logs the start of the stage at debug level
func StartStage(config StageConfig) *StageTimer {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.LogInterval == 0 {
		config.LogInterval = 5 * time.Second
	}

	now := time.Now()
	timer := &StageTimer{
		logger:      config.Logger,
		stage:       config.Stage,
		total:       config.Total,
		startTime:   now,
		lastLogTime: now,
		logInterval: config.LogInterval,
	}

	timer.logger.WithFields(Fields{
		"stage": config.Stage,
		"total": config.Total,
	}).Debug("Stage started")

	return timer
}

// Increment increments the processed counter by 1
func (s *StageTimer) Increment() {
	s.Add(1)
}

// Add increments the processed counter by delta and logs progress at intervals
func (s *StageTimer) Add(delta int64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.current += delta
	now := time.Now()
	if now.Sub(s.lastLogTime) >= s.logInterval {
		s.logger.WithFields(s.fields(now)).Info("Stage progress")
		s.lastLogTime = now
	}
}

// Complete logs the final statistics of the stage and returns them
func (s *StageTimer) Complete(extra Fields) StageStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now()
	fields := s.fields(now)
	for k, v := range extra {
		fields[k] = v
	}
	s.logger.WithFields(fields).Info("Stage completed")

	return s.stats(now)
}

func (s *StageTimer) stats(now time.Time) StageStats {
	duration := now.Sub(s.startTime)
	var rate float64
	if duration.Seconds() > 0 {
		rate = float64(s.current) / duration.Seconds()
	}
	return StageStats{
		Stage:     s.stage,
		Total:     s.total,
		Processed: s.current,
		Duration:  duration,
		Rate:      rate,
	}
}

func (s *StageTimer) fields(now time.Time) Fields {
	st := s.stats(now)
	return Fields{
		"stage":     st.Stage,
		"total":     st.Total,
		"processed": st.Processed,
		"duration":  st.Duration.String(),
		"rate":      fmt.Sprintf("%.2f/sec", st.Rate),
	}
}
