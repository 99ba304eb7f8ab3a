package processor

import (
	"fmt"
	"log"
	"time"
)

// Progress is one update of a processing run.
type Progress struct {
	Step     string
	Progress int
	Details  string
	Elapsed  time.Duration
}

// Monitor logs progress updates and forwards them to an optional callback.
type Monitor struct {
	callback func(Progress)
	start    time.Time
	now      func() time.Time
	last     Progress
}

func NewMonitor(callback func(Progress)) *Monitor {
	return &Monitor{callback: callback, start: time.Now(), now: time.Now}
}

func (m *Monitor) Update(step string, progress int, details string) {
	if m == nil {
		return
	}
	progress = max(0, min(progress, 100))
	p := Progress{Step: step, Progress: progress, Details: details, Elapsed: m.now().Sub(m.start)}
	m.last = p
	if details == "" {
		log.Printf("[%3d%%] %s", progress, step)
	} else {
		log.Printf("[%3d%%] %s: %s", progress, step, details)
	}
	if m.callback != nil {
		m.callback(p)
	}
}

func (m *Monitor) Complete() {
	m.Update("done", 100, "")
}

// Last returns the most recent update.
func (m *Monitor) Last() Progress {
	if m == nil {
		return Progress{}
	}
	return m.last
}

func (m *Monitor) Elapsed() time.Duration {
	if m == nil {
		return 0
	}
	return m.now().Sub(m.start)
}

// FormatElapsed renders a duration as "3m 07s".
func FormatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%dm %02ds", int(d/time.Minute), int((d%time.Minute)/time.Second))
}
