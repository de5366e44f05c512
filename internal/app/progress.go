package app

import (
	"fmt"
	"time"

	"github.com/example/patchbot/internal/ports/secondary"
)

// progressThrottle forwards agent progress events to a post function at
// most once per interval. Final events always flush immediately.
type progressThrottle struct {
	interval time.Duration
	post     func(text string)
	now      func() time.Time

	last time.Time
}

func newProgressThrottle(interval time.Duration, post func(text string)) *progressThrottle {
	return &progressThrottle{
		interval: interval,
		post:     post,
		now:      time.Now,
	}
}

// Emit forwards the event unless a non-final update was posted within the
// throttle interval.
func (t *progressThrottle) Emit(ev secondary.ProgressEvent) {
	text := renderProgress(ev)
	if ev.Final {
		t.post(text)
		return
	}

	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return
	}
	t.last = now
	t.post(text)
}

func renderProgress(ev secondary.ProgressEvent) string {
	switch {
	case ev.Phase == "tool" && ev.Detail != "":
		return fmt.Sprintf("running %s: %s", ev.Tool, ev.Detail)
	case ev.Phase == "tool":
		return fmt.Sprintf("running %s", ev.Tool)
	case ev.Detail != "":
		return fmt.Sprintf("%s: %s", ev.Phase, ev.Detail)
	default:
		return ev.Phase
	}
}
