// Package notices is the transient user-notice (toast) output interface.
// Every user-initiated mutation in the sync stores emits exactly one
// success or failure notice; best-effort background work logs instead.
package notices

import (
	"log/slog"
	"sync"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notice is a single transient message shown to the user.
type Notice struct {
	Level   Level
	Title   string
	Message string
}

// Notifier receives notices; the UI shell renders them as toasts.
type Notifier interface {
	Notify(notice Notice)
}

func Success(title, message string) Notice {
	return Notice{Level: LevelSuccess, Title: title, Message: message}
}

func Error(title, message string) Notice {
	return Notice{Level: LevelError, Title: title, Message: message}
}

func Info(title, message string) Notice {
	return Notice{Level: LevelInfo, Title: title, Message: message}
}

// Discard drops every notice. Useful for headless tools.
type Discard struct{}

func (Discard) Notify(Notice) {}

// Log writes notices to a structured logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(n Notice) {
	if l.Logger == nil {
		return
	}
	switch n.Level {
	case LevelError:
		l.Logger.Error("notice", "title", n.Title, "message", n.Message)
	default:
		l.Logger.Info("notice", "level", string(n.Level), "title", n.Title, "message", n.Message)
	}
}

// Recorder collects notices for assertions in tests.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n.clone())
	r.mu.Unlock()
}

// All returns a copy of every recorded notice.
func (r *Recorder) All() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Count returns how many notices of the given level were recorded.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, notice := range r.notices {
		if notice.Level == level {
			n++
		}
	}
	return n
}

// Reset clears the recorder.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.notices = nil
	r.mu.Unlock()
}

func (n Notice) clone() Notice {
	return Notice{Level: n.Level, Title: n.Title, Message: n.Message}
}
