package dashboard

import (
	"fmt"
	"sync"
	"time"
)

// NoticeLevel classifies a user-facing notice.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

const maxNotices = 8

// Notice is a message shown to the dashboard user.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	Time    time.Time   `json:"time"`
}

// Notifier receives every notice the controller raises.
type Notifier interface {
	Notify(Notice)
}

// NoticeLog keeps the most recent notices, newest first.
type NoticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify records n.
func (l *NoticeLog) Notify(n Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.notices = append([]Notice{n}, l.notices...)
	if len(l.notices) > maxNotices {
		l.notices = l.notices[:maxNotices]
	}
}

// List returns a copy of the recorded notices.
func (l *NoticeLog) List() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Notice, len(l.notices))
	copy(out, l.notices)
	return out
}

func (c *Controller) notify(level NoticeLevel, format string, args ...any) {
	n := Notice{
		Level:   level,
		Message: fmt.Sprintf(format, args...),
		Time:    time.Now(),
	}
	c.notices.Notify(n)
	if c.opts.Notifier != nil {
		c.opts.Notifier.Notify(n)
	}
}
