// Package notify is the notification surface scripts and the policy engine
// post to. Notifications are sanitized, logged and kept in a bounded
// history the management API can read.
package notify

import (
	"html"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// DefaultHistorySize bounds the history when NewNotifier gets zero.
const DefaultHistorySize = 100

const maxTextLength = 1000

// Notification is a sanitized notification.
type Notification struct {
	ID        string    `json:"id"`
	ScriptID  string    `json:"scriptId,omitempty"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Priority  int       `json:"priority,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notifier sanitizes and records notifications.
type Notifier struct {
	mu        sync.RWMutex
	history   []Notification
	limit     int
	sanitizer *bluemonday.Policy
	logger    *zap.Logger
}

// NewNotifier creates a notifier keeping at most limit notifications.
func NewNotifier(logger *zap.Logger, limit int) *Notifier {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		limit:     limit,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
	}
}

// Notify sanitizes n, assigns an id and records it.
func (n *Notifier) Notify(note Notification) Notification {
	note.ID = uuid.NewString()
	note.Title = n.clean(note.Title)
	note.Text = n.clean(note.Text)
	if note.ImageURL != "" && !strings.HasPrefix(note.ImageURL, "https://") && !strings.HasPrefix(note.ImageURL, "data:image/") {
		note.ImageURL = ""
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}

	n.mu.Lock()
	n.history = append(n.history, note)
	if over := len(n.history) - n.limit; over > 0 {
		n.history = append([]Notification(nil), n.history[over:]...)
	}
	n.mu.Unlock()

	n.logger.Info("Notification",
		zap.String("notification_id", note.ID),
		zap.String("script_id", note.ScriptID),
		zap.String("title", note.Title),
	)
	return note
}

// History returns recorded notifications, oldest first.
func (n *Notifier) History() []Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]Notification(nil), n.history...)
}

// Dismiss removes a notification. It reports whether one was removed.
func (n *Notifier) Dismiss(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, note := range n.history {
		if note.ID == id {
			n.history = append(n.history[:i], n.history[i+1:]...)
			return true
		}
	}
	return false
}

// clean strips markup. StrictPolicy escapes entities, which is undone so
// the result is plain text.
func (n *Notifier) clean(s string) string {
	s = html.UnescapeString(n.sanitizer.Sanitize(s))
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxTextLength {
		s = string(r[:maxTextLength])
	}
	return s
}
