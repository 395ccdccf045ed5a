package notify

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNotifySanitizes(t *testing.T) {
	n := NewNotifier(zap.NewNop(), 10)

	note := n.Notify(Notification{
		ScriptID: "s1",
		Title:    "<b>Hello</b>",
		Text:     `done <script>alert(1)</script><img src=x onerror=alert(1)> & ok`,
		ImageURL: "javascript:alert(1)",
	})

	assert.NotEmpty(t, note.ID)
	assert.Equal(t, "Hello", note.Title)
	assert.NotContains(t, note.Text, "<")
	assert.NotContains(t, note.Text, "alert")
	assert.Contains(t, note.Text, "& ok")
	assert.Empty(t, note.ImageURL)
	assert.False(t, note.CreatedAt.IsZero())
}

func TestNotifyKeepsImage(t *testing.T) {
	n := NewNotifier(nil, 0)
	note := n.Notify(Notification{Title: "x", ImageURL: "https://example.com/i.png"})
	assert.Equal(t, "https://example.com/i.png", note.ImageURL)
}

func TestHistoryBounded(t *testing.T) {
	n := NewNotifier(zap.NewNop(), 3)
	for i := 0; i < 5; i++ {
		n.Notify(Notification{Title: fmt.Sprintf("n%d", i)})
	}

	history := n.History()
	require.Len(t, history, 3)
	assert.Equal(t, "n2", history[0].Title)
	assert.Equal(t, "n4", history[2].Title)
}

func TestDismiss(t *testing.T) {
	n := NewNotifier(zap.NewNop(), 10)
	a := n.Notify(Notification{Title: "a"})
	n.Notify(Notification{Title: "b"})

	assert.True(t, n.Dismiss(a.ID))
	assert.False(t, n.Dismiss(a.ID))
	require.Len(t, n.History(), 1)
	assert.Equal(t, "b", n.History()[0].Title)
}

func TestLongTextTruncated(t *testing.T) {
	n := NewNotifier(zap.NewNop(), 10)
	note := n.Notify(Notification{Text: strings.Repeat("a", 5000)})
	assert.Len(t, note.Text, maxTextLength)
}
