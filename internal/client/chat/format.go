package chat

import (
	"fmt"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/models"
)

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func shortDate(t time.Time) string {
	return t.Format("02/01/2006")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// FormatLastSeen renders a last-seen time relative to now.
func FormatLastSeen(lastSeen *time.Time, now time.Time) string {
	if lastSeen == nil || lastSeen.IsZero() {
		return "Unknown"
	}
	diff := now.Sub(*lastSeen)
	mins := int(diff / time.Minute)
	hours := int(diff / time.Hour)
	days := int(diff / (24 * time.Hour))

	switch {
	case mins < 1:
		return "Just now"
	case mins < 60:
		return plural(mins, "minute")
	case hours < 24:
		return plural(hours, "hour")
	case days == 1:
		return "Yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	default:
		return shortDate(lastSeen.In(now.Location()))
	}
}

// FormatDateSeparator labels the day a message was sent.
func FormatDateSeparator(ts, now time.Time) string {
	day := dayStart(ts.In(now.Location()))
	today := dayStart(now)
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return shortDate(day)
	}
}

// Row is one rendered line group of a thread.
type Row struct {
	Separator string
	ShowName  bool
	Message   models.Message
}

// Layout decides where day separators go and which messages show their
// sender's name: on the first message, after a sender change and after a
// separator.
func Layout(msgs []models.Message, now time.Time) []Row {
	rows := make([]Row, len(msgs))
	prevKey := ""
	for i, m := range msgs {
		key := ""
		if m.Timestamp != nil {
			key = dayStart(m.Timestamp.In(now.Location())).Format("2006-01-02")
		}
		row := Row{Message: m}
		if key != "" && key != prevKey {
			row.Separator = FormatDateSeparator(*m.Timestamp, now)
		}
		row.ShowName = i == 0 || msgs[i-1].SenderID != m.SenderID || row.Separator != ""
		rows[i] = row
		prevKey = key
	}
	return rows
}
