package alert

import (
	"html"
	"strings"
	"time"
)

const (
	// ParseMode is the Telegram parse mode Format output is written for.
	ParseMode = "HTML"

	defaultAction = "SIGNAL"
	defaultTicker = "Unknown"
	timeLayout    = "2006-01-02 15:04:05 UTC"
)

// Formatter renders events as Telegram HTML messages.
type Formatter struct {
	// Now stamps the trailing line; time.Now when nil.
	Now func() time.Time
}

// Format renders ev. Optional lines are omitted when their field is empty.
func (f Formatter) Format(ev Event) string {
	action := strings.ToUpper(ev.Action)
	if action == "" {
		action = defaultAction
	}
	ticker := ev.Ticker
	if ticker == "" {
		ticker = defaultTicker
	}

	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(action))
	b.WriteString(" — ")
	b.WriteString(html.EscapeString(ticker))
	b.WriteString("</b>\n")

	line := func(label, v string, code bool) {
		if v == "" {
			return
		}
		b.WriteString(label)
		b.WriteString(": ")
		if code {
			b.WriteString("<code>")
			b.WriteString(html.EscapeString(v))
			b.WriteString("</code>")
		} else {
			b.WriteString(html.EscapeString(v))
		}
		b.WriteByte('\n')
	}
	line("Timeframe", ev.Timeframe, false)
	line("Price", ev.Price, true)
	line("SL", ev.StopLoss, true)
	line("TP", ev.TakeProfit, true)
	line("Note", ev.Note, false)

	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	b.WriteString(now().UTC().Format(timeLayout))
	return b.String()
}
