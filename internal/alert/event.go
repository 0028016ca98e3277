// Package alert turns inbound webhook bodies into canonical events, checks
// their shared secret and renders them as Telegram messages.
package alert

// Field is a canonical event attribute addressable by the synonym table.
type Field int

const (
	FieldSecret Field = iota + 1
	FieldTicker
	FieldAction
	FieldPrice
	FieldStopLoss
	FieldTakeProfit
	FieldTimeframe
	FieldNote
)

func (f Field) String() string {
	switch f {
	case FieldSecret:
		return "secret"
	case FieldTicker:
		return "ticker"
	case FieldAction:
		return "action"
	case FieldPrice:
		return "price"
	case FieldStopLoss:
		return "stop_loss"
	case FieldTakeProfit:
		return "take_profit"
	case FieldTimeframe:
		return "timeframe"
	case FieldNote:
		return "note"
	default:
		return "unknown"
	}
}

// PayloadFormat is the wire form an event was parsed from.
type PayloadFormat string

const (
	FormatJSON PayloadFormat = "json"
	FormatText PayloadFormat = "text"
)

// InnerPayload reports what happened to a JSON "message" string field.
type InnerPayload int

const (
	// InnerNone: no string "message" field was present.
	InnerNone InnerPayload = iota
	// InnerParsed: "message" held a JSON object and was merged over the outer keys.
	InnerParsed
	// InnerMalformed: "message" was a string but not a JSON object; merge skipped.
	InnerMalformed
)

func (p InnerPayload) String() string {
	switch p {
	case InnerParsed:
		return "parsed"
	case InnerMalformed:
		return "malformed"
	default:
		return "none"
	}
}

// Event is the canonical, wire-independent form of one received alert.
//
// Empty string means absent for every optional field. Events are built per
// request and never shared.
type Event struct {
	Secret     string
	Ticker     string
	Action     string
	Price      string
	StopLoss   string
	TakeProfit string
	Timeframe  string
	Note       string

	// RawPayload is the original body (text) or the merged object re-encoded (JSON).
	RawPayload string

	Format PayloadFormat
	Inner  InnerPayload
}

// noteSeparator joins accumulated note fragments.
const noteSeparator = " | "

func (e *Event) set(f Field, v string) {
	switch f {
	case FieldSecret:
		e.Secret = v
	case FieldTicker:
		e.Ticker = v
	case FieldAction:
		e.Action = v
	case FieldPrice:
		e.Price = v
	case FieldStopLoss:
		e.StopLoss = v
	case FieldTakeProfit:
		e.TakeProfit = v
	case FieldTimeframe:
		e.Timeframe = v
	case FieldNote:
		e.Note = v
	}
}

func (e *Event) appendNote(s string) {
	if e.Note == "" {
		e.Note = s
		return
	}
	e.Note += noteSeparator + s
}
