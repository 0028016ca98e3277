package alert

import (
	"bytes"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"
)

// jsonKeys maps the exact JSON key of a structured payload to its field.
// "exchange" is accepted by senders but carries nothing we keep.
var jsonKeys = map[string]Field{
	"secret":    FieldSecret,
	"ticker":    FieldTicker,
	"action":    FieldAction,
	"price":     FieldPrice,
	"sl":        FieldStopLoss,
	"tp":        FieldTakeProfit,
	"timeframe": FieldTimeframe,
	"note":      FieldNote,
}

// textSynonyms maps lower-cased free-text keys to their field.
var textSynonyms = map[string]Field{
	"secret":    FieldSecret,
	"pass":      FieldSecret,
	"token":     FieldSecret,
	"ticker":    FieldTicker,
	"symbol":    FieldTicker,
	"action":    FieldAction,
	"side":      FieldAction,
	"price":     FieldPrice,
	"sl":        FieldStopLoss,
	"tp":        FieldTakeProfit,
	"timeframe": FieldTimeframe,
	"tf":        FieldTimeframe,
}

const innerMessageKey = "message"

// Normalize converts a webhook body into an Event. It never fails: a body
// that is not a JSON object is parsed as free text.
func Normalize(body []byte) Event {
	if obj, ok := decodeObject(body); ok {
		return fromObject(obj)
	}
	return fromText(string(body))
}

// decodeObject decodes b as a single JSON object, keeping numbers as their
// literal text.
func decodeObject(b []byte) (map[string]any, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' || !json.Valid(b) {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func fromObject(obj map[string]any) Event {
	ev := Event{Format: FormatJSON}

	if s, ok := obj[innerMessageKey].(string); ok {
		if inner, ok := decodeObject([]byte(s)); ok {
			for k, v := range inner {
				obj[k] = v
			}
			ev.Inner = InnerParsed
		} else {
			ev.Inner = InnerMalformed
		}
	}

	for key, f := range jsonKeys {
		if v, ok := obj[key]; ok {
			ev.set(f, stringify(v))
		}
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		// Every value came out of the decoder, so this only trips on a codec bug.
		raw = []byte("{}")
	}
	ev.RawPayload = string(raw)
	return ev
}

// stringify renders a decoded JSON value as opaque text.
func stringify(v any) string {
	if v == nil {
		return ""
	}
	switch n := v.(type) {
	case json.Number:
		return n.String()
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}

func fromText(body string) Event {
	ev := Event{Format: FormatText, RawPayload: body}

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		sep := strings.IndexByte(line, ':')
		if sep < 0 {
			sep = strings.IndexByte(line, '=')
		}
		if sep < 0 {
			ev.appendNote(line)
			continue
		}

		key := strings.ToLower(strings.TrimSpace(line[:sep]))
		val := strings.TrimSpace(line[sep+1:])
		f, ok := textSynonyms[key]
		if !ok {
			ev.appendNote(line)
			continue
		}
		if f == FieldAction {
			val = strings.ToUpper(val)
		}
		ev.set(f, val)
	}
	return ev
}
