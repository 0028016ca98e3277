package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeJSON(t *testing.T) {
	ev := Normalize([]byte(`{"secret":"S","ticker":"XAUUSD","exchange":"OANDA","action":"buy","price":"1995.40"}`))

	assert.Equal(t, FormatJSON, ev.Format)
	assert.Equal(t, InnerNone, ev.Inner)
	assert.Equal(t, "S", ev.Secret)
	assert.Equal(t, "XAUUSD", ev.Ticker)
	assert.Equal(t, "buy", ev.Action, "json action is kept as given")
	assert.Equal(t, "1995.40", ev.Price)
	assert.Empty(t, ev.StopLoss)
	assert.JSONEq(t, `{"secret":"S","ticker":"XAUUSD","exchange":"OANDA","action":"buy","price":"1995.40"}`, ev.RawPayload)
}

func TestNormalizeJSONValueKinds(t *testing.T) {
	ev := Normalize([]byte(`  {"price": 1995.40, "sl": 12, "tp": null, "note": true, "timeframe": ["1h"], "ticker": {"a":1}}`))

	assert.Equal(t, FormatJSON, ev.Format)
	assert.Equal(t, "1995.40", ev.Price, "numbers keep their literal text")
	assert.Equal(t, "12", ev.StopLoss)
	assert.Empty(t, ev.TakeProfit, "null is absent")
	assert.Equal(t, "true", ev.Note)
	assert.JSONEq(t, `["1h"]`, ev.Timeframe)
	assert.JSONEq(t, `{"a":1}`, ev.Ticker)
}

func TestNormalizeInnerMessageMerges(t *testing.T) {
	body := `{"secret":"S","ticker":"OUTER","message":"{\"ticker\":\"INNER\",\"sl\":\"1980\"}"}`
	ev := Normalize([]byte(body))

	assert.Equal(t, InnerParsed, ev.Inner)
	assert.Equal(t, "INNER", ev.Ticker, "inner keys win")
	assert.Equal(t, "1980", ev.StopLoss)
	assert.Equal(t, "S", ev.Secret)
	assert.JSONEq(t,
		`{"secret":"S","ticker":"INNER","sl":"1980","message":"{\"ticker\":\"INNER\",\"sl\":\"1980\"}"}`,
		ev.RawPayload)
}

func TestNormalizeInnerMessageMalformed(t *testing.T) {
	ev := Normalize([]byte(`{"ticker":"OUTER","message":"not json at all"}`))
	assert.Equal(t, InnerMalformed, ev.Inner)
	assert.Equal(t, "OUTER", ev.Ticker)

	ev = Normalize([]byte(`{"ticker":"OUTER","message":7}`))
	assert.Equal(t, InnerNone, ev.Inner, "non-string message is not a payload")
}

func TestNormalizeNonObjectJSONIsText(t *testing.T) {
	for _, body := range []string{`[1,2,3]`, `"ticker: X"`, `{"broken":`, `{"a":1} trailing`} {
		ev := Normalize([]byte(body))
		assert.Equal(t, FormatText, ev.Format, body)
		assert.Equal(t, body, ev.RawPayload, body)
	}
}

func TestNormalizeTextScenario(t *testing.T) {
	body := "secret: S\nticker: EURUSD\naction: sell\nfoo: bar"
	ev := Normalize([]byte(body))

	assert.Equal(t, FormatText, ev.Format)
	assert.Equal(t, "S", ev.Secret)
	assert.Equal(t, "EURUSD", ev.Ticker)
	assert.Equal(t, "SELL", ev.Action)
	assert.Equal(t, "foo: bar", ev.Note)
	assert.Equal(t, body, ev.RawPayload)
}

func TestNormalizeTextSynonyms(t *testing.T) {
	cases := []struct {
		line string
		get  func(Event) string
		want string
	}{
		{"pass: p1", func(e Event) string { return e.Secret }, "p1"},
		{"TOKEN: p2", func(e Event) string { return e.Secret }, "p2"},
		{"Symbol: BTCUSD", func(e Event) string { return e.Ticker }, "BTCUSD"},
		{"side: long", func(e Event) string { return e.Action }, "LONG"},
		{"price: 101.5", func(e Event) string { return e.Price }, "101.5"},
		{"sl: 99", func(e Event) string { return e.StopLoss }, "99"},
		{"tp: 110", func(e Event) string { return e.TakeProfit }, "110"},
		{"tf: 15m", func(e Event) string { return e.Timeframe }, "15m"},
		{"timeframe:   4h  ", func(e Event) string { return e.Timeframe }, "4h"},
	}
	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			ev := Normalize([]byte(tc.line))
			assert.Equal(t, tc.want, tc.get(ev))
			assert.Empty(t, ev.Note)
		})
	}
}

func TestNormalizeTextNoteOrder(t *testing.T) {
	body := "alpha: 1\r\n\r\nticker: X\r\njust words\r\nbeta: 2\r\n"
	ev := Normalize([]byte(body))

	assert.Equal(t, "X", ev.Ticker)
	assert.Equal(t, "alpha: 1 | just words | beta: 2", ev.Note)
}

func TestNormalizeTextLaterValueWins(t *testing.T) {
	ev := Normalize([]byte("ticker: A\nsymbol: B"))
	assert.Equal(t, "B", ev.Ticker)
}

func TestNormalizeTextEqualsLines(t *testing.T) {
	ev := Normalize([]byte("secret=S\nticker=GBPUSD\nwhat=ever\nurl: http://x?a=b"))

	require.Equal(t, FormatText, ev.Format)
	assert.Equal(t, "S", ev.Secret)
	assert.Equal(t, "GBPUSD", ev.Ticker)
	assert.Equal(t, "what=ever | url: http://x?a=b", ev.Note, "colon wins over equals")
}

func TestNormalizeEmptyBody(t *testing.T) {
	ev := Normalize(nil)
	assert.Equal(t, FormatText, ev.Format)
	assert.Equal(t, Event{Format: FormatText}, ev)
}
