package storage

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func TestMySQLColumnsHaveNoLengthLimit(t *testing.T) {
	s, err := schema.Parse(&signalModel{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	for _, col := range []string{"ticker", "action", "price", "sl", "tp", "timeframe"} {
		f := s.LookUpField(col)
		require.NotNil(t, f, col)
		assert.Equal(t, schema.DataType("text"), f.DataType, col)
	}
	assert.Equal(t, schema.DataType("mediumtext"), s.LookUpField("raw_payload").DataType)
}

func TestMySQLModelKeepsValuesVerbatim(t *testing.T) {
	long := strings.Repeat("X", 300)
	m := toModel(SignalRow{Ticker: long, Action: "[\"a\",\"b\"]", Price: "  ", RawPayload: "{}"})

	require.NotNil(t, m.Ticker)
	assert.Equal(t, long, *m.Ticker)
	require.NotNil(t, m.Price)
	assert.Equal(t, "  ", *m.Price)
	assert.Nil(t, m.SL)
	assert.Equal(t, `["a","b"]`, deref(m.Action))
}
