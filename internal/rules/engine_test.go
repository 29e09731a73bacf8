package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/pacemaker-logparser/internal/memstore"
	"github.com/tinytelemetry/pacemaker-logparser/internal/model"
)

var day = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

func newStore(t *testing.T, records ...*model.LogRecord) *memstore.Store {
	t.Helper()
	s := memstore.New()
	require.NoError(t, s.Append(context.Background(), records...))
	return s
}

func critical(ts time.Time, node, payload string) *model.LogRecord {
	return &model.LogRecord{Timestamp: ts, Node: node, Component: "pacemaker-controld", Payload: payload}
}

func TestQueryUnionReportsRecordOnce(t *testing.T) {
	store := newStore(t,
		critical(day, "node1", "crit: * Fence (reboot) node2"),
		critical(day, "node1", "notice: State transition S_IDLE -> S_POLICY_ENGINE"),
	)

	res, err := NewEngine().Query(context.Background(), store, model.Window{})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, []string{"R1", "R2"}, res.Events[0].Rules)
	assert.Equal(t, 2, res.Scanned)

	assert.Equal(t, 1, res.Counts[0].Count)
	assert.Equal(t, "R1", res.Counts[0].Rule.ID)
	assert.Equal(t, 1, res.Counts[1].Count)
	assert.Equal(t, 0, res.Counts[2].Count)
}

func TestQueryPreservesInsertionOrderForEqualTimestamps(t *testing.T) {
	x := critical(day, "node2", "notice: LogAction: * Stop rsc_vip")
	y := critical(day, "node1", "notice: LogAction: * Start rsc_vip")
	store := newStore(t, x, y)

	res, err := NewEngine().Query(context.Background(), store, model.Window{})
	require.NoError(t, err)
	require.Len(t, res.Records(), 2)
	assert.Equal(t, "node2", res.Records()[0].Node)
	assert.Equal(t, "node1", res.Records()[1].Node)
}

func TestQueryWindowIsOpen(t *testing.T) {
	begin := day
	end := day.Add(24 * time.Hour)
	store := newStore(t,
		critical(day.Add(-24*time.Hour), "n", "cli-ban before"),
		critical(begin, "n", "cli-ban at begin"),
		critical(day.Add(12*time.Hour), "n", "cli-ban middle"),
		critical(end, "n", "cli-ban at end"),
	)

	res, err := NewEngine().Query(context.Background(), store, model.Window{Begin: begin, End: end})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "cli-ban middle", res.Events[0].Payload)
}

func TestQueryOrdersAcrossNodes(t *testing.T) {
	store := newStore(t,
		critical(day.Add(2*time.Minute), "node1", "crit: late"),
		critical(day.Add(time.Minute), "node1", "crit: early"),
		critical(day.Add(90*time.Second), "node2", "crit: middle"),
	)

	res, err := NewEngine().Query(context.Background(), store, model.Window{})
	require.NoError(t, err)
	var got []string
	for _, ev := range res.Events {
		got = append(got, ev.Payload)
	}
	assert.Equal(t, []string{"crit: early", "crit: middle", "crit: late"}, got)
}

type failingReader struct{ model.RecordReader }

func (failingReader) QueryRange(context.Context, model.Window) ([]model.LogRecord, error) {
	return nil, errors.New("disk on fire")
}

func TestQueryPropagatesStoreFailure(t *testing.T) {
	res, err := NewEngine().Query(context.Background(), failingReader{}, model.Window{})
	assert.Nil(t, res)
	assert.ErrorContains(t, err, "disk on fire")
}
