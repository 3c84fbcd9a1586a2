package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwtest "github.com/teranos/ghostwrite/internal/testing"
)

func TestMetricsObserve(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.Observe(Event{Kind: KindRequested})
	m.Observe(Event{Kind: KindReceived, Latency: 300 * time.Millisecond})
	m.Observe(Event{Kind: KindAccepted, Chars: 12})
	m.Observe(Event{Kind: KindAccepted, Chars: 3})
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Completions.WithLabelValues("requested")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Completions.WithLabelValues("accepted")))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.AcceptedChars))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Latency))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Observe(Event{Kind: KindAccepted, Chars: 1})
		m.SessionOpened()
		m.SessionClosed()
	})
}

func TestStoreStats(t *testing.T) {
	store := NewStore(gwtest.CreateTestDB(t))
	ctx := context.Background()
	now := time.Now()

	events := []Event{
		{ID: "01", Kind: KindRequested, SessionID: "s1", RequestID: 1, Time: now},
		{ID: "02", Kind: KindReceived, SessionID: "s1", RequestID: 1, Latency: 200 * time.Millisecond, Time: now},
		{ID: "03", Kind: KindDisplayed, SessionID: "s1", RequestID: 1, Time: now},
		{ID: "04", Kind: KindAccepted, SessionID: "s1", RequestID: 1, Chars: 10, AcceptType: "full", Time: now},
		{ID: "05", Kind: KindRequested, SessionID: "s2", RequestID: 1, Time: now},
		{ID: "06", Kind: KindReceived, SessionID: "s2", RequestID: 1, Latency: 400 * time.Millisecond, Time: now},
		{ID: "07", Kind: KindDisplayed, SessionID: "s2", RequestID: 1, Time: now},
		{ID: "08", Kind: KindRejected, SessionID: "s2", RequestID: 1, Time: now},
		{ID: "09", Kind: KindError, SessionID: "s2", RequestID: 2, Error: "timeout", Time: now},
		{ID: "00", Kind: KindRequested, SessionID: "old", RequestID: 1, Time: now.Add(-48 * time.Hour)},
	}
	require.NoError(t, store.InsertBatch(ctx, events))

	stats, err := store.Stats(ctx, now.Add(-time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 9, stats.Total)
	assert.Equal(t, 2, stats.Counts[KindRequested])
	assert.Equal(t, 2, stats.Counts[KindDisplayed])
	assert.Equal(t, 1, stats.Counts[KindError])
	assert.InDelta(t, 0.5, stats.AcceptanceRate, 0.0001)
	assert.Equal(t, 300*time.Millisecond, stats.AvgLatency)
	assert.Equal(t, 10, stats.AcceptedChars)
	assert.Equal(t, 2, stats.Sessions)
}

func TestStoreStatsEmpty(t *testing.T) {
	store := NewStore(gwtest.CreateTestDB(t))

	stats, err := store.Stats(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.AcceptanceRate)
	assert.Zero(t, stats.AvgLatency)
}

func TestStoreRecent(t *testing.T) {
	store := NewStore(gwtest.CreateTestDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Insert(ctx, Event{
		ID: "a", Kind: KindError, SessionID: "s", RequestID: 4,
		URI: "file:///x.go", Error: "provider down", Time: now.Add(-time.Minute),
	}))
	require.NoError(t, store.Insert(ctx, Event{
		ID: "b", Kind: KindAccepted, SessionID: "s", RequestID: 5,
		URI: "file:///x.go", Strategy: "fast", Chars: 4, Time: now,
	}))

	events, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[0].ID)
	assert.Equal(t, KindAccepted, events[0].Kind)
	assert.Equal(t, uint64(5), events[0].RequestID)
	assert.Equal(t, "fast", events[0].Strategy)
	assert.Equal(t, "provider down", events[1].Error)
	assert.Empty(t, events[1].Strategy)
}

func TestStoreInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO completion_events").
		WillReturnError(assert.AnError)

	err = NewStore(db).Insert(context.Background(), Event{ID: "x", Kind: KindRequested})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert requested event x")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreBatchRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO completion_events")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = NewStore(db).InsertBatch(context.Background(), []Event{
		{ID: "1", Kind: KindRequested},
		{ID: "2", Kind: KindReceived},
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSinkPersistsOnClose(t *testing.T) {
	store := NewStore(gwtest.CreateTestDB(t))
	metrics := NewMetrics(prometheus.NewRegistry())
	sink := NewSink(SinkConfig{Store: store, Metrics: metrics})

	sink.Record(Event{Kind: KindRequested, SessionID: "s", RequestID: 1})
	sink.Record(Event{Kind: KindAccepted, SessionID: "s", RequestID: 1, Chars: 7})
	sink.Close()

	events, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Len(t, e.ID, 26, "ULID assigned")
		assert.False(t, e.Time.IsZero())
	}
	assert.Equal(t, 7.0, testutil.ToFloat64(metrics.AcceptedChars))
	assert.Equal(t, uint64(2), sink.Recorded())
}

func TestSinkDropsAfterClose(t *testing.T) {
	sink := NewSink(SinkConfig{BufferSize: 1})
	sink.Close()
	sink.Close()

	sink.Record(Event{Kind: KindRequested})
	assert.Equal(t, uint64(1), sink.Dropped())
}

func TestSinkNeverBlocks(t *testing.T) {
	sink := NewSink(SinkConfig{BufferSize: 1, Metrics: NewMetrics(prometheus.NewRegistry())})
	defer sink.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			sink.Record(Event{Kind: KindDisplayed})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked")
	}
	assert.Equal(t, uint64(1000), sink.Recorded()+sink.Dropped())
}
