// go test github.com/homemade/streamhttp/sink -v
package sink

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// sliceSource replays a fixed list of records and counts how many were pulled.
type sliceSource struct {
	records []string
	next    int
	err     error
}

func newSliceSource(records ...string) *sliceSource {
	return &sliceSource{records: records}
}

func (s *sliceSource) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.next >= len(s.records) {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	record := s.records[s.next]
	s.next++
	return record, nil
}

func testSink(t *testing.T, endpoint string, params []Parameter, opts ...Option) *Sink {
	t.Helper()
	config := testHTTPConfig()
	config.Endpoint = endpoint
	config.URLParameters = params
	s, err := New(config, opts...)
	require.NoError(t, err)
	return s
}

func TestSink_RunSendsRecordsInOrder(t *testing.T) {
	server := newRecordingServer(t, http.StatusOK)
	s := testSink(t, server.URL, []Parameter{{RecordKey: "id", URLKey: "uid"}})

	records := []string{`{"id": 1}`, `{"id": 2}`, `not json`, `{"id": 4}`}
	err := s.Run(context.Background(), newSliceSource(records...))
	require.NoError(t, err)

	received := server.Received()
	require.Len(t, received, len(records))
	for i, r := range received {
		assert.Equal(t, records[i], r.Body)
	}
	assert.Equal(t, []string{"1"}, received[0].Query["uid"])
	assert.Equal(t, []string{"2"}, received[1].Query["uid"])
	assert.Empty(t, received[2].Query)
	assert.Equal(t, []string{"4"}, received[3].Query["uid"])
}

func TestSink_RunContinuesAfterNonSuccessStatus(t *testing.T) {
	server := newRecordingServer(t, http.StatusInternalServerError)
	core, logs := observer.New(zapcore.DebugLevel)
	s := testSink(t, server.URL, nil, WithLogger(zap.New(core)))

	err := s.Run(context.Background(), newSliceSource(`{"id": 1}`, `{"id": 2}`))
	require.NoError(t, err)

	assert.Len(t, server.Received(), 2)
	assert.Equal(t, 2, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestSink_RunOneRequestInFlight(t *testing.T) {
	var inFlight, maxInFlight, count int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		atomic.AddInt32(&count, 1)
		atomic.AddInt32(&inFlight, -1)
	}))
	defer server.Close()

	s := testSink(t, server.URL, nil)
	records := make([]string, 20)
	for i := range records {
		records[i] = "{}"
	}
	require.NoError(t, s.Run(context.Background(), newSliceSource(records...)))
	assert.EqualValues(t, 20, atomic.LoadInt32(&count))
	assert.EqualValues(t, 1, atomic.LoadInt32(&maxInFlight))
}

func TestSink_RunStopsOnTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	s := testSink(t, endpoint, nil)
	src := newSliceSource("first", "second", "third")
	err := s.Run(context.Background(), src)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "record 1:")
	assert.Equal(t, 1, src.next, "no record after the failed one should be pulled")
}

func TestSink_RunReturnsSourceErrors(t *testing.T) {
	server := newRecordingServer(t, http.StatusOK)
	s := testSink(t, server.URL, nil)

	broken := errors.New("broken pipe")
	src := newSliceSource("{}")
	src.err = broken
	err := s.Run(context.Background(), src)
	assert.ErrorIs(t, err, broken)
	assert.Len(t, server.Received(), 1)
}

func TestSink_RunStopsWhenCancelled(t *testing.T) {
	server := newRecordingServer(t, http.StatusOK)
	s := testSink(t, server.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Run(ctx, newSliceSource("{}", "{}"))
	require.NoError(t, err)
	assert.Empty(t, server.Received())
}

func TestSink_ProcessReturnsSameState(t *testing.T) {
	server := newRecordingServer(t, http.StatusOK)
	params := []Parameter{{RecordKey: "id", URLKey: "uid", Prefix: "u-"}}
	s := testSink(t, server.URL, params)

	state := s.State()
	next, outcome, err := s.Process(context.Background(), state, `{"id": 42}`)
	require.NoError(t, err)
	assert.True(t, outcome.Success())
	assert.Equal(t, state.Parameters, next.Parameters)
	assert.Equal(t, state.Template.Endpoint(), next.Template.Endpoint())

	_, _, err = s.Process(context.Background(), next, `{"id": 43}`)
	require.NoError(t, err)

	received := server.Received()
	require.Len(t, received, 2)
	assert.Equal(t, []string{"u-42"}, received[0].Query["uid"])
	assert.Equal(t, []string{"u-43"}, received[1].Query["uid"])
}

func TestSink_NewRejectsInvalidConfig(t *testing.T) {
	config := testHTTPConfig()
	config.Method = "NOPE"
	_, err := New(config)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestNewState_CopiesParameters(t *testing.T) {
	config := testHTTPConfig()
	config.URLParameters = []Parameter{{RecordKey: "id"}}
	state, err := NewState(config)
	require.NoError(t, err)

	config.URLParameters[0].RecordKey = "changed"
	assert.Equal(t, "id", state.Parameters[0].RecordKey)
}

// committingSource counts commits of records pulled from a sliceSource.
type committingSource struct {
	*sliceSource
	commits int
}

func (c *committingSource) Commit(context.Context) error {
	c.commits++
	return nil
}

func TestSink_RunCommitsDeliveredRecords(t *testing.T) {
	server := newRecordingServer(t, http.StatusInternalServerError)
	s := testSink(t, server.URL, nil)

	src := &committingSource{sliceSource: newSliceSource("{}", "{}", "{}")}
	require.NoError(t, s.Run(context.Background(), src))
	assert.Equal(t, 3, src.commits)
}

func TestSink_RunDoesNotCommitFailedSend(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	s := testSink(t, endpoint, nil)
	src := &committingSource{sliceSource: newSliceSource("{}", "{}")}
	assert.ErrorIs(t, s.Run(context.Background(), src), ErrTransport)
	assert.Zero(t, src.commits)
}
