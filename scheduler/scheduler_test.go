package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/dataloader/am"
	"github.com/teranos/dataloader/bundle"
	"github.com/teranos/dataloader/errors"
	"github.com/teranos/dataloader/internal/util"
	dltest "github.com/teranos/dataloader/internal/testing"
)

func testBundle() *bundle.Bundle {
	return &bundle.Bundle{
		ConfigName:   "nightly",
		ChunkSize:    util.Ptr(100),
		ReaderConfig: map[string]interface{}{"reader": "jdbc"},
		WriterConfig: map[string]interface{}{"writer": "datatable-writer"},
	}
}

func TestHTTPGatewaySubmit(t *testing.T) {
	var got submitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jobId":"remote-42","jobName":"nightly"}`))
	}))
	defer srv.Close()

	gw, err := NewHTTPGateway(srv.URL, HTTPOptions{Timeout: time.Second, AllowPrivateHosts: true}, nil)
	require.NoError(t, err)

	h, err := gw.Submit(context.Background(), Submission{RecordID: "rec-1", Bundle: testBundle(), ScheduleExpression: "0 2 * * *"})
	require.NoError(t, err)
	assert.Equal(t, Handle{RemoteJobID: "remote-42", RemoteJobName: "nightly"}, h)

	assert.Equal(t, "rec-1", got.RecordID)
	assert.Equal(t, "0 2 * * *", got.Schedule)
	assert.Equal(t, "nightly", got.Bundle.ConfigName)
	digest, err := testBundle().Digest()
	require.NoError(t, err)
	assert.Equal(t, digest, got.Digest)
}

func TestHTTPGatewayRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	gw, err := NewHTTPGateway(srv.URL, HTTPOptions{AllowPrivateHosts: true}, nil)
	require.NoError(t, err)

	_, err = gw.Submit(context.Background(), Submission{RecordID: "rec-1", Bundle: testBundle()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, errors.FlattenDetails(err), "queue full")
}

func TestHTTPGatewayMissingJobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	gw, err := NewHTTPGateway(srv.URL, HTTPOptions{AllowPrivateHosts: true}, nil)
	require.NoError(t, err)

	_, err = gw.Submit(context.Background(), Submission{Bundle: testBundle()})
	assert.ErrorContains(t, err, "no jobId")
}

func TestHTTPGatewayBlocksPrivateURL(t *testing.T) {
	_, err := NewHTTPGateway("http://127.0.0.1:9000/submit", HTTPOptions{}, nil)
	assert.ErrorContains(t, err, "private IP address blocked")

	_, err = NewHTTPGateway("file:///tmp/sock", HTTPOptions{AllowPrivateHosts: true}, nil)
	assert.Error(t, err)
}

func TestHTTPGatewayThrottle(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"jobId":"x"}`))
	}))
	defer srv.Close()

	// one request per minute: the second call cannot get a token before the deadline
	gw, err := NewHTTPGateway(srv.URL, HTTPOptions{AllowPrivateHosts: true, RequestsPerMinute: 1}, nil)
	require.NoError(t, err)

	_, err = gw.Submit(context.Background(), Submission{Bundle: testBundle()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = gw.Submit(ctx, Submission{Bundle: testBundle()})
	assert.ErrorContains(t, err, "throttled")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLocalGateway(t *testing.T) {
	gw := NewLocalGateway(dltest.CreateTestDB(t), nil)
	ctx := context.Background()

	h, err := gw.Submit(ctx, Submission{RecordID: "rec-1", Bundle: testBundle(), ScheduleExpression: "@daily"})
	require.NoError(t, err)
	assert.NotEmpty(t, h.RemoteJobID)
	assert.Equal(t, "nightly", h.RemoteJobName)

	d, err := gw.Get(ctx, h.RemoteJobID)
	require.NoError(t, err)
	assert.Equal(t, "rec-1", d.RecordID)
	assert.Equal(t, "@daily", d.ScheduleExpression)
	assert.Equal(t, StateActive, d.State)

	raw, err := testBundle().Canonical()
	require.NoError(t, err)
	assert.Equal(t, string(raw), d.Bundle)

	require.NoError(t, gw.UpdateState(ctx, h.RemoteJobID, StatePaused))
	paused, err := gw.List(ctx, StatePaused)
	require.NoError(t, err)
	require.Len(t, paused, 1)

	active, err := gw.List(ctx, StateActive)
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.True(t, errors.IsValidationError(gw.UpdateState(ctx, h.RemoteJobID, "running")))
	assert.True(t, errors.IsNotFoundError(gw.UpdateState(ctx, "nope", StateInactive)))

	_, err = gw.Get(ctx, "nope")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestLocalGatewayResubmitRetiresEarlierEntry(t *testing.T) {
	gw := NewLocalGateway(dltest.CreateTestDB(t), nil)
	ctx := context.Background()

	first, err := gw.Submit(ctx, Submission{RecordID: "rec-1", Bundle: testBundle()})
	require.NoError(t, err)
	other, err := gw.Submit(ctx, Submission{RecordID: "rec-2", Bundle: testBundle()})
	require.NoError(t, err)
	second, err := gw.Submit(ctx, Submission{RecordID: "rec-1", Bundle: testBundle()})
	require.NoError(t, err)

	d, err := gw.Get(ctx, first.RemoteJobID)
	require.NoError(t, err)
	assert.Equal(t, StateInactive, d.State)

	active, err := gw.List(ctx, StateActive)
	require.NoError(t, err)
	ids := make([]string, 0, len(active))
	for _, a := range active {
		ids = append(ids, a.ID)
	}
	assert.ElementsMatch(t, []string{other.RemoteJobID, second.RemoteJobID}, ids)
}

func TestNop(t *testing.T) {
	_, err := Nop{}.Submit(context.Background(), Submission{Bundle: testBundle()})
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestNew(t *testing.T) {
	database := dltest.CreateTestDB(t)

	gw, err := New(am.SchedulerConfig{Mode: am.SchedulerLocal}, database, nil)
	require.NoError(t, err)
	assert.IsType(t, &LocalGateway{}, gw)

	gw, err = New(am.SchedulerConfig{Mode: am.SchedulerNone}, database, nil)
	require.NoError(t, err)
	assert.IsType(t, Nop{}, gw)

	gw, err = New(am.SchedulerConfig{Mode: am.SchedulerHTTP, URL: "https://scheduler.example.com/jobs"}, database, nil)
	require.NoError(t, err)
	assert.IsType(t, &HTTPGateway{}, gw)

	_, err = New(am.SchedulerConfig{Mode: "carrier-pigeon"}, database, nil)
	assert.Error(t, err)
}
