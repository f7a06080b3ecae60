package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightbus/internal/bus"
)

type attitude struct {
	Roll, Pitch, Yaw float32
}

func newBus(t *testing.T) *bus.Registry {
	t.Helper()
	b := bus.NewRegistry(nil)
	topic, err := bus.Advertise[attitude](b, "attitude")
	require.NoError(t, err)
	topic.Subscribe()
	topic.Publish(attitude{Roll: 1})
	topic.Publish(attitude{Roll: 2})
	return b
}

func TestRouterTopics(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg, newBus(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/topics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []bus.TopicInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "attitude", infos[0].Name)
	assert.Equal(t, uint64(2), infos[0].Version)
	assert.Equal(t, uintptr(12), infos[0].Size)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/topics/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestBusCollector(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterBus(newBus(t)))

	expected := `
# HELP flightbus_topic_version Number of publishes on a topic
# TYPE flightbus_topic_version counter
flightbus_topic_version{topic="attitude"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg.Gatherer(), strings.NewReader(expected), "flightbus_topic_version"))
}

func TestWorkItemMetrics(t *testing.T) {
	reg := NewRegistry()
	reg.RecordWorkItemRun("wq:hp_work", "control", time.Millisecond)
	reg.RecordWorkItemRun("wq:hp_work", "control", time.Millisecond)
	reg.ObserveOverrun("wq:hp_work", "control", time.Second)
	reg.ObserveFault("wq:lp_work", "led")

	assert.Equal(t, 2.0, testutil.ToFloat64(reg.workItemRuns.WithLabelValues("wq:hp_work", "control")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.workItemOverruns.WithLabelValues("wq:hp_work", "control")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.workItemFaults.WithLabelValues("wq:lp_work", "led")))
}

func TestLogMetrics(t *testing.T) {
	reg := NewRegistry()
	reg.RecordLogMessage("fms_out", 40, nil)
	reg.RecordLogMessage("fms_out", 40, assert.AnError)
	reg.RecordLogDrop("fms_out")

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.logMessages.WithLabelValues("fms_out", "written")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.logMessages.WithLabelValues("fms_out", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.logMessages.WithLabelValues("fms_out", "dropped")))
	assert.Equal(t, 40.0, testutil.ToFloat64(reg.logBytes))
}
