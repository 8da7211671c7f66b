package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeIsSingleton(t *testing.T) {
	assert.Same(t, Initialize(), Get())
}

func TestRecordAPIRequest(t *testing.T) {
	m := Initialize()
	m.APIRequestsTotal.Reset()

	RecordAPIRequest("send_message", 201, 20*time.Millisecond)
	RecordAPIRequest("send_message", 201, 30*time.Millisecond)
	RecordAPIRequest("send_message", 0, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("send_message", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("send_message", "error")))
}

func TestRecordEvent(t *testing.T) {
	m := Initialize()
	m.EventsTotal.Reset()
	m.EventsDroppedTotal.Reset()

	RecordEvent("message:new")
	RecordEvent("message:new")
	RecordEvent("presence:update")
	RecordDroppedEvent("unknown_type")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("message:new")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("presence:update")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDroppedTotal.WithLabelValues("unknown_type")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordReconnect("websocket")

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "chat_transport_reconnects_total")
	assert.Contains(t, string(body), "chat_typing_expiries_total")
}
