package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filings-rag-be/pkg/graph"
)

func TestNodeObserver(t *testing.T) {
	m := New()
	obs := m.NodeObserver()
	obs(graph.Event{Node: "route", Duration: 10 * time.Millisecond})
	obs(graph.Event{Node: "route", Duration: 20 * time.Millisecond})
	obs(graph.Event{Node: "generate", Err: errors.New("boom")})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.nodeVisits.WithLabelValues("route", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.nodeVisits.WithLabelValues("generate", "error")))
}

func TestObserveInvocation(t *testing.T) {
	m := New()
	m.ObserveInvocation("vectorstore", nil, time.Second)
	m.ObserveInvocation("", nil, time.Second)
	m.ObserveInvocation("web_search", errors.New("timeout"), time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.invocations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invocations.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.routeDecisions.WithLabelValues("vectorstore")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.routeDecisions.WithLabelValues("unknown")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.routeDecisions.WithLabelValues("web_search")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.TrackActiveSessions(func() int { return 3 })
	m.ObserveInvocation("vectorstore", nil, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "rag_active_sessions 3")
	assert.Contains(t, string(body), `rag_route_decisions_total{route="vectorstore"} 1`)
}
