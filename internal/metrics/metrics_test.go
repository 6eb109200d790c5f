package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"jobvyne-crawler/internal/domain"
)

func TestObserver(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.TaskStarted(domain.FetchRendered)
	m.TaskStarted(domain.FetchRendered)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TasksInFlight.WithLabelValues("rendered")))

	m.TaskFinished(domain.FetchRendered, nil)
	m.TaskFinished(domain.FetchRendered, fmt.Errorf("%w: no title", domain.ErrParse))
	assert.Zero(t, testutil.ToFloat64(m.TasksInFlight.WithLabelValues("rendered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues("rendered", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues("rendered", "parse_error")))

	m.TaskStarted(domain.FetchStatic)
	m.TaskFinished(domain.FetchStatic, errors.New("503"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues("static", "fetch_error")))
}

func TestRunAndReconcile(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RunFinished("acme", "api", "failed", time.Second)
	assert.Zero(t, testutil.ToFloat64(m.LastSuccess.WithLabelValues("acme")))

	m.RunFinished("acme", "api", "ok", 2*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("acme", "ok")))
	assert.Positive(t, testutil.ToFloat64(m.LastSuccess.WithLabelValues("acme")))

	m.Reconciled("acme", 3, 2, 1, 4)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.JobsReconciled.WithLabelValues("acme", "created")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.LocationUnresolved.WithLabelValues("acme")))
}
