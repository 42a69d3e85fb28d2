package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.Response(StatusMiss)
	r.Response(StatusHit)
	r.Response(StatusHit)
	r.Render(3 * time.Millisecond)
	r.Invalidated(2)
	r.Invalidated(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.responses.WithLabelValues(StatusHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.responses.WithLabelValues(StatusMiss)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.invalidated))
	assert.Equal(t, 1, testutil.CollectAndCount(r.render))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.Response(StatusHit)
	r.Render(time.Second)
	r.Invalidated(1)
}

func TestHandler(t *testing.T) {
	r := NewRecorder()
	r.Response(StatusPass)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `ui_site_responses_total{status="pass"} 1`))
}
