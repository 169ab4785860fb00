package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/logos/{domain}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "domain") == "missing.example" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	for _, domain := range []string{"a.example", "b.example", "missing.example"} {
		resp, err := http.Get(ts.URL + "/v1/logos/" + domain)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
	}

	// Distinct domains collapse into the one route label.
	assert.InDelta(t, 2, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/logos/{domain}", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/logos/{domain}", "404")), 0)
	assert.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}

func TestMiddlewareDefaultsUnwrittenStatus(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/quiet", func(http.ResponseWriter, *http.Request) {})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/quiet", "200"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/quiet", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/v1/quiet", "200"))
	assert.InDelta(t, 1, after-before, 0)
}
