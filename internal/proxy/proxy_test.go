package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"control-room/gateway/internal/auth"
	"control-room/gateway/internal/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func mustParse(t *testing.T, raw string) *url.URL {
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestForwardInjectsCredentialAndFreshHeaders(t *testing.T) {
	var seen *http.Request
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Clone(r.Context())
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "https://upstream.example")
		_, _ = io.WriteString(w, `{"company_number":"00000006"}`)
	}))
	defer upstream.Close()

	p := NewReverseProxy(nil, testLogger())
	req := httptest.NewRequest(http.MethodGet, "/ch/company/00000006?items=5", nil)
	req.Header.Set("Cookie", "session=secret")
	req.Header.Set(types.HeaderAuthorization, "Bearer browser")
	w := httptest.NewRecorder()

	err := p.Forward(w, req, &Target{
		RouteID:    "ch",
		Provider:   types.ProviderCompaniesHouse,
		URL:        mustParse(t, upstream.URL+"/company/00000006?items=5"),
		Headers:    map[string]string{types.HeaderAccept: "application/json"},
		Auth:       types.AuthSpec{Strategy: types.AuthBasic},
		Credential: auth.StaticKey(types.ProviderCompaniesHouse, "key"),
		Timeout:    5 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"company_number":"00000006"}`, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	require.NotNil(t, seen)
	assert.Equal(t, "/company/00000006", seen.URL.Path)
	assert.Equal(t, "items=5", seen.URL.RawQuery)
	assert.Equal(t, "Basic a2V5Og==", seen.Header.Get(types.HeaderAuthorization))
	assert.Equal(t, types.UserAgent, seen.Header.Get(types.HeaderUserAgent))
	assert.Equal(t, "application/json", seen.Header.Get(types.HeaderAccept))
	assert.Empty(t, seen.Header.Get("Cookie"))
	assert.Empty(t, seen.Header.Get("X-Forwarded-For"))

	stats := p.GetStats()
	assert.EqualValues(t, 1, stats.TotalRequests)
	assert.EqualValues(t, 1, stats.RouteStats["ch"].SuccessRequests)
}

func TestForwardRelaysUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"not found"}`)
	}))
	defer upstream.Close()

	var observed int
	p := NewReverseProxy(nil, testLogger())
	w := httptest.NewRecorder()
	err := p.Forward(w, httptest.NewRequest(http.MethodGet, "/postcodes/postcodes/XX", nil), &Target{
		RouteID:    "postcodes",
		Provider:   types.ProviderPostcodes,
		URL:        mustParse(t, upstream.URL+"/postcodes/XX"),
		OnResponse: func(status int) { observed = status },
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get(types.HeaderContentType))
	assert.Equal(t, `{"message":"not found"}`, w.Body.String())
	assert.Equal(t, http.StatusNotFound, observed)
	assert.EqualValues(t, 1, p.GetStats().RouteStats["postcodes"].FailedRequests)
}

func TestForwardTransportFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := upstream.URL
	upstream.Close()

	p := NewReverseProxy(nil, testLogger())
	w := httptest.NewRecorder()
	err := p.Forward(w, httptest.NewRequest(http.MethodGet, "/tfl/Line", nil), &Target{
		RouteID:  "tfl",
		Provider: types.ProviderTfL,
		URL:      mustParse(t, target+"/Line"),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"Upstream failed"`)
	assert.Contains(t, w.Body.String(), `"detail":`)
}

func TestForwardMissingCredentialMakesNoCall(t *testing.T) {
	var calls int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer upstream.Close()

	p := NewReverseProxy(nil, testLogger())
	w := httptest.NewRecorder()
	err := p.Forward(w, httptest.NewRequest(http.MethodGet, "/ch/x", nil), &Target{
		RouteID: "ch",
		URL:     mustParse(t, upstream.URL+"/x"),
		Auth:    types.AuthSpec{Strategy: types.AuthBasic},
	})
	require.Error(t, err)
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
	assert.EqualValues(t, 0, p.GetStats().TotalRequests)
}

func TestForwardIsIdempotent(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":"victoria","lineStatuses":[{"statusSeverity":10}]}]`)
	}))
	defer upstream.Close()

	p := NewReverseProxy(nil, testLogger())
	fetch := func() string {
		w := httptest.NewRecorder()
		require.NoError(t, p.Forward(w, httptest.NewRequest(http.MethodGet, "/tfl/Line/victoria/Status", nil), &Target{
			RouteID: "tfl",
			URL:     mustParse(t, upstream.URL+"/Line/victoria/Status"),
		}))
		return w.Body.String()
	}

	assert.Equal(t, fetch(), fetch())
	assert.EqualValues(t, 2, p.GetStats().RouteStats["tfl"].TotalRequests)
}

func TestForwardPostsBody(t *testing.T) {
	var body string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusCreated)
	}))
	defer upstream.Close()

	p := NewReverseProxy(nil, testLogger())
	w := httptest.NewRecorder()
	require.NoError(t, p.Forward(w, httptest.NewRequest(http.MethodGet, "/x", nil), &Target{
		RouteID: "post",
		URL:     mustParse(t, upstream.URL),
		Method:  http.MethodPost,
		Body:    []byte(`{"a":1}`),
	}))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, `{"a":1}`, body)
}
