package stations

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"control-room/gateway/internal/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feed = `[
  {"crsCode":"KGX","stationName":"London Kings Cross","constituentCountry":"England","lat":51.530882,"long":-0.122841},
  {"crsCode":"STP","stationName":"London St Pancras International","constituentCountry":"England","lat":51.532379,"long":-0.126936},
  {"crsCode":"KGL","stationName":"Kings Langley","constituentCountry":"England","lat":51.706339,"long":-0.438217},
  {"crsCode":"KNG","stationName":"Kingston","constituentCountry":"England","lat":"51.412834","long":"-0.301368"},
  {"crsCode":"BKG","stationName":"Barking","constituentCountry":"England","lat":51.539486,"long":0.080947},
  {"crsCode":"KLN","stationName":"Kings Lynn","constituentCountry":"England","lat":52.753897,"long":0.403334},
  {"crsCode":"EDB","stationName":"Edinburgh","constituentCountry":"Scotland","lat":55.952386,"long":-3.188238},
  {"crsCode":"XXX","stationName":"Nowhere Halt","constituentCountry":"England"},
  {"crsCode":"TOOLONG","stationName":"Bad Code"},
  {"crsCode":"ZZZ","stationName":"  "}
]`

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newFeedServer(t *testing.T, status int, delay time.Duration) (*httptest.Server, *atomic.Int32) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(delay)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(feed))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newCatalog(url string) *Catalog {
	return NewCatalog(types.ProviderEndpoint{BaseURL: url, Timeout: 5 * time.Second}, nil, testLogger())
}

func loadFixture(t *testing.T) []types.StationRecord {
	records, err := decodeStations([]byte(feed))
	require.NoError(t, err)
	return records
}

// ========================================
// Catalog lifecycle
// ========================================

func TestCatalogFiltersFeed(t *testing.T) {
	records := loadFixture(t)
	require.Len(t, records, 8)

	kgx, ok := FindByCode(records, "KGX")
	require.True(t, ok)
	assert.Equal(t, "england", kgx.Country)
	require.NotNil(t, kgx.Lat)
	assert.InDelta(t, 51.530882, *kgx.Lat, 1e-9)

	kng, ok := FindByCode(records, "KNG")
	require.True(t, ok)
	require.NotNil(t, kng.Lon, "string coordinates are accepted")

	xxx, ok := FindByCode(records, "XXX")
	require.True(t, ok)
	assert.Nil(t, xxx.Lat)
}

func TestCatalogConcurrentColdStartSharesOneFetch(t *testing.T) {
	srv, calls := newFeedServer(t, http.StatusOK, 100*time.Millisecond)
	catalog := newCatalog(srv.URL)
	assert.Equal(t, StateUnloaded, catalog.State())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records, err := catalog.Records(context.Background())
			assert.NoError(t, err)
			assert.Len(t, records, 8)
		}()
	}
	wg.Wait()

	_, err := catalog.Records(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, StateLoaded, catalog.State())
}

func TestCatalogFailureIsNotCached(t *testing.T) {
	srv, calls := newFeedServer(t, http.StatusServiceUnavailable, 0)
	catalog := newCatalog(srv.URL)

	_, err := catalog.Records(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 503")
	assert.Equal(t, StateUnloaded, catalog.State())

	_, err = catalog.Records(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

// ========================================
// Search
// ========================================

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, ClampLimit(""))
	assert.Equal(t, 20, ClampLimit("abc"))
	assert.Equal(t, 1, ClampLimit("0"))
	assert.Equal(t, 1, ClampLimit("-5"))
	assert.Equal(t, 100, ClampLimit("500"))
	assert.Equal(t, 7, ClampLimit(" 7 "))
}

func TestExactCodeRanksFirst(t *testing.T) {
	records := loadFixture(t)

	out := SearchText(records, "KGX", 20)
	require.NotEmpty(t, out)
	assert.Equal(t, "KGX", out[0].CRS)

	kgx, _ := FindByCode(records, "KGX")
	assert.GreaterOrEqual(t, Score(kgx, "kgx"), 200)
}

func TestNameStartsRanksAboveContains(t *testing.T) {
	records := loadFixture(t)

	out := SearchText(records, "king", 20)
	require.Len(t, out, 5)

	// equal scores fall back to name order
	assert.Equal(t, "Kings Langley", out[0].Name)
	assert.Equal(t, "Kings Lynn", out[1].Name)
	assert.Equal(t, "Kingston", out[2].Name)

	// Barking and London Kings Cross only contain "king"
	assert.Equal(t, "Barking", out[3].Name)
	assert.Equal(t, "London Kings Cross", out[4].Name)
}

func TestScoresAreAdditive(t *testing.T) {
	st := types.StationRecord{CRS: "KGL", Name: "Kings Langley"}
	// code prefix 120 + name starts 80 + name contains 40
	assert.Equal(t, 240, Score(st, "k"))
	assert.Equal(t, 0, Score(st, "edinburgh"))
}

func TestSearchTextLimitAndEmptyQuery(t *testing.T) {
	records := loadFixture(t)

	assert.Len(t, SearchText(records, "king", 2), 2)

	first := SearchText(records, "", 3)
	require.Len(t, first, 3)
	assert.Equal(t, []string{"KGX", "STP", "KGL"}, []string{first[0].CRS, first[1].CRS, first[2].CRS})
	assert.Nil(t, first[0].DistanceKm)
}

func TestSearchNearby(t *testing.T) {
	records := loadFixture(t)
	base, ok := FindByCode(records, "KGX")
	require.True(t, ok)

	out := SearchNearby(records, base, 20)
	require.NotEmpty(t, out)

	codes := make([]string, 0, len(out))
	last := -1.0
	for _, m := range out {
		codes = append(codes, m.CRS)
		require.NotNil(t, m.DistanceKm)
		assert.LessOrEqual(t, *m.DistanceKm, NearbyKm)
		assert.GreaterOrEqual(t, *m.DistanceKm, last)
		last = *m.DistanceKm
	}

	assert.NotContains(t, codes, "KGX", "base station excluded")
	assert.NotContains(t, codes, "EDB", "farther than 45 km")
	assert.NotContains(t, codes, "KLN", "farther than 45 km")
	assert.NotContains(t, codes, "XXX", "no coordinates")
	assert.Equal(t, "STP", codes[0])
}

func TestSearchNearbyBaseWithoutCoordinates(t *testing.T) {
	records := loadFixture(t)
	base, _ := FindByCode(records, "XXX")
	assert.Empty(t, SearchNearby(records, base, 20))
}

func TestSearchNearbyLimit(t *testing.T) {
	records := loadFixture(t)
	base, _ := FindByCode(records, "KGX")
	assert.Len(t, SearchNearby(records, base, 1), 1)
}
