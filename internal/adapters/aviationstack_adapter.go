package adapters

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"control-room/gateway/internal/config"
	"control-room/gateway/internal/metrics"
	"control-room/gateway/internal/types"

	"github.com/sirupsen/logrus"
)

// EnvAviationstackKey access key for the schedule API
const EnvAviationstackKey = "AVIATIONSTACK_API_KEY"

// scheduleCandidates upstream result limit
const scheduleCandidates = 12

// Candidate ranking weights
const (
	scoreExactCallsign = 50
	scoreLive          = 20
	scoreStatusPresent = 10
)

// AviationstackAdapter flight schedule adapter
type AviationstackAdapter struct {
	*BaseAdapter
	baseURL string
	store   *config.Store
}

// NewAviationstackAdapter creates the schedule adapter
func NewAviationstackAdapter(endpoint types.ProviderEndpoint, store *config.Store, m *metrics.Metrics, logger *logrus.Logger) *AviationstackAdapter {
	return &AviationstackAdapter{
		BaseAdapter: NewBaseAdapter(types.ProviderAviationstack, endpoint.Timeout, m, logger),
		baseURL:     strings.TrimRight(endpoint.BaseURL, "/"),
		store:       store,
	}
}

// ========================================
// Response structures
// ========================================

// aviationstackResponse /flights response
type aviationstackResponse struct {
	Data []aviationstackFlight `json:"data"`
}

type aviationstackFlight struct {
	FlightStatus string                 `json:"flight_status"`
	Live         interface{}            `json:"live"`
	Flight       aviationstackCode      `json:"flight"`
	Airline      aviationstackAirline   `json:"airline"`
	Departure    map[string]interface{} `json:"departure"`
	Arrival      map[string]interface{} `json:"arrival"`
}

type aviationstackCode struct {
	IATA string `json:"iata"`
	ICAO string `json:"icao"`
}

type aviationstackAirline struct {
	Name string `json:"name"`
}

// FlightSchedule top-ranked schedule candidate
type FlightSchedule struct {
	FlightCode string           `json:"flight_code"`
	Status     string           `json:"status"`
	Airline    string           `json:"airline"`
	Departure  ScheduleEndpoint `json:"departure"`
	Arrival    ScheduleEndpoint `json:"arrival"`
}

// ScheduleEndpoint one end of a scheduled flight; times are passed through verbatim
type ScheduleEndpoint struct {
	Airport   interface{} `json:"airport"`
	Scheduled interface{} `json:"scheduled"`
	Estimated interface{} `json:"estimated"`
	Actual    interface{} `json:"actual"`
	Delay     interface{} `json:"delay"`
}

// Configured reports whether the access key is present
func (a *AviationstackAdapter) Configured() bool {
	return a.store.Has(EnvAviationstackKey)
}

// LookupSchedule fetches candidates and returns the best match, nil when none
// Parameters:
//   - callsign: upper-cased flight code, filters the upstream query when set
//   - icao24: accepted for callers that only know the transponder; not sent upstream
func (a *AviationstackAdapter) LookupSchedule(ctx context.Context, callsign, icao24 string) (*FlightSchedule, error) {
	key := a.store.Get(EnvAviationstackKey)
	if key == "" {
		return nil, a.configError(EnvAviationstackKey)
	}

	params := url.Values{}
	params.Set("access_key", key)
	params.Set("limit", strconv.Itoa(scheduleCandidates))
	if callsign != "" {
		params.Set("flight_iata", callsign)
	}

	result := a.call(ctx, http.MethodGet, a.baseURL+"/flights?"+params.Encode(), nil, map[string]string{
		types.HeaderAccept: "application/json",
	})
	if result.Kind != types.CallOK {
		return nil, a.failure(result, "aviationstack HTTP", "aviationstack request failed")
	}

	var resp aviationstackResponse
	if err := a.parseJSONResponse(result.Body, &resp); err != nil {
		return nil, err
	}

	top := rankSchedules(resp.Data, callsign)
	if top == nil {
		a.logger.Debugf("[%s] no schedule match for callsign=%q icao24=%q", a.name, callsign, icao24)
		return nil, nil
	}
	return toSchedule(top, callsign), nil
}

// rankSchedules orders candidates by score, keeping upstream order on ties
func rankSchedules(items []aviationstackFlight, callsign string) *aviationstackFlight {
	if len(items) == 0 {
		return nil
	}
	if len(items) > scheduleCandidates {
		items = items[:scheduleCandidates]
	}

	sort.SliceStable(items, func(i, j int) bool {
		return scheduleScore(items[i], callsign) > scheduleScore(items[j], callsign)
	})
	return &items[0]
}

func scheduleScore(item aviationstackFlight, callsign string) int {
	score := 0
	if callsign != "" && strings.ToUpper(item.Flight.IATA) == callsign {
		score += scoreExactCallsign
	}
	if truthy(item.Live) {
		score += scoreLive
	}
	if item.FlightStatus != "" {
		score += scoreStatusPresent
	}
	return score
}

func toSchedule(top *aviationstackFlight, callsign string) *FlightSchedule {
	code := top.Flight.IATA
	if code == "" {
		code = top.Flight.ICAO
	}
	if code == "" {
		code = callsign
	}
	status := top.FlightStatus
	if status == "" {
		status = "unknown"
	}

	return &FlightSchedule{
		FlightCode: code,
		Status:     status,
		Airline:    top.Airline.Name,
		Departure:  scheduleEndpoint(top.Departure),
		Arrival:    scheduleEndpoint(top.Arrival),
	}
}

func scheduleEndpoint(raw map[string]interface{}) ScheduleEndpoint {
	var airport interface{}
	for _, key := range []string{"airport", "iata", "icao"} {
		if truthy(raw[key]) {
			airport = raw[key]
			break
		}
	}
	return ScheduleEndpoint{
		Airport:   airport,
		Scheduled: raw["scheduled"],
		Estimated: raw["estimated"],
		Actual:    raw["actual"],
		Delay:     raw["delay"],
	}
}

// truthy loose JSON truthiness: null, false, 0, "", [] and {} are false
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	default:
		return true
	}
}
