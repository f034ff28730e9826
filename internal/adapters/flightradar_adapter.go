package adapters

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"control-room/gateway/internal/metrics"
	"control-room/gateway/internal/types"

	"github.com/sirupsen/logrus"
)

// Feed defaults
var (
	// DefaultFeedBounds north, south, west, east around the British Isles
	DefaultFeedBounds = Bounds{North: 61.2, South: 49.7, West: -11.5, East: 2.8}

	// UKAirspace box used by the ukOnly filter
	UKAirspace = Bounds{North: 61.3, South: 49.3, West: -9.8, East: 2.8}

	// UKAirportIATA airports that keep a position-less flight in the ukOnly view
	UKAirportIATA = map[string]struct{}{
		"LHR": {}, "LGW": {}, "STN": {}, "LTN": {}, "LCY": {}, "SEN": {}, "MAN": {}, "BHX": {}, "BRS": {}, "LPL": {},
		"NCL": {}, "EMA": {}, "NQY": {}, "EXT": {}, "SOU": {}, "BOH": {}, "NWI": {}, "MME": {}, "LBA": {}, "HUY": {},
		"CWL": {}, "EDI": {}, "GLA": {}, "ABZ": {}, "INV": {}, "PIK": {}, "DND": {}, "BFS": {}, "BHD": {}, "IOM": {},
		"JER": {}, "GCI": {},
	}
)

// MaxTrailPoints trail points kept in flight details
const MaxTrailPoints = 600

// feedFieldCount minimum array length of a feed entry
const feedFieldCount = 17

// browserHeaders the feed only answers browser-like requests
var browserHeaders = map[string]string{
	types.HeaderUserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0 Safari/537.36",
	types.HeaderAccept:    "application/json, text/plain, */*",
	"Accept-Encoding":     "gzip",
	"Referer":             "https://www.flightradar24.com/",
	"Origin":              "https://www.flightradar24.com",
}

// Bounds a lat/lon box
type Bounds struct {
	North float64 `json:"n"`
	South float64 `json:"s"`
	West  float64 `json:"w"`
	East  float64 `json:"e"`
}

// Clamp limits latitudes to ±90 and longitudes to ±180
func (b Bounds) Clamp() Bounds {
	return Bounds{
		North: clamp(b.North, -90, 90),
		South: clamp(b.South, -90, 90),
		West:  clamp(b.West, -180, 180),
		East:  clamp(b.East, -180, 180),
	}
}

// Contains reports whether the point lies inside the box, edges included
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.South && lat <= b.North && lon >= b.West && lon <= b.East
}

// LiveFlight one aircraft from the live feed; values are passed through as sent
type LiveFlight struct {
	ID            string      `json:"id"`
	ICAO24        interface{} `json:"icao24"`
	Lat           interface{} `json:"lat"`
	Lon           interface{} `json:"lon"`
	Heading       interface{} `json:"heading"`
	Altitude      interface{} `json:"altitude"`
	Speed         interface{} `json:"speed"`
	Squawk        interface{} `json:"squawk"`
	Aircraft      interface{} `json:"aircraft"`
	Registration  interface{} `json:"registration"`
	Time          interface{} `json:"time"`
	Origin        interface{} `json:"origin"`
	Destination   interface{} `json:"destination"`
	Number        interface{} `json:"number"`
	OnGround      interface{} `json:"onGround"`
	VerticalSpeed interface{} `json:"verticalSpeed"`
	Callsign      interface{} `json:"callsign"`
	AirlineICAO   interface{} `json:"airlineIcao"`
}

// FlightDetails subset of the click-handler payload
type FlightDetails struct {
	Identification interface{}   `json:"identification"`
	Status         interface{}   `json:"status"`
	Aircraft       interface{}   `json:"aircraft"`
	Airline        interface{}   `json:"airline"`
	Airport        interface{}   `json:"airport"`
	Time           interface{}   `json:"time"`
	Trail          []interface{} `json:"trail"`
}

// FlightRadarAdapter live flight feed adapter
type FlightRadarAdapter struct {
	*BaseAdapter
	feedURL    string
	detailsURL string
}

// NewFlightRadarAdapter creates the live feed adapter
// The details endpoint is a prefix the flight id is appended to.
func NewFlightRadarAdapter(feed, details types.ProviderEndpoint, m *metrics.Metrics, logger *logrus.Logger) *FlightRadarAdapter {
	timeout := feed.Timeout
	if details.Timeout > timeout {
		timeout = details.Timeout
	}
	return &FlightRadarAdapter{
		BaseAdapter: NewBaseAdapter(types.ProviderFR24, timeout, m, logger),
		feedURL:     feed.BaseURL,
		detailsURL:  details.BaseURL,
	}
}

// FetchFlights loads the feed for bounds and extracts positioned flights
func (a *FlightRadarAdapter) FetchFlights(ctx context.Context, bounds Bounds) ([]LiveFlight, error) {
	params := url.Values{}
	for key, value := range map[string]string{
		"faa": "1", "satellite": "1", "mlat": "1", "flarm": "1", "adsb": "1", "gnd": "1", "air": "1",
		"vehicles": "0", "estimated": "1", "maxage": "14400", "gliders": "0", "stats": "1", "limit": "1500",
	} {
		params.Set(key, value)
	}
	params.Set("bounds", fmt.Sprintf("%s,%s,%s,%s",
		formatCoord(bounds.North), formatCoord(bounds.South), formatCoord(bounds.West), formatCoord(bounds.East)))

	payload, err := a.getJSON(ctx, a.feedURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	return ExtractFlights(payload), nil
}

// FetchDetails loads one flight's details; the trail is dropped unless withTrail
func (a *FlightRadarAdapter) FetchDetails(ctx context.Context, flightID string, withTrail bool) (*FlightDetails, error) {
	flightID = strings.TrimSpace(flightID)
	payload, err := a.getJSON(ctx, a.detailsURL+url.PathEscape(flightID))
	if err != nil {
		return nil, err
	}

	obj, ok := payload.(map[string]interface{})
	if !ok {
		return nil, &types.ProviderError{
			Provider: a.name,
			Kind:     types.ErrorDecode,
			Message:  "FlightRadar24 details fetch failed",
			Detail:   "details payload is not an object",
		}
	}

	details := &FlightDetails{
		Identification: objectOrEmpty(obj["identification"]),
		Status:         objectOrEmpty(obj["status"]),
		Aircraft:       objectOrEmpty(obj["aircraft"]),
		Airline:        objectOrEmpty(obj["airline"]),
		Airport:        objectOrEmpty(obj["airport"]),
		Time:           objectOrEmpty(obj["time"]),
		Trail:          []interface{}{},
	}
	if withTrail {
		if trail, ok := obj["trail"].([]interface{}); ok {
			if len(trail) > MaxTrailPoints {
				trail = trail[len(trail)-MaxTrailPoints:]
			}
			details.Trail = trail
		}
	}
	return details, nil
}

func (a *FlightRadarAdapter) getJSON(ctx context.Context, target string) (interface{}, error) {
	result := a.call(ctx, http.MethodGet, target, nil, browserHeaders)
	if result.Kind != types.CallOK {
		return nil, a.failure(result, "FlightRadar24 HTTP", "FlightRadar24 request failed")
	}
	var payload interface{}
	if err := a.parseJSONResponse(result.Body, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// ExtractFlights turns the feed object into flights ordered by id
// Entries need a numeric-looking id, at least 17 fields and a position.
func ExtractFlights(payload interface{}) []LiveFlight {
	flights := []LiveFlight{}
	obj, ok := payload.(map[string]interface{})
	if !ok {
		return flights
	}

	for id, value := range obj {
		if id == "" || id[0] < '0' || id[0] > '9' {
			continue
		}
		info, ok := value.([]interface{})
		if !ok || len(info) < feedFieldCount {
			continue
		}
		at := func(i int) interface{} {
			if i < len(info) {
				return info[i]
			}
			return nil
		}
		if at(1) == nil || at(2) == nil {
			continue
		}

		flights = append(flights, LiveFlight{
			ID:            id,
			ICAO24:        at(0),
			Lat:           at(1),
			Lon:           at(2),
			Heading:       at(3),
			Altitude:      at(4),
			Speed:         at(5),
			Squawk:        at(6),
			Aircraft:      at(8),
			Registration:  at(9),
			Time:          at(10),
			Origin:        at(11),
			Destination:   at(12),
			Number:        at(13),
			OnGround:      at(14),
			VerticalSpeed: at(15),
			Callsign:      at(16),
			AirlineICAO:   at(18),
		})
	}

	sort.Slice(flights, func(i, j int) bool { return flights[i].ID < flights[j].ID })
	return flights
}

// FilterUK keeps flights inside UK airspace, plus flights without a numeric
// position that fly to or from a UK airport
func FilterUK(flights []LiveFlight) []LiveFlight {
	out := []LiveFlight{}
	for _, f := range flights {
		lat, latOK := f.Lat.(float64)
		lon, lonOK := f.Lon.(float64)
		if latOK && lonOK {
			if UKAirspace.Contains(lat, lon) {
				out = append(out, f)
			}
			continue
		}
		if ukAirport(f.Origin) || ukAirport(f.Destination) {
			out = append(out, f)
		}
	}
	return out
}

func ukAirport(v interface{}) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, found := UKAirportIATA[strings.ToUpper(strings.TrimSpace(s))]
	return found
}

func objectOrEmpty(v interface{}) interface{} {
	if truthy(v) {
		return v
	}
	return map[string]interface{}{}
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// gunzip decodes a gzip body the transport left compressed
func gunzip(r io.Reader) ([]byte, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
