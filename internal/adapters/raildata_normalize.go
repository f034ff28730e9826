package adapters

import (
	"fmt"
	"strconv"
	"strings"

	"control-room/gateway/internal/types"
)

// restServiceLists board containers in the REST payload
var restServiceLists = []string{"trainServices", "busServices", "ferryServices"}

// nrccFields object fields that may carry a notice text, in priority order
var nrccFields = []string{"message", "value", "text", "reason", "content"}

// callingPointContainers nested keys walked when collecting calling points
var callingPointContainers = []string{"callingPoint", "callingPoints", "previousCallingPoints", "subsequentCallingPoints"}

// NormalizeRailDataBoard maps a RailData live board payload to a NormalizedBoard
// A payload that is not a JSON object yields an empty board for crsFallback.
func NormalizeRailDataBoard(raw interface{}, crsFallback string) *types.NormalizedBoard {
	board := &types.NormalizedBoard{
		CRS:          crsFallback,
		NRCCMessages: []string{},
		Services:     []types.NormalizedService{},
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return board
	}

	board.GeneratedAt = text(obj["generatedAt"])
	board.LocationName = text(obj["locationName"])
	if crs := text(obj["crs"]); crs != "" {
		board.CRS = crs
	}

	for _, msg := range list(obj["nrccMessages"]) {
		if s := nrccText(msg); s != "" {
			board.NRCCMessages = append(board.NRCCMessages, s)
		}
	}

	for _, container := range restServiceLists {
		for _, item := range list(obj[container]) {
			svc, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			board.Services = append(board.Services, normalizeRESTService(svc))
		}
	}
	return board
}

func normalizeRESTService(svc map[string]interface{}) types.NormalizedService {
	return types.NormalizedService{
		ServiceID:    firstText(svc, "serviceID", "serviceId"),
		STD:          text(svc["std"]),
		ETD:          text(svc["etd"]),
		STA:          text(svc["sta"]),
		ETA:          text(svc["eta"]),
		Platform:     text(svc["platform"]),
		Operator:     text(svc["operator"]),
		OperatorCode: text(svc["operatorCode"]),
		Length:       text(svc["length"]),
		Origin:       locationList(svc["origin"]),
		Destination:  locationList(svc["destination"]),
	}
}

// NormalizeRailDataService maps a RailData service-details payload to ServiceDetails
// Calling points come from previous, current and subsequent stops; when none
// are present the origin and destination stand in.
func NormalizeRailDataService(raw interface{}, serviceID string) *types.ServiceDetails {
	obj, _ := raw.(map[string]interface{})

	var points types.CallingPointSet
	collectCallingPoints(obj["previousCallingPoints"], &points)
	collectCallingPoints(map[string]interface{}{
		"crs":          obj["crs"],
		"locationName": obj["locationName"],
	}, &points)
	collectCallingPoints(obj["subsequentCallingPoints"], &points)
	if points.Len() == 0 {
		collectCallingPoints(obj["origin"], &points)
		collectCallingPoints(obj["destination"], &points)
	}

	id := firstText(obj, "serviceID", "serviceId")
	if id == "" {
		id = serviceID
	}

	return &types.ServiceDetails{
		ServiceID:     id,
		GeneratedAt:   text(obj["generatedAt"]),
		ServiceType:   text(obj["serviceType"]),
		LocationName:  text(obj["locationName"]),
		CRS:           strings.ToUpper(text(obj["crs"])),
		Operator:      text(obj["operator"]),
		OperatorCode:  text(obj["operatorCode"]),
		RSID:          text(obj["rsid"]),
		STD:           text(obj["std"]),
		ETD:           text(obj["etd"]),
		STA:           text(obj["sta"]),
		ETA:           text(obj["eta"]),
		Platform:      text(obj["platform"]),
		IsCancelled:   text(obj["isCancelled"]),
		CancelReason:  text(obj["cancelReason"]),
		DelayReason:   text(obj["delayReason"]),
		CallingPoints: points.Points(),
	}
}

// collectCallingPoints walks lists and nested containers depth-first
func collectCallingPoints(raw interface{}, out *types.CallingPointSet) {
	switch v := raw.(type) {
	case []interface{}:
		for _, item := range v {
			collectCallingPoints(item, out)
		}
	case map[string]interface{}:
		out.Add(
			firstText(v, "crs", "CRS"),
			firstText(v, "locationName", "stationName", "name"),
		)
		for _, key := range callingPointContainers {
			if nested, ok := v[key]; ok {
				collectCallingPoints(nested, out)
			}
		}
	}
}

// nrccText extracts notice text from a string or an object
func nrccText(msg interface{}) string {
	switch v := msg.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]interface{}:
		if s := firstText(v, nrccFields...); s != "" {
			return s
		}
		for _, value := range v {
			if s, ok := value.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// locationList flattens [{locationName}] into non-empty names
func locationList(raw interface{}) []string {
	names := []string{}
	for _, item := range list(raw) {
		loc, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if name := text(loc["locationName"]); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ========================================
// Loose JSON helpers
// ========================================

// text renders a scalar JSON value as trimmed text; null, false, 0 and "" are empty
func text(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if !t {
			return ""
		}
		return "true"
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// firstText first non-empty text among keys
func firstText(obj map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s := text(obj[key]); s != "" {
			return s
		}
	}
	return ""
}

// list returns v as a JSON array, nil otherwise
func list(v interface{}) []interface{} {
	items, _ := v.([]interface{})
	return items
}
