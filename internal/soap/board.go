package soap

import (
	"fmt"

	"control-room/gateway/internal/types"
)

// FaultError SOAP Fault found in a response
type FaultError struct {
	FaultString string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("SOAP fault: %s", e.FaultString)
}

// serviceLists containers that may hold <service> elements on a board
var serviceLists = []string{"trainServices", "busServices", "ferryServices"}

// CheckFault returns a *FaultError when a Fault element exists anywhere in the tree
func CheckFault(root *Node) error {
	fault := root.FindFirst("Fault")
	if fault == nil {
		return nil
	}

	message := fault.FirstText("faultstring")
	if message == "" {
		// SOAP 1.2 puts the message under Reason/Text
		if reason := fault.FindFirst("Reason"); reason != nil {
			message = reason.FirstText("Text")
		}
	}
	if message == "" {
		message = "SOAP Fault"
	}
	return &FaultError{FaultString: message}
}

// ParseResponse parses a SOAP response and short-circuits on Fault
func ParseResponse(data []byte) (*Node, error) {
	root, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := CheckFault(root); err != nil {
		return nil, err
	}
	return root, nil
}

// ========================================
// Station board
// ========================================

// ExtractStationBoard maps a parsed response to a NormalizedBoard
// A response without a board result yields an empty board.
func ExtractStationBoard(root *Node) *types.NormalizedBoard {
	board := &types.NormalizedBoard{
		NRCCMessages: []string{},
		Services:     []types.NormalizedService{},
	}

	result := root.FindFirst("GetStationBoardResult", "StationBoardResult")
	if result == nil {
		return board
	}

	board.GeneratedAt = result.Field("generatedAt")
	board.LocationName = result.Field("locationName")
	board.CRS = result.Field("crs")
	board.NRCCMessages = nrccMessages(result)

	for _, listName := range serviceLists {
		for _, list := range result.FindAll(listName) {
			for _, svc := range list.Children {
				if svc.Name == "service" {
					board.Services = append(board.Services, extractService(svc))
				}
			}
		}
	}

	return board
}

// nrccMessages collects notice texts from <nrccMessages><message> or <nrccMessage>
func nrccMessages(result *Node) []string {
	messages := []string{}

	for _, container := range result.FindAll("nrccMessages") {
		for _, msg := range container.Children {
			if text := messageText(msg); text != "" {
				messages = append(messages, text)
			}
		}
	}
	for _, msg := range result.FindAll("nrccMessage") {
		if text := messageText(msg); text != "" {
			messages = append(messages, text)
		}
	}

	return messages
}

// messageText returns element text, joining nested markup when there is no direct text
func messageText(n *Node) string {
	if n.Text != "" {
		return n.Text
	}
	var out string
	n.Walk(func(child *Node) bool {
		if child != n && child.Text != "" {
			if out != "" {
				out += " "
			}
			out += child.Text
		}
		return true
	})
	return out
}

func extractService(svc *Node) types.NormalizedService {
	return types.NormalizedService{
		ServiceID:    svc.Field("serviceID"),
		STD:          svc.Field("std"),
		ETD:          svc.Field("etd"),
		STA:          svc.Field("sta"),
		ETA:          svc.Field("eta"),
		Platform:     svc.Field("platform"),
		Operator:     svc.Field("operator"),
		OperatorCode: svc.Field("operatorCode"),
		Length:       svc.Field("length"),
		Origin:       locationNames(svc, "origin"),
		Destination:  locationNames(svc, "destination"),
	}
}

// locationNames flattens <origin><location><locationName> style wrappers
func locationNames(svc *Node, wrapper string) []string {
	names := []string{}
	for _, w := range svc.FindAll(wrapper) {
		for _, loc := range w.FindAll("location") {
			if name := loc.FirstText("locationName"); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}

// ========================================
// Service details
// ========================================

// ExtractServiceDetails maps a parsed response to ServiceDetails
// Returns nil when the response carries no details result.
func ExtractServiceDetails(root *Node, serviceID string) *types.ServiceDetails {
	details := root.FindFirst("GetServiceDetailsResult", "ServiceDetailsResult")
	if details == nil {
		return nil
	}

	out := &types.ServiceDetails{
		ServiceID:    serviceID,
		GeneratedAt:  details.Field("generatedAt"),
		ServiceType:  details.Field("serviceType"),
		LocationName: details.Field("locationName"),
		CRS:          details.Field("crs"),
		Operator:     details.Field("operator"),
		OperatorCode: details.Field("operatorCode"),
		RSID:         details.Field("rsid"),
		STD:          details.Field("std"),
		ETD:          details.Field("etd"),
		STA:          details.Field("sta"),
		ETA:          details.Field("eta"),
		Platform:     details.Field("platform"),
		IsCancelled:  details.Field("isCancelled"),
		CancelReason: details.Field("cancelReason"),
		DelayReason:  details.Field("delayReason"),
	}

	var points types.CallingPointSet
	for _, cp := range callingPoints(details, "previousCallingPoints") {
		points.Add(cp.Field("crs"), cp.Field("locationName"))
	}
	points.Add(out.CRS, out.LocationName)
	for _, cp := range callingPoints(details, "subsequentCallingPoints") {
		points.Add(cp.Field("crs"), cp.Field("locationName"))
	}
	out.CallingPoints = points.Points()

	return out
}

func callingPoints(details *Node, container string) []*Node {
	var out []*Node
	for _, c := range details.FindAll(container) {
		out = append(out, c.FindAll("callingPoint")...)
	}
	return out
}
