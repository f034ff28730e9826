// Package soap LDBWS SOAP protocol translation
// Builds namespaced request envelopes and turns responses into the
// normalized board and service-detail records, matching elements on
// local name only
package soap

import (
	"encoding/xml"
	"fmt"

	"control-room/gateway/internal/types"
)

// Namespaces used by the LDBWS request envelope
const (
	NamespaceSOAP  = "http://schemas.xmlsoap.org/soap/envelope/"
	NamespaceLDB   = "http://thalesgroup.com/RTTI/2017-10-01/ldb/"
	NamespaceToken = "http://thalesgroup.com/RTTI/2013-11-28/Token/types"
)

// ContentType request content type for SOAP 1.1
const ContentType = "text/xml; charset=utf-8"

// LDBWS RPC methods
const (
	MethodDepartureBoard = "GetDepartureBoard"
	MethodArrivalBoard   = "GetArrivalBoard"
	MethodServiceDetails = "GetServiceDetails"
)

// Param one element of the method body, emitted as <ldb:Name>Value</ldb:Name>
type Param struct {
	Name  string
	Value string
}

type envelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	SoapNS  string   `xml:"xmlns:soap,attr"`
	LdbNS   string   `xml:"xmlns:ldb,attr"`
	Header  header   `xml:"soap:Header"`
	Body    body     `xml:"soap:Body"`
}

type header struct {
	AccessToken accessToken `xml:"AccessToken"`
}

type accessToken struct {
	NS         string `xml:"xmlns,attr"`
	TokenValue string `xml:"TokenValue"`
}

type body struct {
	Request request
}

type request struct {
	XMLName xml.Name
	Params  []param
}

type param struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// BuildEnvelope wraps the token and method parameters in a SOAP envelope
// Values are XML-escaped by the encoder.
func BuildEnvelope(token, method string, params []Param) ([]byte, error) {
	env := envelope{
		SoapNS: NamespaceSOAP,
		LdbNS:  NamespaceLDB,
		Header: header{
			AccessToken: accessToken{NS: NamespaceToken, TokenValue: token},
		},
		Body: body{
			Request: request{XMLName: xml.Name{Local: "ldb:" + method + "Request"}},
		},
	}
	for _, p := range params {
		env.Body.Request.Params = append(env.Body.Request.Params, param{
			XMLName: xml.Name{Local: "ldb:" + p.Name},
			Value:   p.Value,
		})
	}

	out, err := xml.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to build %s envelope: %w", method, err)
	}
	return append([]byte(xml.Header), out...), nil
}

// SOAPAction header value naming the RPC method
func SOAPAction(method string) string {
	return NamespaceLDB + method
}

// BoardMethod maps a board kind to its RPC method
func BoardMethod(kind types.BoardKind) string {
	if kind == types.BoardArrivals {
		return MethodArrivalBoard
	}
	return MethodDepartureBoard
}
