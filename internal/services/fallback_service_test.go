package services

import (
	"context"
	"errors"
	"io"
	"testing"

	"control-room/gateway/internal/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name    string
	board   *types.NormalizedBoard
	service *types.ServiceDetails
	err     error
	calls   int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) GetBoard(ctx context.Context, kind types.BoardKind, crs string, rows int) (*types.NormalizedBoard, error) {
	f.calls++
	return f.board, f.err
}

func (f *fakeProvider) GetServiceDetails(ctx context.Context, serviceID string) (*types.ServiceDetails, error) {
	f.calls++
	return f.service, f.err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newResolver(primary, secondary *fakeProvider) *FallbackResolver {
	return NewFallbackResolver(primary, secondary, primary, secondary, nil, testLogger())
}

func sampleBoard(provider string) *types.NormalizedBoard {
	return &types.NormalizedBoard{
		CRS:          "KGX",
		NRCCMessages: []string{},
		Services:     []types.NormalizedService{{ServiceID: provider + "-1", Origin: []string{}, Destination: []string{"Leeds"}}},
	}
}

func TestResolveBoardPrimaryWins(t *testing.T) {
	primary := &fakeProvider{name: types.ProviderLDBWS, board: sampleBoard("ldbws")}
	secondary := &fakeProvider{name: types.ProviderRailData, board: sampleBoard("raildata")}
	resolver := newResolver(primary, secondary)

	result, err := resolver.ResolveBoard(context.Background(), types.BoardDepartures, "KGX", 10)
	require.NoError(t, err)
	assert.Equal(t, types.ProviderLDBWS, result.Provider)
	assert.Equal(t, 0, secondary.calls)
	assert.EqualValues(t, 1, resolver.GetStats()["primary_hits"])
}

func TestResolveBoardFallsBack(t *testing.T) {
	primary := &fakeProvider{name: types.ProviderLDBWS, err: &types.ProviderError{
		Provider: types.ProviderLDBWS, Kind: types.ErrorFault, Message: "LDBWS SOAP fault", Detail: "Unauthorized",
	}}
	secondary := &fakeProvider{name: types.ProviderRailData, board: sampleBoard("raildata")}
	resolver := newResolver(primary, secondary)

	result, err := resolver.ResolveBoard(context.Background(), types.BoardDepartures, "KGX", 10)
	require.NoError(t, err)
	assert.Equal(t, types.ProviderRailData, result.Provider)
	assert.NotEmpty(t, result.Board.Services)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
	assert.EqualValues(t, 1, resolver.GetStats()["secondary_hits"])
}

func TestResolveBoardBothFail(t *testing.T) {
	primary := &fakeProvider{name: types.ProviderLDBWS, err: &types.ProviderError{
		Provider: types.ProviderLDBWS, Kind: types.ErrorUpstream, StatusCode: 500, Message: "HTTP 500", Detail: "boom",
	}}
	secondary := &fakeProvider{name: types.ProviderRailData, err: &types.ProviderError{
		Provider: types.ProviderRailData, Kind: types.ErrorConfig, Message: "Missing template values", Missing: []string{"crs"},
	}}
	resolver := newResolver(primary, secondary)

	_, err := resolver.ResolveBoard(context.Background(), types.BoardArrivals, "KGX", 10)
	var chain *ChainError
	require.True(t, errors.As(err, &chain))
	assert.Equal(t, "HTTP 500", chain.Primary.Message)
	assert.Equal(t, "boom", chain.Primary.Detail)
	require.NotNil(t, chain.Fallback)
	assert.Equal(t, []string{"crs"}, chain.Fallback.Missing)
	assert.Contains(t, err.Error(), "fallback failed")

	var pe *types.ProviderError
	require.True(t, errors.As(err, &pe), "chain unwraps to the primary failure")
	assert.Equal(t, types.ProviderLDBWS, pe.Provider)
	assert.EqualValues(t, 1, resolver.GetStats()["chain_failures"])
}

func TestResolveServiceForeignErrorIsTransport(t *testing.T) {
	primary := &fakeProvider{name: types.ProviderLDBWS, err: context.DeadlineExceeded}
	secondary := &fakeProvider{name: types.ProviderRailData, service: &types.ServiceDetails{ServiceID: "abc"}}
	resolver := newResolver(primary, secondary)

	result, err := resolver.ResolveServiceDetails(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, types.ProviderRailData, result.Provider)
	assert.Equal(t, "abc", result.Service.ServiceID)

	pe := asProviderError("x", context.DeadlineExceeded)
	assert.Equal(t, types.ErrorTransport, pe.Kind)
	assert.Equal(t, "x request failed", pe.Message)
}
