package coinbase_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"cryptoprice/internal/coinbase"
)

func jsonBody(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}

func TestFetchRates_ParsesStringifiedFloats(t *testing.T) {
	t.Parallel()

	// Arrange: a mock http client serving the upstream document shape.
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodGet, req.Method)
			require.Equal(t, "BTC", req.URL.Query().Get("currency"))
			require.Equal(t, "application/json", req.Header.Get("Accept"))
			return &http.Response{
				StatusCode: http.StatusOK,
				Body: jsonBody(`{"data":{"currency":"BTC","rates":{
					"USD":"0.00002","EUR":"0.000018","JUNK":"not-a-number"}}}`),
			}, nil
		}).
		Times(1)

	client := coinbase.NewClient(coinbase.WithHTTPClient(httpClient))

	// Act
	table, err := client.FetchRates(context.Background(), "BTC")

	// Assert: parsable rates survive, junk values are skipped.
	require.NoError(t, err)
	require.Equal(t, 0.00002, table["USD"])
	require.Equal(t, 0.000018, table["EUR"])
	require.NotContains(t, table, "JUNK")
}

func TestFetchRates_BaseURLOverride(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	baseURL := "http://localhost:8080/v2/exchange-rates"
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Truef(t, strings.HasPrefix(req.URL.String(), baseURL), "expected url to start with base url, received: %s", req.URL.String())
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       jsonBody(`{"data":{"currency":"BTC","rates":{}}}`),
			}, nil
		}).
		Times(1)

	client := coinbase.NewClient(
		coinbase.WithHTTPClient(httpClient),
		coinbase.WithBaseURL(baseURL),
	)

	_, err := client.FetchRates(context.Background(), "BTC")
	require.NoError(t, err)
}

func TestFetchRates_SendsConfiguredHeader(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "crypto-price-app/1.0", req.Header.Get("User-Agent"))
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       jsonBody(`{"data":{"currency":"BTC","rates":{}}}`),
			}, nil
		}).
		Times(1)

	client := coinbase.NewClient(
		coinbase.WithHTTPClient(httpClient),
		coinbase.WithHeader(http.Header{"User-Agent": []string{"crypto-price-app/1.0"}}),
	)

	_, err := client.FetchRates(context.Background(), "BTC")
	require.NoError(t, err)
}

func TestFetchRates_NonSuccessStatus(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(&http.Response{
			StatusCode: http.StatusBadGateway,
			Body:       jsonBody(`upstream exploded`),
		}, nil).
		Times(1)

	client := coinbase.NewClient(coinbase.WithHTTPClient(httpClient))

	_, err := client.FetchRates(context.Background(), "BTC")
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
	require.Contains(t, err.Error(), "upstream exploded")
}

func TestFetchRates_NetworkError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	netErr := errors.New("connection refused")
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(nil, netErr).
		Times(1)

	client := coinbase.NewClient(coinbase.WithHTTPClient(httpClient))

	_, err := client.FetchRates(context.Background(), "BTC")
	require.ErrorIs(t, err, netErr)
}

func TestFetchRates_MalformedDocument(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(&http.Response{
			StatusCode: http.StatusOK,
			Body:       jsonBody(`{"data":`),
		}, nil).
		Times(1)

	client := coinbase.NewClient(coinbase.WithHTTPClient(httpClient))

	_, err := client.FetchRates(context.Background(), "BTC")
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode exchange rates")
}
