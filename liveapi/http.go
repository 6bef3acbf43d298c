package liveapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// Endpoint is a Fetcher performing an HTTP GET on a live API.
type Endpoint struct {
	Client *http.Client // defaults to http.DefaultClient
	URL    string
	Log    zerolog.Logger
}

// PositionsEndpoint returns the Client Portal endpoint listing the positions
// of account, base being the gateway address such as
// "https://localhost:5000/v1/api".
func PositionsEndpoint(client *http.Client, base, account string) Endpoint {
	return Endpoint{Client: client, URL: strings.TrimSuffix(base, "/") + "/portfolio/" + url.PathEscape(account) + "/positions/0"}
}

// TradesEndpoint returns the Client Portal endpoint listing recent executions.
func TradesEndpoint(client *http.Client, base string) Endpoint {
	return Endpoint{Client: client, URL: strings.TrimSuffix(base, "/") + "/iserver/account/trades"}
}

// Fetch performs the GET and decodes the JSON response.
func (e Endpoint) Fetch(ctx context.Context) (any, error) {
	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	e.Log.Debug().Str("method", req.Method).Str("host", req.URL.Host).Str("path", req.URL.Path).Str("status", resp.Status).Msg("live api")
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cannot http GET %v%v: %v", req.URL.Host, req.URL.Path, resp.Status)
	}

	doc, err := decode(resp.Body)
	if err != nil {
		return nil, err
	}
	// the gateway reports some failures as a 200 with an error object.
	if obj, ok := doc.(map[string]any); ok {
		if _, failed := obj["error"]; failed {
			return nil, fmt.Errorf("live api error: %s", compact(doc))
		}
	}
	return doc, nil
}
