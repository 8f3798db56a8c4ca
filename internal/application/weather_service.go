package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agrimesh-platform/edge-gateway/pkg/errors"
)

// weatherRanges maps the accepted range parameter onto weather-service path
// segments. The empty string means current conditions.
var weatherRanges = map[string]string{
	"":        "current",
	"current": "current",
	"hourly":  "hourly",
	"daily":   "daily",
}

// FieldWeather fetches one field's weather through the full dispatch
// pipeline. Unlike the aggregates there is nothing to degrade to, so
// pipeline failures surface to the caller with their distinct error codes.
func (s *GatewayApplicationService) FieldWeather(ctx context.Context, query FieldWeatherQuery) (*FieldWeatherDTO, error) {
	rng, ok := weatherRanges[query.Range]
	if !ok {
		return nil, errors.ErrValidationWithFields("validation failed", map[string]string{
			"range": "must be one of current, hourly, daily",
		})
	}

	path := "/api/v1/fields/" + query.FieldID + "/weather/" + rng
	req := branchRequest(s.targets.Weather, path, query.CallerKey)

	resp, err := s.dispatcher.Call(ctx, s.targets.Weather, req)
	if err != nil {
		return nil, err
	}

	s.checkContract(ctx, s.targets.Weather.Name, resp.Body)

	return &FieldWeatherDTO{
		FieldID:     query.FieldID,
		Range:       rng,
		Cached:      resp.Cached,
		RetrievedAt: time.Now().UTC(),
		Weather:     json.RawMessage(resp.Body),
	}, nil
}
