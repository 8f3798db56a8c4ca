package application

import (
	"context"
	"time"

	"github.com/agrimesh-platform/edge-gateway/pkg/dispatch"
	"github.com/agrimesh-platform/edge-gateway/pkg/errors"
)

// FieldOverview composes one field's overview from the field, weather,
// imagery and alert services. Individual source failures degrade the
// overview; it is refused only when every source is unavailable.
func (s *GatewayApplicationService) FieldOverview(ctx context.Context, query FieldOverviewQuery) (*FieldOverviewDTO, error) {
	fieldPath := "/api/v1/fields/" + query.FieldID

	branches := []dispatch.BranchRequest{
		{Name: "field", Target: s.targets.Field, Request: branchRequest(s.targets.Field, fieldPath, query.CallerKey)},
		{Name: "weather", Target: s.targets.Weather, Request: branchRequest(s.targets.Weather, fieldPath+"/weather/current", query.CallerKey)},
		{Name: "imagery", Target: s.targets.Imagery, Request: branchRequest(s.targets.Imagery, fieldPath+"/imagery/latest", query.CallerKey)},
		{Name: "alerts", Target: s.targets.Alert, Request: branchRequest(s.targets.Alert, fieldPath+"/alerts/active", query.CallerKey)},
	}

	results := s.aggregator.Build(ctx, "field-overview", branches)
	if dispatch.AllUnavailable(results) {
		return nil, errors.ErrServiceUnavailable("field overview")
	}

	s.checkContracts(ctx, branches, results)

	degraded := dispatch.Degraded(results)
	unavailable := dispatch.UnavailableBranches(results)
	if degraded {
		s.publishDegraded(ctx, "field-overview", fieldPath+"/overview", unavailable)
	}

	return &FieldOverviewDTO{
		FieldID:            query.FieldID,
		GeneratedAt:        time.Now().UTC(),
		Degraded:           degraded,
		UnavailableSources: unavailable,
		Sources:            toSourceSections(results),
	}, nil
}
