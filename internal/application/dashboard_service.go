package application

import (
	"context"
	"time"

	"github.com/agrimesh-platform/edge-gateway/pkg/dispatch"
	"github.com/agrimesh-platform/edge-gateway/pkg/errors"
)

// FarmDashboard composes one farm's dashboard from the field, device, alert
// and advisory services. Like the field overview it degrades per source and
// refuses only when nothing is available.
func (s *GatewayApplicationService) FarmDashboard(ctx context.Context, query FarmDashboardQuery) (*FarmDashboardDTO, error) {
	farmPath := "/api/v1/farms/" + query.FarmID

	branches := []dispatch.BranchRequest{
		{Name: "fields", Target: s.targets.Field, Request: branchRequest(s.targets.Field, farmPath+"/fields", query.CallerKey)},
		{Name: "devices", Target: s.targets.Device, Request: branchRequest(s.targets.Device, farmPath+"/devices/summary", query.CallerKey)},
		{Name: "alerts", Target: s.targets.Alert, Request: branchRequest(s.targets.Alert, farmPath+"/alerts/active", query.CallerKey)},
		{Name: "advisories", Target: s.targets.Advisory, Request: branchRequest(s.targets.Advisory, farmPath+"/advisories/recent", query.CallerKey)},
	}

	results := s.aggregator.Build(ctx, "farm-dashboard", branches)
	if dispatch.AllUnavailable(results) {
		return nil, errors.ErrServiceUnavailable("farm dashboard")
	}

	s.checkContracts(ctx, branches, results)

	degraded := dispatch.Degraded(results)
	unavailable := dispatch.UnavailableBranches(results)
	if degraded {
		s.publishDegraded(ctx, "farm-dashboard", farmPath+"/dashboard", unavailable)
	}

	return &FarmDashboardDTO{
		FarmID:             query.FarmID,
		GeneratedAt:        time.Now().UTC(),
		Degraded:           degraded,
		UnavailableSources: unavailable,
		Sources:            toSourceSections(results),
	}, nil
}
