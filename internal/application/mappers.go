package application

import (
	"encoding/json"

	"github.com/agrimesh-platform/edge-gateway/pkg/dispatch"
)

// toSourceSections converts branch results into response sections keyed by
// branch name
func toSourceSections(results []dispatch.BranchResult) map[string]SourceSectionDTO {
	sections := make(map[string]SourceSectionDTO, len(results))
	for _, res := range results {
		section := SourceSectionDTO{
			Available: res.Available,
			Cached:    res.Cached,
		}
		if res.Available {
			section.Data = json.RawMessage(res.Value)
		} else {
			section.Reason = res.FailureClass
		}
		sections[res.Name] = section
	}
	return sections
}
