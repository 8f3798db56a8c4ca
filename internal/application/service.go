package application

import (
	"context"
	"net/http"
	"time"

	"github.com/agrimesh-platform/edge-gateway/pkg/contracts"
	"github.com/agrimesh-platform/edge-gateway/pkg/dispatch"
	"github.com/agrimesh-platform/edge-gateway/pkg/events"
	"github.com/agrimesh-platform/edge-gateway/pkg/kafka"
	"github.com/agrimesh-platform/edge-gateway/pkg/logging"
	"github.com/agrimesh-platform/edge-gateway/pkg/metrics"
)

// publishTimeout bounds the async publish of an ops event so a slow broker
// never holds a goroutine for longer than a request would have.
const publishTimeout = 5 * time.Second

// Targets names the downstream services the gateway fronts. Each target
// carries its own breaker, retry and cache policy.
type Targets struct {
	Field    *dispatch.Target
	Weather  *dispatch.Target
	Imagery  *dispatch.Target
	Device   *dispatch.Target
	Alert    *dispatch.Target
	Advisory *dispatch.Target
}

// GatewayApplicationService handles the gateway's composition use cases:
// fan-out aggregates and single-target passthroughs, both running through
// the dispatch pipeline.
type GatewayApplicationService struct {
	dispatcher   *dispatch.Dispatcher
	aggregator   *dispatch.Aggregator
	targets      *Targets
	validator    *contracts.ResponseValidator
	producer     kafka.EventPublisher
	eventFactory *events.EventFactory
	logger       *logging.Logger
	metrics      *metrics.Metrics
}

// NewGatewayApplicationService creates a new GatewayApplicationService.
// Validator and metrics may be nil, which disables contract checking and
// counter updates respectively.
func NewGatewayApplicationService(
	dispatcher *dispatch.Dispatcher,
	aggregator *dispatch.Aggregator,
	targets *Targets,
	validator *contracts.ResponseValidator,
	producer kafka.EventPublisher,
	eventFactory *events.EventFactory,
	logger *logging.Logger,
	m *metrics.Metrics,
) *GatewayApplicationService {
	return &GatewayApplicationService{
		dispatcher:   dispatcher,
		aggregator:   aggregator,
		targets:      targets,
		validator:    validator,
		producer:     producer,
		eventFactory: eventFactory,
		logger:       logger,
		metrics:      m,
	}
}

// branchRequest builds a cacheable GET for one downstream path. The cache
// key is target-qualified so entries for different services never collide.
func branchRequest(target *dispatch.Target, path, callerKey string) *dispatch.Request {
	return &dispatch.Request{
		Method:    http.MethodGet,
		Path:      path,
		CallerKey: callerKey,
		CacheKey:  target.Name + ":" + path,
	}
}

// checkContract validates an available payload against the target's response
// contract. Violations are observed, never enforced: the payload is served
// exactly as it arrived.
func (s *GatewayApplicationService) checkContract(ctx context.Context, target string, payload []byte) {
	if s.validator == nil {
		return
	}
	if err := s.validator.Validate(target, payload); err != nil {
		s.logger.WithContext(ctx).Warn("Downstream response violates contract",
			"target", target,
			"error", err.Error(),
		)
		if s.metrics != nil {
			s.metrics.RecordContractViolation(target)
		}
	}
}

// checkContracts validates every available branch of an aggregate. Branches
// and results line up by index.
func (s *GatewayApplicationService) checkContracts(ctx context.Context, branches []dispatch.BranchRequest, results []dispatch.BranchResult) {
	for i, res := range results {
		if res.Available {
			s.checkContract(ctx, branches[i].Target.Name, res.Value)
		}
	}
}

// publishDegraded emits a response-degraded ops event. The event is built
// from the request context so correlation survives, but published on a
// detached context so the caller's deadline cannot cancel it.
func (s *GatewayApplicationService) publishDegraded(ctx context.Context, aggregate, requestPath string, unavailable []string) {
	event := s.eventFactory.CreateResponseDegradedEvent(ctx, aggregate, unavailable, requestPath)
	if correlationID, ok := ctx.Value(logging.CorrelationIDKey).(string); ok {
		event.WithCorrelation(correlationID)
	}

	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := s.producer.PublishEvent(pubCtx, kafka.Topics.GatewayEvents, event); err != nil {
			s.logger.WithError(err).Warn("Failed to publish degraded-response event",
				"aggregate", aggregate,
			)
		}
	}()
}
