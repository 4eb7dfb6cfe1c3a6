package accounts

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultFlowTTL is how long an idle registration flow is kept
const DefaultFlowTTL = 30 * time.Minute

// FlowStore keeps registration flows in memory and expires idle ones.
type FlowStore struct {
	flows      *xsync.MapOf[string, *RegistrationFlow]
	bridge     IdentityBridge
	reconciler Reconciler
	ttl        time.Duration
	now        func() time.Time
	logger     Logger
	flowOpts   []FlowOption
}

// FlowStoreOption customizes the store
type FlowStoreOption func(*FlowStore)

// WithFlowTTL overrides DefaultFlowTTL.
func WithFlowTTL(ttl time.Duration) FlowStoreOption {
	return func(s *FlowStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithFlowStoreClock injects a custom clock, it is also handed to new flows.
func WithFlowStoreClock(clock func() time.Time) FlowStoreOption {
	return func(s *FlowStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithFlowStoreLogger sets the logger.
func WithFlowStoreLogger(logger Logger) FlowStoreOption {
	return func(s *FlowStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFlowOptions sets the options applied to every new flow.
func WithFlowOptions(opts ...FlowOption) FlowStoreOption {
	return func(s *FlowStore) {
		s.flowOpts = append(s.flowOpts, opts...)
	}
}

// NewFlowStore returns an empty store creating flows bound to bridge and reconciler.
func NewFlowStore(bridge IdentityBridge, reconciler Reconciler, opts ...FlowStoreOption) *FlowStore {
	s := &FlowStore{
		flows:      xsync.NewMapOf[string, *RegistrationFlow](),
		bridge:     bridge,
		reconciler: reconciler,
		ttl:        DefaultFlowTTL,
		now:        time.Now,
		logger:     defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start creates and stores a new flow.
func (s *FlowStore) Start() *RegistrationFlow {
	opts := append([]FlowOption{WithFlowClock(s.now), WithFlowLogger(s.logger)}, s.flowOpts...)
	flow := NewRegistrationFlow(s.bridge, s.reconciler, opts...)
	s.flows.Store(flow.ID(), flow)
	return flow
}

// Get returns a live flow or ErrFlowNotFound.
func (s *FlowStore) Get(id string) (*RegistrationFlow, error) {
	flow, ok := s.flows.Load(id)
	if !ok {
		return nil, NewError(ErrFlowNotFound, map[string]any{"flow_id": id})
	}

	if s.expired(flow) {
		s.flows.Delete(id)
		return nil, NewError(ErrFlowNotFound, map[string]any{
			"flow_id": id,
			"reason":  "expired",
		})
	}
	return flow, nil
}

// Delete drops a flow.
func (s *FlowStore) Delete(id string) {
	s.flows.Delete(id)
}

// Len returns the number of stored flows, expired ones included.
func (s *FlowStore) Len() int {
	return s.flows.Size()
}

// Purge removes expired flows and returns how many were dropped.
func (s *FlowStore) Purge() int {
	removed := 0
	s.flows.Range(func(id string, flow *RegistrationFlow) bool {
		if s.expired(flow) {
			s.flows.Delete(id)
			removed++
		}
		return true
	})
	return removed
}

// Run purges expired flows every interval until ctx is done.
func (s *FlowStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl / 2
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Purge(); n > 0 {
				s.logger.Debug("purged expired registration flows", "count", n)
			}
		}
	}
}

func (s *FlowStore) expired(flow *RegistrationFlow) bool {
	return s.now().Sub(flow.TouchedAt()) > s.ttl
}
