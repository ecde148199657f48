package orchestrator

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"voicebridge/internal/call"
	"voicebridge/internal/flow"
	"voicebridge/internal/telephony"

	"github.com/google/uuid"
)

var (
	ErrNoHealthyProviders = errors.New("orchestrator: no healthy providers available")
	ErrNoProviders        = errors.New("orchestrator: no providers registered")
	ErrProviderNotFound   = errors.New("orchestrator: provider not found")
)

// Config tunes the orchestrator. Zero values fall back to defaults.
type Config struct {
	MaxConcurrentCalls int
	CallTimeout        time.Duration
	MaxRetries         int
	RetryDelay         time.Duration

	// DisableIntelligentRouting switches provider selection to uniform
	// random among registered providers.
	DisableIntelligentRouting bool
}

func (c Config) withDefaults() Config {
	out := c
	if out.MaxConcurrentCalls <= 0 {
		out.MaxConcurrentCalls = 10
	}
	if out.CallTimeout <= 0 {
		out.CallTimeout = 30 * time.Second
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = 3
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = time.Second
	}
	return out
}

// CallRequest is an accepted call order.
type CallRequest struct {
	FromPhone string
	ToPhone   string
	Mode      call.Mode

	// Provider, when set, is preferred if currently healthy.
	Provider string

	// Priority orders queued calls; higher runs first. Defaults to 1.
	Priority int
}

// SystemHealth is the aggregate snapshot exposed to operators.
type SystemHealth struct {
	ActiveCalls    int                            `json:"active_calls"`
	QueuedCalls    int                            `json:"queued_calls"`
	ProviderHealth map[string]flow.ProviderHealth `json:"provider_health"`
	QueueStatus    flow.LoadSnapshot              `json:"queue_status"`
}

// Orchestrator turns call requests into running, tracked calls. It owns
// the set of active state machines and the admission queue; the
// execution engine owns metrics and breaker state.
type Orchestrator struct {
	cfg      Config
	engine   *flow.Engine
	registry *telephony.Registry
	log      *slog.Logger
	rng      *rand.Rand

	mu     sync.Mutex
	active map[string]*call.StateMachine
	queue  callQueue
	seq    uint64

	sink func(call.Session)
}

// New builds an orchestrator over the given provider registry.
// log may be nil.
func New(cfg Config, registry *telephony.Registry, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Orchestrator{
		cfg:      cfg,
		registry: registry,
		log:      log,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		active:   map[string]*call.StateMachine{},
		engine: flow.NewEngine(flow.Config{
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
			Timeout:    cfg.CallTimeout,
		}, log),
	}
}

// SetStatusSink registers the forwarding target for session status
// changes. Per call, delivery order matches transition order.
func (o *Orchestrator) SetStatusSink(fn func(call.Session)) { o.sink = fn }

// Engine exposes the execution engine's read side.
func (o *Orchestrator) Engine() *flow.Engine { return o.engine }

// InitiateCall admits a call and returns its ID synchronously. When the
// concurrency ceiling is reached the call is queued by priority and no
// provider is contacted; otherwise execution starts immediately in the
// background.
func (o *Orchestrator) InitiateCall(req CallRequest) string {
	callID := "call_" + uuid.NewString()
	if req.Mode == "" {
		req.Mode = call.ModeBridge
	}
	if req.Priority == 0 {
		req.Priority = 1
	}
	if req.Mode == call.ModeHeadset {
		// The "from" party is the local operator, not a phone number.
		req.FromPhone = ""
	}

	entry := &QueueEntry{
		CallID:      callID,
		FromPhone:   req.FromPhone,
		ToPhone:     req.ToPhone,
		Mode:        req.Mode,
		Priority:    req.Priority,
		EnqueueTime: time.Now(),
	}

	o.mu.Lock()
	if len(o.active) >= o.cfg.MaxConcurrentCalls {
		o.seq++
		entry.seq = o.seq
		heap.Push(&o.queue, entry)
		o.mu.Unlock()
		o.log.Warn("max concurrent calls reached, queuing call",
			"call_id", callID, "limit", o.cfg.MaxConcurrentCalls, "priority", req.Priority)
		return callID
	}
	sm := o.register(entry)
	o.mu.Unlock()

	go o.executeCall(entry, sm, req.Provider)
	return callID
}

// register builds the session and state machine for an admitted entry
// and adds it to the active set. Caller holds o.mu.
func (o *Orchestrator) register(entry *QueueEntry) *call.StateMachine {
	session := call.Session{
		CallID:    entry.CallID,
		Status:    call.StatusInitiating,
		FromPhone: entry.FromPhone,
		ToPhone:   entry.ToPhone,
		Mode:      entry.Mode,
		Timestamp: time.Now(),
	}
	sm := call.NewStateMachine(session, o.forwardStatus, o.log)
	o.active[entry.CallID] = sm
	return sm
}

func (o *Orchestrator) forwardStatus(s call.Session) {
	if o.sink != nil {
		o.sink(s)
	}
}

// executeCall drives one call end to end. The slot is always freed and
// the queue drained afterwards, regardless of outcome.
func (o *Orchestrator) executeCall(entry *QueueEntry, sm *call.StateMachine, preferred string) {
	ctx := context.Background()

	defer func() {
		o.mu.Lock()
		delete(o.active, entry.CallID)
		o.mu.Unlock()
		o.processQueue()
	}()

	sm.Transition(call.EventInitiate, nil)

	providerName, err := o.selectProvider(preferred)
	if err != nil {
		o.failCall(sm, err)
		return
	}
	provider, ok := o.registry.Get(providerName)
	if !ok {
		o.failCall(sm, ErrProviderNotFound)
		return
	}

	// Fallback re-selects a different healthy provider and retries the
	// initiate there. Its success is reported under the fallback name.
	usedProvider := providerName
	err = o.engine.Run(ctx, entry.CallID, providerName,
		func(ctx context.Context) error {
			_, err := provider.InitiateCall(ctx, entry.FromPhone, entry.ToPhone, entry.Mode)
			return err
		},
		func(ctx context.Context) error {
			fbName, err := o.selectFallbackProvider(providerName)
			if err != nil {
				return err
			}
			fb, ok := o.registry.Get(fbName)
			if !ok {
				return ErrProviderNotFound
			}
			o.log.Info("using fallback provider", "call_id", entry.CallID, "provider", fbName)
			if _, err := fb.InitiateCall(ctx, entry.FromPhone, entry.ToPhone, entry.Mode); err != nil {
				return err
			}
			usedProvider = fbName
			return nil
		},
	)
	if err != nil {
		o.failCall(sm, err)
		return
	}

	sm.Transition(call.EventFirstCallStarted, &call.Patch{Provider: usedProvider})
	sm.Transition(call.EventFirstCallAnswered, nil)

	if entry.Mode == call.ModeBridge {
		active, _ := o.registry.Get(usedProvider)
		if active == nil {
			active = provider
		}
		if err := o.runBridgeLeg(ctx, sm, active, entry.CallID, entry.ToPhone); err != nil {
			o.failCall(sm, err)
			return
		}
	}
}

// runBridgeLeg executes the second leg and the bridge step. Providers
// without the two-step primitives still complete the sequence: the call
// counts as bridged at the application layer.
func (o *Orchestrator) runBridgeLeg(ctx context.Context, sm *call.StateMachine, provider telephony.VoiceProvider, callID, toPhone string) error {
	sm.Transition(call.EventSecondCallStarted, nil)
	sm.Transition(call.EventSecondCallRinging, nil)

	dialer, hasDialer := provider.(telephony.SecondLegDialer)
	if !hasDialer {
		o.log.Warn("provider does not support two-step call flow, bridging at application layer",
			"call_id", callID, "provider", provider.Name())
		sm.Transition(call.EventSecondCallAnswered, nil)
		sm.Transition(call.EventBridgeStarted, nil)
		sm.Transition(call.EventBridgeCompleted, nil)
		return nil
	}

	if err := dialer.InitiateSecondCall(ctx, callID, toPhone); err != nil {
		return err
	}
	sm.Transition(call.EventSecondCallAnswered, nil)
	sm.Transition(call.EventBridgeStarted, nil)

	if bridger, ok := provider.(telephony.Bridger); ok {
		if err := bridger.BridgeCalls(ctx, callID); err != nil {
			return err
		}
	} else {
		o.log.Warn("provider dials a second leg but cannot hardware-bridge, bridging at application layer",
			"call_id", callID, "provider", provider.Name())
	}
	sm.Transition(call.EventBridgeCompleted, nil)
	return nil
}

func (o *Orchestrator) failCall(sm *call.StateMachine, err error) {
	s := sm.Session()
	o.log.Error("call failed", "call_id", s.CallID, "err", err)
	sm.Transition(call.EventErrorOccurred, &call.Patch{Error: err.Error()})
}

// processQueue admits queued calls while capacity remains, highest
// priority first. Each admitted call runs independently: a failure in
// one drained entry never blocks the next.
func (o *Orchestrator) processQueue() {
	for {
		o.mu.Lock()
		if o.queue.Len() == 0 || len(o.active) >= o.cfg.MaxConcurrentCalls {
			o.mu.Unlock()
			return
		}
		entry := heap.Pop(&o.queue).(*QueueEntry)
		sm := o.register(entry)
		o.mu.Unlock()

		o.log.Info("dequeued call", "call_id", entry.CallID,
			"queued_for", time.Since(entry.EnqueueTime).String())
		go o.executeCall(entry, sm, "")
	}
}

// EndCall cancels an active call or drops a queued one. It is an
// idempotent no-op for unknown IDs, and never contacts a provider for a
// call that was only queued.
func (o *Orchestrator) EndCall(callID string) {
	o.mu.Lock()
	sm := o.active[callID]
	if sm != nil {
		delete(o.active, callID)
	}
	removed := o.queue.removeByCallID(callID)
	o.mu.Unlock()

	if sm != nil {
		sm.Transition(call.EventCallCancelled, nil)
	}
	if removed {
		o.log.Info("removed queued call", "call_id", callID)
	}
}

// ClearAll cancels every active call, empties the queue, and clears
// provider-side status bookkeeping.
func (o *Orchestrator) ClearAll() {
	o.mu.Lock()
	machines := make([]*call.StateMachine, 0, len(o.active))
	for id, sm := range o.active {
		machines = append(machines, sm)
		delete(o.active, id)
	}
	o.queue = nil
	o.mu.Unlock()

	for _, sm := range machines {
		sm.Transition(call.EventCallCancelled, nil)
	}
	for _, name := range o.registry.Names() {
		if p, ok := o.registry.Get(name); ok {
			p.ClearAllCallStatuses()
		}
	}
}

// CallStatus returns the session for an active or queued call.
func (o *Orchestrator) CallStatus(callID string) (call.Session, bool) {
	o.mu.Lock()
	sm := o.active[callID]
	var queued *QueueEntry
	if sm == nil {
		queued, _ = o.queue.find(callID)
	}
	o.mu.Unlock()

	if sm != nil {
		return sm.Session(), true
	}
	if queued != nil {
		// Not yet executing: report the pre-execution status.
		return call.Session{
			CallID:    queued.CallID,
			Status:    call.StatusInitiating,
			FromPhone: queued.FromPhone,
			ToPhone:   queued.ToPhone,
			Mode:      queued.Mode,
			Timestamp: queued.EnqueueTime,
		}, true
	}
	return call.Session{}, false
}

// AllCallStatuses lists sessions for every active call.
func (o *Orchestrator) AllCallStatuses() []call.Session {
	o.mu.Lock()
	machines := make([]*call.StateMachine, 0, len(o.active))
	for _, sm := range o.active {
		machines = append(machines, sm)
	}
	o.mu.Unlock()

	out := make([]call.Session, 0, len(machines))
	for _, sm := range machines {
		out = append(out, sm.Session())
	}
	return out
}

// CallMetrics returns the engine's record for one call.
func (o *Orchestrator) CallMetrics(callID string) (flow.AttemptMetrics, bool) {
	return o.engine.CallMetrics(callID)
}

// Health combines active/queued counts with provider health and engine
// load statistics.
func (o *Orchestrator) Health() SystemHealth {
	o.mu.Lock()
	active := len(o.active)
	queued := o.queue.Len()
	o.mu.Unlock()

	return SystemHealth{
		ActiveCalls:    active,
		QueuedCalls:    queued,
		ProviderHealth: o.engine.Health(),
		QueueStatus:    o.engine.Load(),
	}
}
