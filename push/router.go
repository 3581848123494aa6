package push

import (
	"context"
	"net/http"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-wallet/core"
)

// Sender identifies the server-side channel a push message originated from.
type Sender string

const (
	SenderProvisioning Sender = "provisioning"
	SenderGateway      Sender = "gateway"
	SenderHistory      Sender = "history"
	SenderUnknown      Sender = "unknown"
)

// Payload keys recognized by the router. Unrecognized keys are forwarded
// opaquely to the provisioning processor.
const (
	KeySender       = "sender"
	KeyAction       = "action"
	KeyTargetCardID = "digitalCardID"
)

// ActionReplenishKeys is the gateway action that requests a forced key
// replenishment for the targeted card.
const ActionReplenishKeys = "keyReplenishmentNeeded"

// Message is the parsed view of one push payload. It is consumed once
// routed; the router never stores delivered messages.
type Message struct {
	Sender       Sender
	Action       string
	TargetCardID string
	Payload      map[string]string
}

// ParseMessage extracts the routing envelope from a flat payload. The full
// payload travels with the message untouched.
func ParseMessage(payload map[string]string) Message {
	msg := Message{Payload: payload}
	switch Sender(strings.ToLower(strings.TrimSpace(payload[KeySender]))) {
	case SenderProvisioning:
		msg.Sender = SenderProvisioning
	case SenderGateway:
		msg.Sender = SenderGateway
	case SenderHistory:
		msg.Sender = SenderHistory
	default:
		msg.Sender = SenderUnknown
	}
	msg.Action = strings.TrimSpace(payload[KeyAction])
	msg.TargetCardID = strings.TrimSpace(payload[KeyTargetCardID])
	return msg
}

// CardMessage is one per-card server message code reported by the
// provisioning processor.
type CardMessage struct {
	CardID string
	Code   string
}

// BatchObserver receives the accumulated card messages of one completed
// processing batch.
type BatchObserver func(batch []CardMessage)

// Router defers, classifies, and dispatches push messages. Delivery happens
// only while bring-up reports Successful; earlier arrivals queue in FIFO
// order and flush exactly once.
type Router struct {
	engine   core.Engine
	registry *core.CardRegistry
	bringup  *core.BringupCoordinator
	logger   core.Logger
	limit    int

	mu      sync.Mutex
	queue   []map[string]string
	flushed bool

	batchMu   sync.Mutex
	batch     []CardMessage
	observers map[int]BatchObserver
	nextObsID int

	cancelBringup func()
}

func NewRouter(
	engine core.Engine,
	registry *core.CardRegistry,
	bringup *core.BringupCoordinator,
	cfg core.PushConfig,
	logger core.Logger,
) (*Router, error) {
	if engine == nil {
		return nil, pushInternal("push: router requires an engine", nil)
	}
	if registry == nil {
		return nil, pushInternal("push: router requires the card registry", nil)
	}
	if bringup == nil {
		return nil, pushInternal("push: router requires the bring-up coordinator", nil)
	}
	if cfg.QueueLimit < 1 {
		cfg.QueueLimit = core.DefaultConfig().Push.QueueLimit
	}
	router := &Router{
		engine:    engine,
		registry:  registry,
		bringup:   bringup,
		logger:    glog.Ensure(logger),
		limit:     cfg.QueueLimit,
		observers: map[int]BatchObserver{},
	}
	router.cancelBringup = bringup.Observe(func(event core.BringupEvent) {
		if event.State == core.InitStateSuccessful {
			router.flushDeferred(context.Background())
		}
	})
	return router, nil
}

// Close detaches the router from the bring-up stream. Queued messages are
// dropped; the router is not usable afterwards.
func (r *Router) Close() {
	if r == nil {
		return
	}
	if r.cancelBringup != nil {
		r.cancelBringup()
	}
	r.mu.Lock()
	r.queue = nil
	r.mu.Unlock()
}

// ObserveBatches registers an observer for completed provisioning batches and
// returns its cancel function.
func (r *Router) ObserveBatches(observer BatchObserver) func() {
	if r == nil || observer == nil {
		return func() {}
	}
	r.batchMu.Lock()
	id := r.nextObsID
	r.nextObsID++
	r.observers[id] = observer
	r.batchMu.Unlock()
	return func() {
		r.batchMu.Lock()
		delete(r.observers, id)
		r.batchMu.Unlock()
	}
}

// Route accepts one raw push payload. Before bring-up succeeds the payload
// is queued; afterwards it is classified and dispatched inline.
func (r *Router) Route(ctx context.Context, payload map[string]string) error {
	if r == nil {
		return pushInternal("push: router is nil", nil)
	}
	if len(payload) == 0 {
		return pushBadInput("push: empty payload", nil)
	}

	copied := make(map[string]string, len(payload))
	for key, value := range payload {
		copied[key] = value
	}

	if r.deferPayload(copied) {
		return nil
	}
	return r.deliver(ctx, copied)
}

// deferPayload queues the payload when bring-up has not succeeded yet. The
// queue is bounded; on overflow the oldest entry is dropped so the most
// recent server state wins.
func (r *Router) deferPayload(payload map[string]string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bringup.State() == core.InitStateSuccessful {
		return false
	}
	if len(r.queue) >= r.limit {
		dropped := r.queue[0]
		r.queue = r.queue[1:]
		r.logger.Warn("push: deferred queue full, dropping oldest message",
			"sender", dropped[KeySender],
			"action", dropped[KeyAction],
		)
	}
	r.queue = append(r.queue, payload)
	return true
}

// flushDeferred delivers all queued messages in arrival order, exactly once.
func (r *Router) flushDeferred(ctx context.Context) {
	r.mu.Lock()
	if r.flushed && len(r.queue) == 0 {
		r.mu.Unlock()
		return
	}
	pending := r.queue
	r.queue = nil
	r.flushed = true
	r.mu.Unlock()

	for _, payload := range pending {
		if err := r.deliver(ctx, payload); err != nil {
			r.logger.Error("push: deferred delivery failed",
				"sender", payload[KeySender],
				"error", err,
			)
		}
	}
}

func (r *Router) deliver(ctx context.Context, payload map[string]string) error {
	msg := ParseMessage(payload)
	switch msg.Sender {
	case SenderProvisioning:
		return r.processProvisioning(ctx, msg)
	case SenderGateway:
		return r.processGateway(ctx, msg)
	case SenderHistory:
		r.logger.Info("push: history message ignored", "action", msg.Action)
		return nil
	default:
		r.logger.Info("push: unknown sender ignored",
			"sender", payload[KeySender],
			"action", msg.Action,
		)
		return nil
	}
}

func (r *Router) processProvisioning(ctx context.Context, msg Message) error {
	if err := r.engine.ProcessServerMessage(ctx, msg.Payload, routerSink{router: r}); err != nil {
		return pushWrapError(
			err,
			categoryForEngineError(err),
			"push: provisioning message processing failed",
			http.StatusUnprocessableEntity,
			core.WalletErrorEngineRejected,
			map[string]any{"action": msg.Action},
		)
	}
	return nil
}

func (r *Router) processGateway(ctx context.Context, msg Message) error {
	if msg.Action != ActionReplenishKeys {
		r.logger.Info("push: gateway action ignored", "action", msg.Action)
		return nil
	}
	if msg.TargetCardID == "" {
		return pushBadInput("push: replenishment message without target card", map[string]any{
			"action": msg.Action,
		})
	}
	if err := r.registry.CheckReplenishment(ctx, msg.TargetCardID, true); err != nil {
		return pushWrapError(
			err,
			categoryForEngineError(err),
			"push: forced replenishment failed",
			http.StatusUnprocessableEntity,
			core.WalletErrorEngineRejected,
			map[string]any{"card_id": msg.TargetCardID},
		)
	}
	return nil
}

// appendCardMessage runs from the provisioning processor's callbacks.
func (r *Router) appendCardMessage(cardID string, code string) {
	r.batchMu.Lock()
	r.batch = append(r.batch, CardMessage{CardID: cardID, Code: code})
	r.batchMu.Unlock()
}

// completeBatch emits the accumulated batch once and clears it. A cleared
// accumulator never re-emits stale entries.
func (r *Router) completeBatch() {
	r.batchMu.Lock()
	batch := r.batch
	r.batch = nil
	observers := make([]BatchObserver, 0, len(r.observers))
	for _, observer := range r.observers {
		observers = append(observers, observer)
	}
	r.batchMu.Unlock()

	if len(batch) == 0 {
		return
	}
	for _, observer := range observers {
		observer(append([]CardMessage(nil), batch...))
	}
}

// routerSink adapts the router's batch accumulator to the engine's server
// message sink contract.
type routerSink struct {
	router *Router
}

func (s routerSink) OnCardMessage(cardID string, code string) {
	s.router.appendCardMessage(cardID, code)
}

func (s routerSink) OnComplete() {
	s.router.completeBatch()
}

func categoryForEngineError(err error) goerrors.Category {
	if core.EngineErrorCodeOf(err) != core.EngineErrUnknown {
		return goerrors.CategoryOperation
	}
	return goerrors.CategoryInternal
}
