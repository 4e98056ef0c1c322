package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/chative-travel/agent/contract"
	logx "github.com/tanpawarit/chative-travel/pkg/logger"
)

var ErrHandlerPanic = errors.New("agent handler panicked")

const defaultIdleTimeout = 5 * time.Minute

type Config struct {
	// IdleTimeout retires an agent instance whose mailbox stayed empty this long.
	IdleTimeout time.Duration `split_words:"true" default:"5m"`
}

// Factory builds the agent instance for one (type, session) pair.
type Factory func(id contractx.AgentID) (contractx.Agent, error)

// Observer receives bus events. Implemented by the metrics package.
type Observer interface {
	MessagePublished(kind contractx.Kind, topicType contractx.AgentType)
	MessageDelivered(agentType contractx.AgentType, kind contractx.Kind, direct bool)
	HandlerFinished(agentType contractx.AgentType, kind contractx.Kind, took time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) MessagePublished(contractx.Kind, contractx.AgentType)                      {}
func (noopObserver) MessageDelivered(contractx.AgentType, contractx.Kind, bool)                 {}
func (noopObserver) HandlerFinished(contractx.AgentType, contractx.Kind, time.Duration, error) {}

type Option func(*Runtime)

func WithObserver(o Observer) Option {
	return func(r *Runtime) {
		if o != nil {
			r.observer = o
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

type registration struct {
	factory Factory
	topics  []contractx.AgentType
}

// Runtime is the in-process message bus. Agent types are registered before
// Start; afterwards the subscription table is fixed.
//
// Publish goes through a watermill gochannel that blocks until every
// subscriber acknowledged, and subscribers acknowledge once the message sits
// in the target instance's mailbox. A sender's publishes therefore land in
// each mailbox in the order they were made.
type Runtime struct {
	pubsub   *gochannel.GoChannel
	logger   zerolog.Logger
	observer Observer

	idleTimeout time.Duration
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	started   bool
	closed    bool
	registry  map[contractx.AgentType]registration
	sessions  map[string]*session
	instances map[contractx.AgentID]*instance
}

var _ contractx.Bus = (*Runtime)(nil)

func New(cfg Config, opts ...Option) *Runtime {
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	r := &Runtime{
		logger:      logx.Component("bus"),
		observer:    noopObserver{},
		idleTimeout: idle,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		registry:    make(map[contractx.AgentType]registration),
		sessions:    make(map[string]*session),
		instances:   make(map[contractx.AgentID]*instance),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.pubsub = gochannel.NewGoChannel(
		gochannel.Config{BlockPublishUntilSubscriberAck: true},
		NewWatermillLogger(r.logger),
	)
	return r
}

// Register adds an agent type and the topic types it listens on. An agent
// type registered with no topics is reachable through Send only.
func (r *Runtime) Register(agentType contractx.AgentType, factory Factory, topicTypes ...contractx.AgentType) error {
	if agentType == "" {
		return fmt.Errorf("%w: agent type is required", contractx.ErrValidation)
	}
	if factory == nil {
		return fmt.Errorf("%w: factory for %s is required", contractx.ErrValidation, agentType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started || r.closed {
		return fmt.Errorf("%w: register %s after start", contractx.ErrValidation, agentType)
	}
	if _, dup := r.registry[agentType]; dup {
		return fmt.Errorf("%w: agent type %s registered twice", contractx.ErrValidation, agentType)
	}
	r.registry[agentType] = registration{
		factory: factory,
		topics:  append([]contractx.AgentType(nil), topicTypes...),
	}
	return nil
}

func (r *Runtime) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return contractx.ErrBusClosed
	}
	if r.started {
		return nil
	}

	for agentType, reg := range r.registry {
		for _, topicType := range reg.topics {
			ch, err := r.pubsub.Subscribe(r.ctx, topicName(topicType))
			if err != nil {
				return fmt.Errorf("subscribe %s to %s: %w", agentType, topicType, err)
			}
			r.wg.Add(1)
			go r.pump(agentType, ch)
		}
	}
	r.started = true
	r.logger.Info().Int("agent_types", len(r.registry)).Msg("message bus started")
	return nil
}

// Publish delivers msg to every agent type subscribed to topic.Type. The
// receiving instance is the one keyed by topic.Source.
func (r *Runtime) Publish(ctx context.Context, msg contractx.Message, topic contractx.TopicID) error {
	if msg == nil {
		return fmt.Errorf("%w: message is required", contractx.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.checkRunning(); err != nil {
		return err
	}

	wmsg, err := encodeEnvelope(msg, topic, SenderFrom(ctx))
	if err != nil {
		return err
	}
	if err := r.pubsub.Publish(topicName(topic.Type), wmsg); err != nil {
		return fmt.Errorf("%w: publish %s to %s: %v", contractx.ErrBusClosed, msg.Kind(), topic.Type, err)
	}
	r.observer.MessagePublished(msg.Kind(), topic.Type)
	return nil
}

// Send delivers msg to one instance and waits for its reply. The handler runs
// with ctx, cancelled early if the session closes.
func (r *Runtime) Send(ctx context.Context, msg contractx.Message, to contractx.AgentID) (contractx.Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: message is required", contractx.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.checkRunning(); err != nil {
		return nil, err
	}

	reply := make(chan sendResult, 1)
	d := delivery{
		msg: msg,
		mc: contractx.MessageContext{
			Topic:  contractx.TopicID{Type: to.Type, Source: to.Key},
			Sender: SenderFrom(ctx),
			Direct: true,
		},
		ctx:   ctx,
		reply: reply,
	}
	if err := r.enqueue(to, d); err != nil {
		return nil, err
	}

	select {
	case res := <-reply:
		return res.msg, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CloseSession cancels the session context. Messages already queued for the
// session's instances are still handled with the cancelled context; queued
// sends fail with the context error.
func (r *Runtime) CloseSession(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if ok {
		s.cancel()
		r.logger.Debug().Str("session_id", sessionID).Msg("session closed")
	}
}

// Close stops every subscription and instance worker. Pending sends fail with ErrBusClosed.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	err := r.pubsub.Close()
	r.wg.Wait()
	return err
}

func (r *Runtime) checkRunning() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return contractx.ErrBusClosed
	}
	if !r.started {
		return fmt.Errorf("%w: bus not started", contractx.ErrBusClosed)
	}
	return nil
}

func (r *Runtime) pump(agentType contractx.AgentType, ch <-chan *message.Message) {
	defer r.wg.Done()

	for wmsg := range ch {
		msg, mc, err := decodeEnvelope(wmsg)
		if err != nil {
			r.logger.Error().Err(err).Str("agent_type", agentType.String()).Msg("dropping undecodable message")
			wmsg.Ack()
			continue
		}
		id := contractx.AgentID{Type: agentType, Key: mc.Topic.Source}
		if err := r.enqueue(id, delivery{msg: msg, mc: mc}); err != nil {
			r.logger.Error().Err(err).Str("agent", id.String()).Str("kind", string(msg.Kind())).Msg("delivery failed")
		}
		wmsg.Ack()
	}
}

func (r *Runtime) enqueue(id contractx.AgentID, d delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return contractx.ErrBusClosed
	}
	inst, err := r.instanceLocked(id)
	if err != nil {
		return err
	}
	d.enqueuedAt = r.now()
	inst.box.push(d)
	r.observer.MessageDelivered(id.Type, d.msg.Kind(), d.direct())
	return nil
}

func (r *Runtime) instanceLocked(id contractx.AgentID) (*instance, error) {
	if inst, ok := r.instances[id]; ok {
		return inst, nil
	}
	reg, ok := r.registry[id.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contractx.ErrAgentNotFound, id.Type)
	}
	agent, err := reg.factory(id)
	if err != nil {
		return nil, fmt.Errorf("create agent %s: %w", id, err)
	}

	s, ok := r.sessions[id.Key]
	if !ok {
		ctx, cancel := context.WithCancel(r.ctx)
		s = &session{id: id.Key, ctx: ctx, cancel: cancel}
		r.sessions[id.Key] = s
	}

	inst := &instance{id: id, agent: agent, session: s, box: newMailbox()}
	s.live++
	r.instances[id] = inst
	r.wg.Add(1)
	go r.run(inst)
	return inst, nil
}

// retire removes an idle instance. It fails if something was queued meanwhile.
// The session goes with its last instance.
func (r *Runtime) retire(inst *instance) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if inst.box.len() > 0 {
		return false
	}
	if r.instances[inst.id] != inst {
		return true
	}
	delete(r.instances, inst.id)

	s := inst.session
	if s.live--; s.live == 0 {
		if r.sessions[s.id] == s {
			delete(r.sessions, s.id)
		}
		s.cancel()
	}
	return true
}

func (r *Runtime) run(inst *instance) {
	defer r.wg.Done()

	idle := time.NewTimer(r.idleTimeout)
	defer idle.Stop()

	for {
		for {
			d, ok := inst.box.pop()
			if !ok {
				break
			}
			if r.ctx.Err() != nil {
				r.abandon(d)
				continue
			}
			r.dispatch(inst, d)
		}

		if r.ctx.Err() != nil {
			r.retire(inst)
			r.drain(inst)
			return
		}
		if inst.session.ctx.Err() != nil && r.retire(inst) {
			return
		}

		idle.Reset(r.idleTimeout)
		select {
		case <-inst.box.wake:
		case <-inst.session.ctx.Done():
		case <-r.ctx.Done():
		case <-idle.C:
			if r.retire(inst) {
				r.logger.Debug().Str("agent", inst.id.String()).Msg("idle agent retired")
				return
			}
		}
	}
}

func (r *Runtime) drain(inst *instance) {
	for {
		d, ok := inst.box.pop()
		if !ok {
			return
		}
		r.abandon(d)
	}
}

func (r *Runtime) abandon(d delivery) {
	if d.direct() {
		d.reply <- sendResult{err: contractx.ErrBusClosed}
	}
}

func (r *Runtime) dispatch(inst *instance, d delivery) {
	logger := r.logger.With().
		Str("agent", inst.id.String()).
		Str("kind", string(d.msg.Kind())).
		Bool("direct", d.direct()).
		Logger()

	ctx := inst.session.ctx
	if d.direct() {
		if err := d.ctx.Err(); err != nil {
			d.reply <- sendResult{err: err}
			return
		}
		if err := inst.session.ctx.Err(); err != nil {
			d.reply <- sendResult{err: err}
			return
		}
		sendCtx, cancel := context.WithCancel(d.ctx)
		stop := context.AfterFunc(inst.session.ctx, cancel)
		defer stop()
		defer cancel()
		ctx = sendCtx
	}
	ctx = WithSender(ctx, inst.id)

	start := r.now()
	reply, err := r.invoke(ctx, inst, d)
	took := r.now().Sub(start)
	r.observer.HandlerFinished(inst.id.Type, d.msg.Kind(), took, err)

	if err != nil {
		logger.Error().Err(err).Dur("took", took).Msg("agent handler failed")
	} else {
		logger.Debug().Dur("took", took).Dur("queued", start.Sub(d.enqueuedAt)).Msg("agent handler done")
	}

	if d.direct() {
		d.reply <- sendResult{msg: reply, err: err}
	}
}

func (r *Runtime) invoke(ctx context.Context, inst *instance, d delivery) (reply contractx.Message, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()
	return inst.agent.HandleMessage(ctx, d.msg, d.mc)
}

type senderKey struct{}

// WithSender tags ctx with the agent on whose behalf messages are sent.
func WithSender(ctx context.Context, id contractx.AgentID) context.Context {
	return context.WithValue(ctx, senderKey{}, id.String())
}

func SenderFrom(ctx context.Context) string {
	if s, ok := ctx.Value(senderKey{}).(string); ok {
		return s
	}
	return "external"
}
