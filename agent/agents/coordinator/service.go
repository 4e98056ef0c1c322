package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/chative-travel/agent/contract"
	logx "github.com/tanpawarit/chative-travel/pkg/logger"
	"golang.org/x/sync/semaphore"
)

const (
	defaultSubtaskTimeout = 30 * time.Second
	planHeader            = "Here is your comprehensive travel plan:\n"
)

type Config struct {
	// MaxConcurrentSubtasks caps in-flight sends per plan. Zero means no cap.
	MaxConcurrentSubtasks int           `split_words:"true" default:"0"`
	SubtaskTimeout        time.Duration `split_words:"true" default:"30s"`
}

type Observer interface {
	SubtaskFinished(agentType contractx.AgentType, err error)
	FanoutFinished(took time.Duration)
}

type noopObserver struct{}

func (noopObserver) SubtaskFinished(contractx.AgentType, error) {}
func (noopObserver) FanoutFinished(time.Duration)               {}

type Option func(*Coordinator)

func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		if o != nil {
			c.observer = o
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// Coordinator fans a multi-agent plan out to its specialists and publishes
// one composed answer.
type Coordinator struct {
	bus      contractx.Bus
	observer Observer
	logger   zerolog.Logger

	maxConcurrent  int
	subtaskTimeout time.Duration

	now func() time.Time
}

var _ contractx.Agent = (*Coordinator)(nil)

func New(bus contractx.Bus, cfg Config, opts ...Option) (*Coordinator, error) {
	if bus == nil {
		return nil, errors.New("message bus is required")
	}
	timeout := cfg.SubtaskTimeout
	if timeout <= 0 {
		timeout = defaultSubtaskTimeout
	}

	c := &Coordinator{
		bus:            bus,
		observer:       noopObserver{},
		logger:         logx.Component("coordinator"),
		maxConcurrent:  cfg.MaxConcurrentSubtasks,
		subtaskTimeout: timeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Coordinator) HandleMessage(ctx context.Context, msg contractx.Message, mc contractx.MessageContext) (contractx.Message, error) {
	plan, ok := msg.(contractx.Plan)
	if !ok {
		return nil, fmt.Errorf("%w: coordinator got %s", contractx.ErrUnhandledMessage, msg.Kind())
	}
	return nil, c.coordinate(ctx, mc.SessionID(), plan)
}

type outcome struct {
	result contractx.SpecialistResult
	err    error
}

func (c *Coordinator) coordinate(ctx context.Context, sessionID string, plan contractx.Plan) error {
	if len(plan.Subtasks) == 0 {
		return nil
	}
	start := c.now()
	logger := c.logger.With().Str("session_id", sessionID).Int("subtasks", len(plan.Subtasks)).Logger()
	logger.Info().Str("main_task", plan.MainTask).Msg("fanning out plan")

	outcomes := c.fanOut(ctx, sessionID, plan)
	compiled := compile(plan, outcomes)

	took := c.now().Sub(start)
	c.observer.FanoutFinished(took)
	logger.Info().Int("failures", len(compiled.Failures)).Dur("took", took).Msg("plan compiled")

	return c.bus.Publish(ctx, contractx.SpecialistResult{
		Source:    string(contractx.AgentTypeCoordinator),
		AgentType: contractx.AgentTypeCoordinator,
		Content:   compiled.Content,
		Message:   planHeader + compiled.Content,
		Data:      compiled,
	}, contractx.TopicID{Type: contractx.AgentTypeUserProxy, Source: sessionID})
}

// fanOut issues every subtask concurrently and waits for all of them. The
// outcome slice is indexed like plan.Subtasks.
func (c *Coordinator) fanOut(ctx context.Context, sessionID string, plan contractx.Plan) []outcome {
	n := len(plan.Subtasks)
	limit := c.maxConcurrent
	if limit <= 0 || limit > n {
		limit = n
	}
	sem := semaphore.NewWeighted(int64(limit))

	outcomes := make([]outcome, n)
	var wg sync.WaitGroup
	for i, st := range plan.Subtasks {
		wg.Add(1)
		go func(i int, st contractx.SubTask) {
			defer wg.Done()
			res, err := c.dispatch(ctx, sem, sessionID, plan.MainTask, st)
			c.observer.SubtaskFinished(st.AssignedAgent, err)
			if err != nil {
				c.logger.Warn().Err(err).Str("session_id", sessionID).Str("agent_type", st.AssignedAgent.String()).Msg("subtask failed")
			}
			outcomes[i] = outcome{result: res, err: err}
		}(i, st)
	}
	wg.Wait()
	return outcomes
}

func (c *Coordinator) dispatch(
	ctx context.Context,
	sem *semaphore.Weighted,
	sessionID string,
	mainTask string,
	st contractx.SubTask,
) (contractx.SpecialistResult, error) {
	if err := sem.Acquire(ctx, 1); err != nil {
		return contractx.SpecialistResult{}, fmt.Errorf("acquire dispatch slot: %w", err)
	}
	defer sem.Release(1)

	sendCtx, cancel := context.WithTimeout(ctx, c.subtaskTimeout)
	defer cancel()

	reply, err := c.bus.Send(sendCtx, contractx.DispatchRequest{
		Source:       string(contractx.AgentTypeCoordinator),
		Content:      st.TaskDetails,
		OriginalTask: mainTask,
	}, contractx.AgentID{Type: st.AssignedAgent, Key: sessionID})
	if err != nil {
		return contractx.SpecialistResult{}, err
	}

	res, ok := reply.(contractx.SpecialistResult)
	if !ok {
		return contractx.SpecialistResult{}, fmt.Errorf("%w: %s replied with %T", contractx.ErrSchemaViolation, st.AssignedAgent, reply)
	}
	if res.Failed() {
		return res, errors.New(res.Error)
	}
	return res, nil
}

// compile joins the outcomes in plan order. A failed subtask contributes a
// marker line instead of content.
func compile(plan contractx.Plan, outcomes []outcome) contractx.CompiledPlan {
	var (
		lines    = make([]string, 0, len(outcomes))
		parts    = make([]contractx.SpecialistResult, 0, len(outcomes))
		failures []contractx.SubtaskFailure
	)
	for i, o := range outcomes {
		st := plan.Subtasks[i]
		if o.err != nil {
			reason := failureReason(o.err)
			lines = append(lines, fmt.Sprintf("[%s] unavailable: %s", st.AssignedAgent, reason))
			failures = append(failures, contractx.SubtaskFailure{
				Index:         i,
				AssignedAgent: st.AssignedAgent,
				TaskDetails:   st.TaskDetails,
				Reason:        reason,
			})
			continue
		}
		lines = append(lines, o.result.Content)
		parts = append(parts, o.result)
	}
	return contractx.CompiledPlan{
		Content:  strings.Join(lines, "\n"),
		Parts:    parts,
		Failures: failures,
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, contractx.ErrAgentNotFound):
		return "no such agent"
	default:
		return err.Error()
	}
}
