package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	contractx "github.com/tanpawarit/chative-travel/agent/contract"
)

const waitFor = 2 * time.Second

type agentFunc func(ctx context.Context, msg contractx.Message, mc contractx.MessageContext) (contractx.Message, error)

func (f agentFunc) HandleMessage(ctx context.Context, msg contractx.Message, mc contractx.MessageContext) (contractx.Message, error) {
	return f(ctx, msg, mc)
}

func single(f agentFunc) Factory {
	return func(contractx.AgentID) (contractx.Agent, error) { return f, nil }
}

func newRuntime(t *testing.T, register func(r *Runtime)) *Runtime {
	t.Helper()
	rt := New(Config{})
	register(rt)
	if err := rt.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestPublishDeliversToSessionInstance(t *testing.T) {
	t.Parallel()

	type seen struct {
		key string
		mc  contractx.MessageContext
		msg contractx.Message
	}
	got := make(chan seen, 4)

	rt := newRuntime(t, func(r *Runtime) {
		factory := func(id contractx.AgentID) (contractx.Agent, error) {
			return agentFunc(func(_ context.Context, msg contractx.Message, mc contractx.MessageContext) (contractx.Message, error) {
				got <- seen{key: id.Key, mc: mc, msg: msg}
				return nil, nil
			}), nil
		}
		if err := r.Register(contractx.AgentTypeRouter, factory, contractx.AgentTypeRouter); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	})

	want := contractx.EndUserMessage{Source: contractx.SourceUser, Content: "hello"}
	ctx := WithSender(context.Background(), contractx.AgentID{Type: contractx.AgentTypeUserProxy, Key: "s1"})
	if err := rt.Publish(ctx, want, contractx.TopicID{Type: contractx.AgentTypeRouter, Source: "s1"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case s := <-got:
		if s.key != "s1" || s.mc.SessionID() != "s1" {
			t.Fatalf("delivered to key %q session %q, want s1", s.key, s.mc.SessionID())
		}
		if s.mc.Sender != "user_proxy/s1" {
			t.Fatalf("Sender = %q, want user_proxy/s1", s.mc.Sender)
		}
		if s.mc.Direct {
			t.Fatal("Direct = true for a published message")
		}
		if s.msg != want {
			t.Fatalf("message = %#v, want %#v", s.msg, want)
		}
	case <-time.After(waitFor):
		t.Fatal("message was not delivered")
	}
}

func TestPublishFansOutToEverySubscribedType(t *testing.T) {
	t.Parallel()

	got := make(chan contractx.AgentType, 4)
	record := func(at contractx.AgentType) Factory {
		return single(func(context.Context, contractx.Message, contractx.MessageContext) (contractx.Message, error) {
			got <- at
			return nil, nil
		})
	}
	rt := newRuntime(t, func(r *Runtime) {
		_ = r.Register(contractx.AgentTypeFlight, record(contractx.AgentTypeFlight), contractx.AgentTypeFlight, contractx.AgentTypeDefault)
		_ = r.Register(contractx.AgentTypeDefault, record(contractx.AgentTypeDefault), contractx.AgentTypeDefault)
	})

	msg := contractx.EndUserMessage{Source: contractx.SourceUser, Content: "x"}
	if err := rt.Publish(context.Background(), msg, contractx.TopicID{Type: contractx.AgentTypeDefault, Source: "s1"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	seen := map[contractx.AgentType]bool{}
	for i := 0; i < 2; i++ {
		select {
		case at := <-got:
			seen[at] = true
		case <-time.After(waitFor):
			t.Fatalf("only %d of 2 subscribers saw the message", i)
		}
	}
	if !seen[contractx.AgentTypeFlight] || !seen[contractx.AgentTypeDefault] {
		t.Fatalf("subscribers = %v", seen)
	}
}

func TestInstanceHandlesOneMessageAtATimeInOrder(t *testing.T) {
	t.Parallel()

	const n = 50
	var (
		mu       sync.Mutex
		order    []string
		inFlight atomic.Int32
		maxSeen  atomic.Int32
	)
	done := make(chan struct{})

	rt := newRuntime(t, func(r *Runtime) {
		_ = r.Register(contractx.AgentTypeRouter, single(func(_ context.Context, msg contractx.Message, _ contractx.MessageContext) (contractx.Message, error) {
			cur := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				prev := maxSeen.Load()
				if cur <= prev || maxSeen.CompareAndSwap(prev, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)

			mu.Lock()
			order = append(order, msg.(contractx.EndUserMessage).Content)
			if len(order) == n {
				close(done)
			}
			mu.Unlock()
			return nil, nil
		}), contractx.AgentTypeRouter)
	})

	topic := contractx.TopicID{Type: contractx.AgentTypeRouter, Source: "s1"}
	for i := 0; i < n; i++ {
		if err := rt.Publish(context.Background(), contractx.EndUserMessage{Content: fmt.Sprintf("%d", i)}, topic); err != nil {
			t.Fatalf("Publish(%d) error = %v", i, err)
		}
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("not every message was handled")
	}
	if maxSeen.Load() != 1 {
		t.Fatalf("max concurrent handlers = %d, want 1", maxSeen.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	for i, c := range order {
		if c != fmt.Sprintf("%d", i) {
			t.Fatalf("order[%d] = %s, want %d", i, c, i)
		}
	}
}

func TestInstancesOfDifferentSessionsRunConcurrently(t *testing.T) {
	t.Parallel()

	entered := make(chan string, 2)
	release := make(chan struct{})

	rt := newRuntime(t, func(r *Runtime) {
		_ = r.Register(contractx.AgentTypeHotel, single(func(_ context.Context, _ contractx.Message, mc contractx.MessageContext) (contractx.Message, error) {
			entered <- mc.SessionID()
			<-release
			return contractx.SpecialistResult{AgentType: contractx.AgentTypeHotel}, nil
		}))
	})

	var wg sync.WaitGroup
	for _, s := range []string{"a", "b"} {
		wg.Add(1)
		go func(s string) {
			defer wg.Done()
			_, _ = rt.Send(context.Background(), contractx.DispatchRequest{Content: "x"}, contractx.AgentID{Type: contractx.AgentTypeHotel, Key: s})
		}(s)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-time.After(waitFor):
			close(release)
			t.Fatal("handlers of two sessions did not overlap")
		}
	}
	close(release)
	wg.Wait()
}

func TestSendReturnsReply(t *testing.T) {
	t.Parallel()

	rt := newRuntime(t, func(r *Runtime) {
		_ = r.Register(contractx.AgentTypeFlight, single(func(_ context.Context, msg contractx.Message, mc contractx.MessageContext) (contractx.Message, error) {
			if !mc.Direct {
				t.Errorf("Direct = false for a sent message")
			}
			req := msg.(contractx.DispatchRequest)
			return contractx.SpecialistResult{AgentType: contractx.AgentTypeFlight, Content: "booked " + req.Content}, nil
		}))
	})

	reply, err := rt.Send(context.Background(), contractx.DispatchRequest{Content: "Paris"}, contractx.AgentID{Type: contractx.AgentTypeFlight, Key: "s1"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	res, ok := reply.(contractx.SpecialistResult)
	if !ok || res.Content != "booked Paris" {
		t.Fatalf("Send() reply = %#v", reply)
	}
}

func TestSendUnknownAgent(t *testing.T) {
	t.Parallel()

	rt := newRuntime(t, func(*Runtime) {})
	_, err := rt.Send(context.Background(), contractx.DispatchRequest{}, contractx.AgentID{Type: contractx.AgentTypeCarRental, Key: "s1"})
	if !errors.Is(err, contractx.ErrAgentNotFound) {
		t.Fatalf("Send() error = %v, want ErrAgentNotFound", err)
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	rt := newRuntime(t, func(r *Runtime) {
		_ = r.Register(contractx.AgentTypeDefault, single(func(context.Context, contractx.Message, contractx.MessageContext) (contractx.Message, error) {
			if calls.Add(1) == 1 {
				panic("boom")
			}
			return contractx.SpecialistResult{Content: "ok"}, nil
		}))
	})

	id := contractx.AgentID{Type: contractx.AgentTypeDefault, Key: "s1"}
	if _, err := rt.Send(context.Background(), contractx.DispatchRequest{}, id); !errors.Is(err, ErrHandlerPanic) {
		t.Fatalf("Send() error = %v, want ErrHandlerPanic", err)
	}
	reply, err := rt.Send(context.Background(), contractx.DispatchRequest{}, id)
	if err != nil {
		t.Fatalf("Send() after panic error = %v", err)
	}
	if reply.(contractx.SpecialistResult).Content != "ok" {
		t.Fatalf("Send() after panic reply = %#v", reply)
	}
}

func TestSendHonoursCallerDeadline(t *testing.T) {
	t.Parallel()

	rt := newRuntime(t, func(r *Runtime) {
		_ = r.Register(contractx.AgentTypeFlight, single(func(ctx context.Context, _ contractx.Message, _ contractx.MessageContext) (contractx.Message, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := rt.Send(ctx, contractx.DispatchRequest{}, contractx.AgentID{Type: contractx.AgentTypeFlight, Key: "s1"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send() error = %v, want deadline exceeded", err)
	}
}

func TestCloseSessionStillDeliversQueuedPublishes(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	type outcome struct {
		content   string
		cancelled bool
	}
	got := make(chan outcome, 2)

	rt := newRuntime(t, func(r *Runtime) {
		_ = r.Register(contractx.AgentTypeRouter, single(func(ctx context.Context, msg contractx.Message, _ contractx.MessageContext) (contractx.Message, error) {
			content := msg.(contractx.EndUserMessage).Content
			if content == "first" {
				close(started)
				<-release
			}
			got <- outcome{content: content, cancelled: ctx.Err() != nil}
			return nil, nil
		}), contractx.AgentTypeRouter)
	})

	topic := contractx.TopicID{Type: contractx.AgentTypeRouter, Source: "s1"}
	_ = rt.Publish(context.Background(), contractx.EndUserMessage{Content: "first"}, topic)
	<-started
	_ = rt.Publish(context.Background(), contractx.EndUserMessage{Content: "second"}, topic)

	rt.CloseSession("s1")
	rt.CloseSession("s1")
	close(release)

	for _, want := range []string{"first", "second"} {
		select {
		case o := <-got:
			if o.content != want {
				t.Fatalf("handled %q, want %q", o.content, want)
			}
			if want == "second" && !o.cancelled {
				t.Fatal("queued message after CloseSession ran with a live context")
			}
		case <-time.After(waitFor):
			t.Fatalf("%q was not handled after CloseSession", want)
		}
	}
}

func TestSessionEndedAfterCloseLeavesNothingBehind(t *testing.T) {
	t.Parallel()

	routed := make(chan contractx.HandoffMessage, 1)
	rt := New(Config{IdleTimeout: 20 * time.Millisecond})
	_ = rt.Register(contractx.AgentTypeUserProxy, single(func(ctx context.Context, msg contractx.Message, mc contractx.MessageContext) (contractx.Message, error) {
		topic := contractx.TopicID{Type: contractx.AgentTypeRouter, Source: mc.Topic.Source}
		return nil, rt.Publish(context.WithoutCancel(ctx), msg, topic)
	}), contractx.AgentTypeUserProxy)
	_ = rt.Register(contractx.AgentTypeRouter, single(func(_ context.Context, msg contractx.Message, _ contractx.MessageContext) (contractx.Message, error) {
		routed <- msg.(contractx.HandoffMessage)
		return nil, nil
	}), contractx.AgentTypeRouter)
	if err := rt.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	end := contractx.HandoffMessage{Source: "user_proxy", Complete: true}
	if err := rt.Publish(context.Background(), end, contractx.TopicID{Type: contractx.AgentTypeUserProxy, Source: "s1"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	rt.CloseSession("s1")

	select {
	case got := <-routed:
		if !got.Complete {
			t.Fatalf("routed %#v", got)
		}
	case <-time.After(waitFor):
		t.Fatal("session end was not forwarded after CloseSession")
	}

	deadline := time.Now().Add(waitFor)
	for {
		rt.mu.Lock()
		sessions, instances := len(rt.sessions), len(rt.instances)
		rt.mu.Unlock()
		if sessions == 0 && instances == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("sessions = %d, instances = %d after idle retirement", sessions, instances)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRegisterAfterStartFails(t *testing.T) {
	t.Parallel()

	rt := newRuntime(t, func(*Runtime) {})
	err := rt.Register(contractx.AgentTypeRouter, single(nil), contractx.AgentTypeRouter)
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Register() error = %v, want ErrValidation", err)
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	t.Parallel()

	rt := New(Config{})
	if err := rt.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	err := rt.Publish(context.Background(), contractx.EndUserMessage{}, contractx.TopicID{Type: contractx.AgentTypeRouter, Source: "s1"})
	if !errors.Is(err, contractx.ErrBusClosed) {
		t.Fatalf("Publish() error = %v, want ErrBusClosed", err)
	}
}
