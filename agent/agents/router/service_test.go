package router

import (
	"context"
	"errors"
	"sync"
	"testing"

	contractx "github.com/tanpawarit/chative-travel/agent/contract"
	statex "github.com/tanpawarit/chative-travel/agent/state"
)

type published struct {
	msg   contractx.Message
	topic contractx.TopicID
}

type fakeBus struct {
	mu   sync.Mutex
	sent []published
}

func (b *fakeBus) Publish(_ context.Context, msg contractx.Message, topic contractx.TopicID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, published{msg: msg, topic: topic})
	return nil
}

func (b *fakeBus) Send(context.Context, contractx.Message, contractx.AgentID) (contractx.Message, error) {
	return nil, errors.New("router never sends")
}

func (b *fakeBus) all() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.sent...)
}

type fakeClassifier struct {
	plan  contractx.Plan
	err   error
	texts []string
}

func (c *fakeClassifier) Classify(_ context.Context, text string, _ []contractx.EndUserMessage) (contractx.Plan, error) {
	c.texts = append(c.texts, text)
	return c.plan, c.err
}

type decisions []string

func (d *decisions) RouteDecided(decision string) { *d = append(*d, decision) }

func newRouter(t *testing.T, classifier contractx.Classifier) (*Router, *fakeBus, *statex.MemoryStore, *decisions) {
	t.Helper()
	bus := &fakeBus{}
	store := statex.NewMemoryStore(statex.Config{})
	obs := &decisions{}
	r, err := New(bus, store, classifier, Config{MaxHandoffHops: 2}, WithObserver(obs))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r, bus, store, obs
}

func mcFor(session string) contractx.MessageContext {
	return contractx.MessageContext{Topic: contractx.TopicID{Type: contractx.AgentTypeRouter, Source: session}}
}

func subtask(agent contractx.AgentType) contractx.SubTask {
	return contractx.SubTask{TaskDetails: "do " + string(agent), AssignedAgent: agent}
}

func TestRouteSingleSubtaskForwardsOriginalMessage(t *testing.T) {
	t.Parallel()

	r, bus, store, obs := newRouter(t, &fakeClassifier{plan: contractx.Plan{
		MainTask: "hotel",
		Subtasks: []contractx.SubTask{subtask(contractx.AgentTypeHotel)},
	}})

	in := contractx.EndUserMessage{Source: contractx.SourceUser, Content: "I need a hotel in Singapore", Hops: 1}
	if _, err := r.HandleMessage(context.Background(), in, mcFor("s1")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	sent := bus.all()
	if len(sent) != 1 {
		t.Fatalf("published %d messages, want 1", len(sent))
	}
	if sent[0].topic != (contractx.TopicID{Type: contractx.AgentTypeHotel, Source: "s1"}) {
		t.Fatalf("topic = %+v", sent[0].topic)
	}
	if got, ok := sent[0].msg.(contractx.EndUserMessage); !ok || got != in {
		t.Fatalf("forwarded %#v, want original %#v", sent[0].msg, in)
	}
	if active, _ := store.ActiveAgent("s1"); active != contractx.AgentTypeHotel {
		t.Fatalf("ActiveAgent() = %q, want hotel_booking", active)
	}
	if len(*obs) != 1 || (*obs)[0] != "single" {
		t.Fatalf("decisions = %v", *obs)
	}
}

func TestRouteMultipleSubtasksGoesToCoordinator(t *testing.T) {
	t.Parallel()

	plan := contractx.Plan{
		MainTask: "Paris trip",
		Subtasks: []contractx.SubTask{subtask(contractx.AgentTypeFlight), subtask(contractx.AgentTypeHotel)},
	}
	r, bus, _, _ := newRouter(t, &fakeClassifier{plan: plan})

	if _, err := r.HandleMessage(context.Background(), contractx.EndUserMessage{Content: "flight and hotel"}, mcFor("s1")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	sent := bus.all()
	if len(sent) != 1 {
		t.Fatalf("published %d messages, want exactly one", len(sent))
	}
	if sent[0].topic != (contractx.TopicID{Type: contractx.AgentTypeCoordinator, Source: "s1"}) {
		t.Fatalf("topic = %+v, want coordinator", sent[0].topic)
	}
	got, ok := sent[0].msg.(contractx.Plan)
	if !ok || got.MainTask != "Paris trip" || len(got.Subtasks) != 2 {
		t.Fatalf("published %#v", sent[0].msg)
	}
}

func TestRouteGreetingShortCircuits(t *testing.T) {
	t.Parallel()

	r, bus, _, _ := newRouter(t, &fakeClassifier{plan: contractx.Plan{
		IsGreeting: true,
		Subtasks:   []contractx.SubTask{subtask(contractx.AgentTypeFlight), subtask(contractx.AgentTypeHotel)},
	}})

	if _, err := r.HandleMessage(context.Background(), contractx.EndUserMessage{Content: "hello"}, mcFor("s1")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	sent := bus.all()
	if len(sent) != 1 {
		t.Fatalf("published %d messages, want 1", len(sent))
	}
	if sent[0].topic.Type != contractx.AgentTypeUserProxy {
		t.Fatalf("greeting went to %s", sent[0].topic.Type)
	}
	res := sent[0].msg.(contractx.SpecialistResult)
	if _, ok := res.Data.(contractx.Greeting); !ok || res.AgentType != contractx.AgentTypeDefault {
		t.Fatalf("greeting result = %#v", res)
	}
}

func TestRouteGreetingIgnoresMalformedSubtasks(t *testing.T) {
	t.Parallel()

	r, bus, _, obs := newRouter(t, &fakeClassifier{plan: contractx.Plan{
		IsGreeting: true,
		Subtasks: []contractx.SubTask{
			{TaskDetails: "", AssignedAgent: contractx.AgentTypeDefault},
			{TaskDetails: "beam me up", AssignedAgent: "teleport"},
		},
	}})

	if _, err := r.HandleMessage(context.Background(), contractx.EndUserMessage{Content: "hello"}, mcFor("s1")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	sent := bus.all()
	if len(sent) != 1 || sent[0].topic != (contractx.TopicID{Type: contractx.AgentTypeUserProxy, Source: "s1"}) {
		t.Fatalf("published %#v, want one greeting to user_proxy", sent)
	}
	if res := sent[0].msg.(contractx.SpecialistResult); res.Content != DefaultGreeting {
		t.Fatalf("content = %q, want greeting", res.Content)
	}
	if len(*obs) != 1 || (*obs)[0] != "greeting" {
		t.Fatalf("decisions = %v", *obs)
	}
}

func TestRouteEmptyPlanIsSilent(t *testing.T) {
	t.Parallel()

	r, bus, store, _ := newRouter(t, &fakeClassifier{plan: contractx.Plan{MainTask: "?"}})
	if _, err := r.HandleMessage(context.Background(), contractx.EndUserMessage{Content: "???"}, mcFor("s1")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if n := len(bus.all()); n != 0 {
		t.Fatalf("published %d messages, want 0", n)
	}
	if n := len(store.History("s1")); n != 1 {
		t.Fatalf("history length = %d, want 1", n)
	}
}

func TestRouteClassifierFailureIsSilent(t *testing.T) {
	t.Parallel()

	r, bus, _, obs := newRouter(t, &fakeClassifier{err: contractx.ErrModelInvoke})
	if _, err := r.HandleMessage(context.Background(), contractx.EndUserMessage{Content: "flight"}, mcFor("s1")); err != nil {
		t.Fatalf("HandleMessage() error = %v, want nil", err)
	}
	if n := len(bus.all()); n != 0 {
		t.Fatalf("published %d messages, want 0", n)
	}
	if (*obs)[0] != "noop" {
		t.Fatalf("decision = %s, want noop", (*obs)[0])
	}
}

func TestHandoffCompleteClearsSession(t *testing.T) {
	t.Parallel()

	r, bus, store, _ := newRouter(t, &fakeClassifier{})
	store.Touch("s1", contractx.EndUserMessage{Content: "x"})

	msg := contractx.HandoffMessage{Source: "user_proxy", Complete: true}
	if _, err := r.HandleMessage(context.Background(), msg, mcFor("s1")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("store has %d sessions after completion", store.Len())
	}
	if n := len(bus.all()); n != 0 {
		t.Fatalf("published %d messages, want 0", n)
	}
}

func TestHandoffReroutesAsRequester(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{plan: contractx.Plan{
		Subtasks: []contractx.SubTask{subtask(contractx.AgentTypeFlight), subtask(contractx.AgentTypeHotel)},
	}}
	r, bus, store, _ := newRouter(t, classifier)

	msg := contractx.HandoffMessage{Source: "hotel_booking", Requester: contractx.SourceUser, Content: "make me a travel plan", Hops: 1}
	if _, err := r.HandleMessage(context.Background(), msg, mcFor("s1")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if len(classifier.texts) != 1 || classifier.texts[0] != "make me a travel plan" {
		t.Fatalf("classifier saw %v", classifier.texts)
	}
	hist := store.History("s1")
	if len(hist) != 1 || hist[0].Source != contractx.SourceUser || hist[0].Hops != 1 {
		t.Fatalf("history = %#v", hist)
	}
	if sent := bus.all(); len(sent) != 1 || sent[0].topic.Type != contractx.AgentTypeCoordinator {
		t.Fatalf("published %#v", sent)
	}
}

func TestHandoffBeyondLimitApologises(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{plan: contractx.Plan{Subtasks: []contractx.SubTask{subtask(contractx.AgentTypeHotel)}}}
	r, bus, _, _ := newRouter(t, classifier)

	msg := contractx.HandoffMessage{Source: "hotel_booking", Requester: contractx.SourceUser, Content: "travel plan", Hops: 3}
	if _, err := r.HandleMessage(context.Background(), msg, mcFor("s1")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if len(classifier.texts) != 0 {
		t.Fatalf("classifier called %d times past the hop limit", len(classifier.texts))
	}
	sent := bus.all()
	if len(sent) != 1 || sent[0].topic.Type != contractx.AgentTypeUserProxy {
		t.Fatalf("published %#v, want one apology to user_proxy", sent)
	}
	if res := sent[0].msg.(contractx.SpecialistResult); !res.Failed() {
		t.Fatalf("apology = %#v, want Error set", res)
	}
}

func TestHandleMessageRejectsOtherKinds(t *testing.T) {
	t.Parallel()

	r, _, _, _ := newRouter(t, &fakeClassifier{})
	_, err := r.HandleMessage(context.Background(), contractx.DispatchRequest{Content: "x"}, mcFor("s1"))
	if !errors.Is(err, contractx.ErrUnhandledMessage) {
		t.Fatalf("HandleMessage() error = %v, want ErrUnhandledMessage", err)
	}
}

func TestRouteRejectsEmptySession(t *testing.T) {
	t.Parallel()

	r, _, _, _ := newRouter(t, &fakeClassifier{})
	_, err := r.HandleMessage(context.Background(), contractx.EndUserMessage{Content: "x"}, mcFor(""))
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("HandleMessage() error = %v, want ErrInvalidSession", err)
	}
}
