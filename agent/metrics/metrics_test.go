package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	contractx "github.com/tanpawarit/chative-travel/agent/contract"
)

func TestHandlerFinishedCountsErrors(t *testing.T) {
	t.Parallel()

	m, err := New(prometheus.NewRegistry(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	m.HandlerFinished(contractx.AgentTypeRouter, contractx.KindEndUser, 10*time.Millisecond, nil)
	m.HandlerFinished(contractx.AgentTypeRouter, contractx.KindEndUser, 10*time.Millisecond, errors.New("x"))

	if got := testutil.ToFloat64(m.handlerErrors.WithLabelValues("router", "end_user_message")); got != 1 {
		t.Fatalf("handler errors = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.handlerDuration); got != 1 {
		t.Fatalf("handler duration series = %d, want 1", got)
	}
}

func TestDeliveredSplitsByMode(t *testing.T) {
	t.Parallel()

	m, err := New(prometheus.NewRegistry(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	m.MessageDelivered(contractx.AgentTypeFlight, contractx.KindDispatch, true)
	m.MessageDelivered(contractx.AgentTypeFlight, contractx.KindEndUser, false)
	m.MessagePublished(contractx.KindEndUser, contractx.AgentTypeFlight)

	if got := testutil.ToFloat64(m.delivered.WithLabelValues("flight_booking", "dispatch_request", "send")); got != 1 {
		t.Fatalf("send deliveries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.delivered.WithLabelValues("flight_booking", "end_user_message", "publish")); got != 1 {
		t.Fatalf("publish deliveries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.published.WithLabelValues("end_user_message", "flight_booking")); got != 1 {
		t.Fatalf("published = %v, want 1", got)
	}
}

func TestSubtaskAndRouteCounters(t *testing.T) {
	t.Parallel()

	m, err := New(prometheus.NewRegistry(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	m.SubtaskFinished(contractx.AgentTypeHotel, nil)
	m.SubtaskFinished(contractx.AgentTypeHotel, errors.New("timeout"))
	m.RouteDecided("multi")
	m.FanoutFinished(time.Second)

	if got := testutil.ToFloat64(m.subtasks.WithLabelValues("hotel_booking", "error")); got != 1 {
		t.Fatalf("failed subtasks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.routeDecisions.WithLabelValues("multi")); got != 1 {
		t.Fatalf("multi decisions = %v, want 1", got)
	}
}

func TestSessionsGauge(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	live := 3
	if _, err := New(reg, func() int { return live }); err != nil {
		t.Fatalf("New() error = %v", err)
	}

	count, err := testutil.GatherAndCount(reg, "chative_sessions_active")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("sessions_active series = %d, want 1", count)
	}
}

func TestNewRejectsDoubleRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	if _, err := New(reg, nil); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := New(reg, nil); err == nil {
		t.Fatal("New() on the same registry error = nil, want duplicate registration error")
	}
}
