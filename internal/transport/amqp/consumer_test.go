package amqp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp091 "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	domjob "github.com/kailas-cloud/supportgraph/internal/domain/job"
	"github.com/kailas-cloud/supportgraph/internal/usecase/pipeline"
)

type ackCall struct {
	kind    string
	requeue bool
}

type fakeAcknowledger struct {
	calls []ackCall
}

func (f *fakeAcknowledger) Ack(uint64, bool) error {
	f.calls = append(f.calls, ackCall{kind: "ack"})
	return nil
}

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.calls = append(f.calls, ackCall{kind: "nack", requeue: requeue})
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	f.calls = append(f.calls, ackCall{kind: "reject", requeue: requeue})
	return nil
}

func delivery(ack amqp091.Acknowledger, body string, redelivered bool) amqp091.Delivery {
	return amqp091.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		MessageId:    "m-1",
		Redelivered:  redelivered,
		Body:         []byte(body),
	}
}

func newTestConsumer(h Handler) *Consumer {
	return NewConsumer(nil, ConsumerConfig{Queue: "test", Handler: h}, zap.NewNop())
}

func TestConsumer_Handle(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		redelivered bool
		want        ackCall
	}{
		{"success acks", nil, false, ackCall{kind: "ack"}},
		{"poison dead-letters", fmt.Errorf("%w: bad", ErrPoison), false, ackCall{kind: "nack", requeue: false}},
		{"first failure requeues", errors.New("boom"), false, ackCall{kind: "nack", requeue: true}},
		{"redelivered failure dead-letters", errors.New("boom"), true, ackCall{kind: "nack", requeue: false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAcknowledger{}
			c := newTestConsumer(func(context.Context, []byte) error { return tt.err })

			c.handle(context.Background(), delivery(ack, `{}`, tt.redelivered))

			if len(ack.calls) != 1 {
				t.Fatalf("calls: got %d, want 1", len(ack.calls))
			}
			if ack.calls[0] != tt.want {
				t.Errorf("got %+v, want %+v", ack.calls[0], tt.want)
			}
		})
	}
}

func TestConsumer_ProcessStopsOnClosedChannel(t *testing.T) {
	ack := &fakeAcknowledger{}
	var bodies []string
	c := newTestConsumer(func(_ context.Context, body []byte) error {
		bodies = append(bodies, string(body))
		return nil
	})

	ch := make(chan amqp091.Delivery, 2)
	ch <- delivery(ack, "a", false)
	ch <- delivery(ack, "b", false)
	close(ch)

	if err := c.process(context.Background(), ch); err == nil {
		t.Fatal("expected error on closed deliveries channel")
	}
	if len(bodies) != 2 || bodies[1] != "b" {
		t.Errorf("bodies: got %v", bodies)
	}
	if len(ack.calls) != 2 {
		t.Errorf("acks: got %d, want 2", len(ack.calls))
	}
}

func TestConsumer_ProcessHonoursContext(t *testing.T) {
	c := newTestConsumer(func(context.Context, []byte) error { return nil })
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := c.process(ctx, make(chan amqp091.Delivery))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want deadline exceeded", err)
	}
}

func TestNewConsumer_PrefetchFloor(t *testing.T) {
	c := NewConsumer(nil, ConsumerConfig{Queue: "q", Prefetch: 0}, nil)
	if c.prefetch != 1 {
		t.Errorf("prefetch: got %d, want 1", c.prefetch)
	}
}

type fakeRunner struct {
	ids    []string
	opts   domjob.Options
	report *pipeline.Report
	err    error
}

func (f *fakeRunner) Run(_ context.Context, ids []string, opts domjob.Options) (*pipeline.Report, error) {
	f.ids = ids
	f.opts = opts
	return f.report, f.err
}

func TestJobHandler(t *testing.T) {
	failed := &pipeline.Report{JobID: uuid.New(), Status: domjob.StatusFailed}
	done := &pipeline.Report{JobID: uuid.New(), Status: domjob.StatusCompleted}

	tests := []struct {
		name       string
		body       string
		report     *pipeline.Report
		runErr     error
		wantErr    bool
		wantPoison bool
		wantRun    bool
	}{
		{"completed", `{"entity_ids":["c1","c2"]}`, done, nil, false, false, true},
		{"failed job is retried", `{"entity_ids":["c1"]}`, failed, errors.New("fetch entities: down"), true, false, true},
		{"no report is retried", `{"entity_ids":["c1"]}`, nil, errors.New("boom"), true, false, true},
		{"cancelled is retried", `{"entity_ids":["c1"]}`, failed, fmt.Errorf("job: %w", context.Canceled), true, false, true},
		{"undecodable", `{"entity_ids":`, nil, nil, true, true, false},
		{"empty ids", `{"entity_ids":[" ",""]}`, nil, nil, true, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{report: tt.report, err: tt.runErr}
			err := NewJobHandler(runner)(context.Background(), []byte(tt.body))

			if (err != nil) != tt.wantErr {
				t.Fatalf("err: got %v, wantErr %v", err, tt.wantErr)
			}
			if errors.Is(err, ErrPoison) != tt.wantPoison {
				t.Errorf("poison: got %v, want %v", errors.Is(err, ErrPoison), tt.wantPoison)
			}
			if (runner.ids != nil) != tt.wantRun {
				t.Errorf("runner called: got %v, want %v", runner.ids != nil, tt.wantRun)
			}
		})
	}
}

func TestJobHandler_FailedJobRequeuedThenDeadLettered(t *testing.T) {
	runner := &fakeRunner{
		report: &pipeline.Report{JobID: uuid.New(), Status: domjob.StatusFailed},
		err:    errors.New("fetch entities: connection refused"),
	}
	c := newTestConsumer(NewJobHandler(runner))

	first := &fakeAcknowledger{}
	c.handle(context.Background(), delivery(first, `{"entity_ids":["c1"]}`, false))
	second := &fakeAcknowledger{}
	c.handle(context.Background(), delivery(second, `{"entity_ids":["c1"]}`, true))

	if len(first.calls) != 1 || first.calls[0] != (ackCall{kind: "nack", requeue: true}) {
		t.Errorf("first delivery: got %+v, want requeue", first.calls)
	}
	if len(second.calls) != 1 || second.calls[0] != (ackCall{kind: "nack", requeue: false}) {
		t.Errorf("redelivery: got %+v, want dead-letter", second.calls)
	}
}

func TestJobHandler_EntityFailuresStillAck(t *testing.T) {
	runner := &fakeRunner{report: &pipeline.Report{
		JobID:   uuid.New(),
		Status:  domjob.StatusCompleted,
		Summary: domjob.Summary{Total: 2, Processed: 1, Failed: 1},
	}}
	ack := &fakeAcknowledger{}
	newTestConsumer(NewJobHandler(runner)).handle(context.Background(), delivery(ack, `{"entity_ids":["c1","c2"]}`, false))

	if len(ack.calls) != 1 || ack.calls[0].kind != "ack" {
		t.Errorf("got %+v, want ack", ack.calls)
	}
}

func TestJobHandler_PassesOptions(t *testing.T) {
	runner := &fakeRunner{report: &pipeline.Report{JobID: uuid.New()}}
	body := `{"entity_ids":[" c1 "],"options":{"concurrency":2,"similarity":{"limit":3}}}`

	if err := NewJobHandler(runner)(context.Background(), []byte(body)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runner.ids) != 1 || runner.ids[0] != "c1" {
		t.Errorf("ids: got %v", runner.ids)
	}
	if runner.opts.Concurrency != 2 || runner.opts.Similarity.Limit == nil || *runner.opts.Similarity.Limit != 3 {
		t.Errorf("opts: got %+v", runner.opts)
	}
}

func TestDeadLetterName(t *testing.T) {
	if got := DeadLetterName("supportgraph.entities"); got != "supportgraph.entities.dlq" {
		t.Errorf("got %s", got)
	}
}
