package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gigflow/backend/internal/config"
	"github.com/gigflow/backend/internal/events"
	"github.com/hibiken/asynq"
)

func TestTaskTypeNotify_Constant(t *testing.T) {
	if TaskTypeNotify != "event:notify" {
		t.Errorf("TaskTypeNotify = %q, expected %q", TaskTypeNotify, "event:notify")
	}
}

func TestSyncQueue_RunsProcessor(t *testing.T) {
	q := NewSyncQueue()
	if q.IsAsync() {
		t.Error("SyncQueue should not be async")
	}

	// No processor: dropped without error
	if err := q.Enqueue(context.Background(), &Task{}); err != nil {
		t.Errorf("Enqueue without processor = %v", err)
	}

	got := make(chan *Task, 1)
	q.SetProcessor(func(_ context.Context, task *Task) error {
		got <- task
		return nil
	})
	if err := q.Enqueue(context.Background(), &Task{Event: events.Event{Type: events.ProposalAccepted, EntityID: 3}}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case task := <-got:
		if task.Event.EntityID != 3 {
			t.Errorf("EntityID = %d, expected 3", task.Event.EntityID)
		}
	case <-time.After(time.Second):
		t.Fatal("processor was not called")
	}
	if err := q.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}

func TestNewQueue_FallsBackToSync(t *testing.T) {
	q := NewQueue(&config.RedisConfig{Enabled: false}, nil)
	if q.IsAsync() {
		t.Error("disabled redis should yield a sync queue")
	}

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	q = NewQueue(&config.RedisConfig{Enabled: true, Addr: addr}, nil)
	if q.IsAsync() {
		t.Error("unreachable redis should yield a sync queue")
	}
}

func TestWebhookSender_Send(t *testing.T) {
	var received webhookPayload
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Gigflow-Event")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, time.Second)
	task := &Task{Event: events.Event{Type: events.ContractCreated, ProjectID: 2, EntityID: 5, Status: "PENDING"}}
	if err := s.Send(context.Background(), task); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if header != string(events.ContractCreated) {
		t.Errorf("X-Gigflow-Event = %q, expected %q", header, events.ContractCreated)
	}
	if received.Source != "gigflow" || received.Event.EntityID != 5 {
		t.Errorf("payload = %+v", received)
	}
}

func TestWebhookSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL, time.Second).Send(context.Background(), &Task{})
	if err == nil {
		t.Error("Send should fail on a 5xx response")
	}
}

type recordingQueue struct {
	tasks []*Task
}

func (q *recordingQueue) Enqueue(_ context.Context, task *Task) error {
	q.tasks = append(q.tasks, task)
	return nil
}
func (q *recordingQueue) IsAsync() bool { return false }
func (q *recordingQueue) Close() error  { return nil }

func TestDispatcher_Publish(t *testing.T) {
	q := &recordingQueue{}
	var pub events.Publisher = NewDispatcher(q)

	pub.Publish(context.Background(), events.Event{Type: events.FileUploaded, EntityID: 11})

	if len(q.tasks) != 1 || q.tasks[0].Event.EntityID != 11 {
		t.Errorf("queued tasks = %+v", q.tasks)
	}
}

func TestWorker_Disabled(t *testing.T) {
	if w := NewWorker(&config.RedisConfig{Enabled: false}); w != nil {
		t.Error("NewWorker should return nil when redis is disabled")
	}
}

func TestWorker_HandleTask(t *testing.T) {
	w := &Worker{}

	payload, _ := json.Marshal(Task{Event: events.Event{Type: events.MilestoneUpdated, EntityID: 4}})
	if err := w.handleTask(context.Background(), asynq.NewTask(TaskTypeNotify, payload)); err != nil {
		t.Errorf("handleTask without processor = %v", err)
	}

	var seen uint
	w.SetProcessor(func(_ context.Context, task *Task) error {
		seen = task.Event.EntityID
		return nil
	})
	if err := w.handleTask(context.Background(), asynq.NewTask(TaskTypeNotify, payload)); err != nil {
		t.Fatalf("handleTask: %v", err)
	}
	if seen != 4 {
		t.Errorf("processor saw entity %d, expected 4", seen)
	}

	if err := w.handleTask(context.Background(), asynq.NewTask(TaskTypeNotify, []byte("{"))); err != asynq.SkipRetry {
		t.Errorf("malformed payload = %v, expected SkipRetry", err)
	}
}
