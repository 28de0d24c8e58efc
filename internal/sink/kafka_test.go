package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/segmentio/kafka-go"

	"jobharvest-engine/internal/domain"
)

type recordingWriter struct {
	batches [][]kafka.Message
	err     error
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	cp := append([]kafka.Message(nil), msgs...)
	w.batches = append(w.batches, cp)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestPublishBatchesByID(t *testing.T) {
	w := &recordingWriter{}
	p := NewKafkaPublisherWithWriter(w, 2)

	var jobs []domain.CanonicalJob
	for i := 0; i < 5; i++ {
		j := domain.CanonicalJob{ID: fmt.Sprintf("j%d", i), Title: "t"}
		j.Refresh()
		jobs = append(jobs, j)
	}
	if err := p.Publish(context.Background(), "run-1", jobs); err != nil {
		t.Fatal(err)
	}
	if len(w.batches) != 3 {
		t.Fatalf("batches = %d, want 3", len(w.batches))
	}
	msg := w.batches[2][0]
	if string(msg.Key) != "j4" || string(msg.Headers[0].Value) != "run-1" {
		t.Fatalf("unexpected message: key=%s headers=%v", msg.Key, msg.Headers)
	}
	var got domain.CanonicalJob
	if err := json.Unmarshal(msg.Value, &got); err != nil || got.ID != "j4" {
		t.Fatalf("payload = %s err=%v", msg.Value, err)
	}
}

func TestPublishReturnsWriterError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := NewKafkaPublisherWithWriter(w, 10)
	if err := p.Publish(context.Background(), "r", []domain.CanonicalJob{{ID: "a"}}); err == nil {
		t.Fatal("expected error")
	}
}
