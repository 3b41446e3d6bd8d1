package memory

import (
	"context"
	"testing"
)

type runNotice struct {
	RunID string `json:"run_id"`
}

func (n runNotice) Attributes() map[string]string {
	return map[string]string{"run_id": n.RunID}
}

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "topic-a", map[string]string{"k": "v"})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "topic-b", runNotice{RunID: "run-1"})
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Topic != "topic-a" || msgs[1].Topic != "topic-b" {
		t.Fatalf("topics not recorded correctly: %+v", msgs)
	}
	if string(msgs[0].Data) != `{"k":"v"}` {
		t.Fatalf("unexpected encoded payload %s", msgs[0].Data)
	}
	if msgs[0].Attributes != nil {
		t.Fatalf("plain payloads carry no attributes, got %v", msgs[0].Attributes)
	}
	if msgs[1].Attributes["run_id"] != "run-1" {
		t.Fatalf("attributes not captured: %v", msgs[1].Attributes)
	}

	msgs[0].Topic = "modified"
	if pub.Messages()[0].Topic == "modified" {
		t.Fatal("Messages should return a copy")
	}
}

func TestPublisherRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	pub := New()
	if _, err := pub.Publish(context.Background(), "topic", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
	if len(pub.Messages()) != 0 {
		t.Fatal("failed publish must not be recorded")
	}
}
