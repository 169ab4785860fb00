package memory

import (
	"context"
	"testing"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "logos", map[string]string{"domain": "example.com"})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "misses", "example.org")
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if string(msgs[0].Data) != `{"domain":"example.com"}` || string(msgs[1].Data) != `"example.org"` {
		t.Fatalf("payloads not encoded as JSON: %q %q", msgs[0].Data, msgs[1].Data)
	}

	msgs[0].Topic = "modified"
	if pub.Messages()[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestPublisherRejectsUnencodable(t *testing.T) {
	t.Parallel()

	if _, err := New().Publish(context.Background(), "logos", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}
