package websocket

import (
	"testing"
)

func TestHubBroadcastJobIsolation(t *testing.T) {
	hub := NewHub()

	clientA := NewClient(nil)
	clientB := NewClient(nil)

	// Clients can't open a real gorilla/websocket.Conn without a server; the
	// Hub's own subscriber bookkeeping is what this test exercises, not the
	// wire write, so we verify membership directly instead of a live send.
	hub.Register("job-a", clientA)
	hub.Register("job-b", clientB)

	if _, ok := hub.subs["job-a"][clientA]; !ok {
		t.Fatalf("clientA not registered under job-a")
	}
	if _, ok := hub.subs["job-a"][clientB]; ok {
		t.Fatalf("clientB incorrectly registered under job-a")
	}

	hub.Unregister("job-a", clientA)
	if _, ok := hub.subs["job-a"]; ok {
		t.Fatalf("job-a subscriber set should be removed once empty")
	}
}

func TestJobSinkBroadcastsOnlyToItsJob(t *testing.T) {
	hub := NewHub()
	sinkA := hub.Sink("job-a").(*JobSink)
	sinkB := hub.Sink("job-b").(*JobSink)

	if sinkA.jobID != "job-a" || sinkB.jobID != "job-b" {
		t.Fatalf("JobSink captured wrong job id: %+v %+v", sinkA, sinkB)
	}

	// Broadcasting with no subscribers must not panic.
	sinkA.Broadcast([]byte("hello"))
}
