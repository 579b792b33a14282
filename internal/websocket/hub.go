package websocket

import (
	"sync"

	"github.com/leandro-jm/bulk-migration/internal/migration"
)

// Hub fans out progress for many concurrent jobs to many viewers, each
// viewer subscribed to exactly one job id. It implements migration.Broadcaster
// per job through JobSink, never globally: a viewer for job A must never see
// job B's traffic.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*Client]struct{}),
	}
}

// Register subscribes c to jobID's broadcasts.
func (h *Hub) Register(jobID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[jobID]
	if !ok {
		set = make(map[*Client]struct{})
		h.subs[jobID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes c from jobID's subscriber set.
func (h *Hub) Unregister(jobID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[jobID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.subs, jobID)
	}
}

// BroadcastJob sends msg to every client currently subscribed to jobID.
func (h *Hub) BroadcastJob(jobID string, msg []byte) {
	h.mu.Lock()
	set := h.subs[jobID]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.Send(msg)
	}
}

// JobSink binds a Hub to one job id, implementing migration.Broadcaster.
// *Hub implements migration.BroadcasterFactory through Sink: the engine
// depends only on the narrow Broadcaster/BroadcasterFactory interfaces,
// never on this package.
type JobSink struct {
	hub   *Hub
	jobID string
}

func (h *Hub) Sink(jobID string) migration.Broadcaster {
	return &JobSink{hub: h, jobID: jobID}
}

func (s *JobSink) Broadcast(msg []byte) {
	s.hub.BroadcastJob(s.jobID, msg)
}
