package migration

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Broadcaster is the narrow sink the engine depends on for live progress; it
// must not couple the engine to a transport. The websocket package's JobSink
// (minted per job by Hub.Sink) is the only implementation in this
// repository, but this package never imports it.
type Broadcaster interface {
	Broadcast([]byte)
}

// Progress tracks one job's live Status and emits it to the Broadcaster on
// every change. It is distinct from the durable JobRecord the Job Store
// holds: losing a Progress viewer never affects job outcome.
type Progress struct {
	mu        sync.Mutex
	startedAt time.Time
	status    Status
	sink      Broadcaster
}

type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// encodeLogEvent wraps a LogEvent for transport over the Broadcaster,
// distinct from the periodic "progress" envelope emit() sends.
func encodeLogEvent(event LogEvent) ([]byte, error) {
	return json.Marshal(wsMessage{Type: "log", Data: event})
}

// NewProgress seeds a Progress with one pending TableProgress per task.
func NewProgress(jobID string, tasks []TableTask, sink Broadcaster) *Progress {
	tables := make([]TableProgress, len(tasks))
	for i, t := range tasks {
		tables[i] = TableProgress{Table: t.TableName, Status: "pending"}
	}
	return &Progress{
		startedAt: time.Now(),
		status: Status{
			JobID:   jobID,
			Running: true,
			Tables:  tables,
		},
		sink: sink,
	}
}

func (p *Progress) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// SetCurrentTable records which table is being processed now.
func (p *Progress) SetCurrentTable(table string) {
	p.mu.Lock()
	p.status.CurrentTable = table
	p.status.ElapsedSec = int64(time.Since(p.startedAt).Seconds())
	p.mu.Unlock()
	p.emit()
}

func (p *Progress) Log(msg string) {
	p.mu.Lock()
	p.status.LogMessage = msg
	p.status.ElapsedSec = int64(time.Since(p.startedAt).Seconds())
	p.mu.Unlock()
	p.emit()
}

func (p *Progress) UpdateOverall(percent int) {
	p.mu.Lock()
	p.status.Overall = percent
	p.status.ElapsedSec = int64(time.Since(p.startedAt).Seconds())
	p.mu.Unlock()
	p.emit()
}

// UpdateTable updates one table's live progress entry in place.
func (p *Progress) UpdateTable(table, status string, total, migrated int64) {
	p.mu.Lock()
	for i := range p.status.Tables {
		t := &p.status.Tables[i]
		if t.Table == table {
			t.Status = status
			t.TotalRows = total
			t.MigratedRows = migrated
			if total > 0 {
				t.Percent = int(float64(migrated) / float64(total) * 100.0)
			} else {
				t.Percent = 0
			}
			break
		}
	}
	p.status.ElapsedSec = int64(time.Since(p.startedAt).Seconds())
	p.mu.Unlock()
	p.emit()
}

func (p *Progress) FinishWithError(errMsg string) {
	p.mu.Lock()
	p.status.Running = false
	p.status.ElapsedSec = int64(time.Since(p.startedAt).Seconds())
	p.status.LogMessage = fmt.Sprintf("migration failed: %s (elapsed %ds)", errMsg, p.status.ElapsedSec)
	p.mu.Unlock()
	p.emit()
}

func (p *Progress) Finish() {
	p.mu.Lock()
	p.status.Running = false
	p.status.Overall = 100
	p.status.ElapsedSec = int64(time.Since(p.startedAt).Seconds())
	p.status.LogMessage = fmt.Sprintf("migration completed (elapsed %ds)", p.status.ElapsedSec)
	p.mu.Unlock()
	p.emit()
}

func (p *Progress) emit() {
	if p.sink == nil {
		return
	}
	p.mu.Lock()
	status := p.status
	p.mu.Unlock()

	payload, err := json.Marshal(wsMessage{
		Type: "progress",
		Data: status,
	})
	if err != nil {
		return
	}
	p.sink.Broadcast(payload)
}
