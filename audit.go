package permission

import (
	"context"
	"time"
)

// AuditSink records authorization decisions. The engine writes through a
// buffered channel worker so a slow sink never blocks the decision path;
// entries are dropped when the buffer is full.
type AuditSink interface {
	RecordDecision(ctx context.Context, entry *AuditEntry) error
}

// AuditEntry is one recorded decision.
type AuditEntry struct {
	SubjectID   string    `json:"subject_id"`
	GroupID     string    `json:"group_id,omitempty"`
	Requirement string    `json:"requirement"`
	Allowed     bool      `json:"allowed"`
	Reason      string    `json:"reason"`
	Handler     string    `json:"handler,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// AuditFilter narrows an access-log query.
type AuditFilter struct {
	SubjectID string
	Allowed   *bool
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

func (e *Engine) startAuditWorker() {
	e.auditWG.Add(1)
	go func() {
		defer e.auditWG.Done()
		bg := context.Background()
		for entry := range e.auditCh {
			if err := e.audit.RecordDecision(bg, &entry); err != nil {
				e.log.Error("audit sink error", "err", err.Error())
			}
		}
	}()
}

func (e *Engine) recordDecision(subject *SubjectContext, req Requirement, dec *Decision) {
	if e.audit == nil {
		return
	}
	entry := AuditEntry{
		SubjectID:   subject.UserID,
		GroupID:     subject.ActiveGroupID,
		Requirement: req.String(),
		Allowed:     dec.Allowed,
		Reason:      dec.Reason,
		Handler:     dec.Handler,
		Timestamp:   dec.Timestamp,
	}
	select {
	case e.auditCh <- entry:
	default:
		// full buffer: drop rather than stall the decision path
	}
}
