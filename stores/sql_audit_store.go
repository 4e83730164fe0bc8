package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/linguahub/permission"
)

// SQLAuditSink persists authorization decisions in SQL.
type SQLAuditSink struct {
	db *squealx.DB
}

func NewSQLAuditSink(db *squealx.DB) *SQLAuditSink {
	return &SQLAuditSink{db: db}
}

func (s *SQLAuditSink) RecordDecision(ctx context.Context, entry *permission.AuditEntry) error {
	q := `INSERT INTO decision_log(subject_id, group_id, requirement, allowed, reason, handler, timestamp)
VALUES(:subject_id, :group_id, :requirement, :allowed, :reason, :handler, :timestamp)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"subject_id":  entry.SubjectID,
		"group_id":    entry.GroupID,
		"requirement": entry.Requirement,
		"allowed":     boolToInt(entry.Allowed),
		"reason":      entry.Reason,
		"handler":     entry.Handler,
		"timestamp":   entry.Timestamp,
	})
	return err
}

func (s *SQLAuditSink) Query(ctx context.Context, filter permission.AuditFilter) ([]*permission.AuditEntry, error) {
	q := `SELECT subject_id, group_id, requirement, allowed, reason, handler, timestamp FROM decision_log WHERE 1=1`
	params := map[string]any{}
	if filter.SubjectID != "" {
		q += ` AND subject_id = :subject_id`
		params["subject_id"] = filter.SubjectID
	}
	if filter.Allowed != nil {
		q += ` AND allowed = :allowed`
		params["allowed"] = boolToInt(*filter.Allowed)
	}
	if !filter.StartTime.IsZero() {
		q += ` AND timestamp >= :start_time`
		params["start_time"] = filter.StartTime
	}
	if !filter.EndTime.IsZero() {
		q += ` AND timestamp <= :end_time`
		params["end_time"] = filter.EndTime
	}
	q += ` ORDER BY timestamp DESC`
	if filter.Limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, fmt.Errorf("query decision log: %w", err)
	}
	defer r.Close()
	out := make([]*permission.AuditEntry, 0)
	for r.Next() {
		var e permission.AuditEntry
		var allowed int
		var tsRaw interface{}
		if err := r.Scan(&e.SubjectID, &e.GroupID, &e.Requirement, &allowed, &e.Reason, &e.Handler, &tsRaw); err != nil {
			return nil, fmt.Errorf("scan decision log entry: %w", err)
		}
		e.Allowed = allowed != 0
		e.Timestamp = scanTime(tsRaw)
		out = append(out, &e)
	}
	return out, nil
}

// PurgeBefore removes decision log rows older than cutoff.
func (s *SQLAuditSink) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.NamedExecContext(ctx, `DELETE FROM decision_log WHERE timestamp < :cutoff`, map[string]any{"cutoff": cutoff})
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
