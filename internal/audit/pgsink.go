package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PGSink appends records to the access_audit_log table.
type PGSink struct {
	db *sql.DB
}

// NewPGSink returns a sink writing through db.
func NewPGSink(db *sql.DB) *PGSink {
	return &PGSink{db: db}
}

func (s *PGSink) Write(ctx context.Context, rec Record) error {
	if s.db == nil {
		return errors.New("audit: database not configured")
	}
	meta := []byte("{}")
	if len(rec.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(rec.Metadata); err != nil {
			return fmt.Errorf("audit: encode metadata: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		insert into access_audit_log
			(id, occurred_at, user_id, branch_id, operation, resource_type,
			 access_granted, restriction_level, reason, request_id, metadata)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.Timestamp, rec.UserID, rec.BranchID,
		string(rec.Operation), string(rec.ResourceType),
		rec.AccessGranted, string(rec.RestrictionLevel), rec.Reason,
		RequestIDFromContext(ctx), meta,
	)
	if err != nil {
		return fmt.Errorf("audit: insert record: %w", err)
	}
	return nil
}
