package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"retailgate.org/internal/access"
	"retailgate.org/internal/auth"
	"retailgate.org/internal/obs"
)

func testRecord() Record {
	return Record{
		ID:               "aud_01",
		Timestamp:        time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
		UserID:           "user-42",
		BranchID:         "br-2",
		Operation:        access.OpView,
		ResourceType:     access.ResourceStock,
		AccessGranted:    true,
		RestrictionLevel: access.RestrictionPartial,
		Reason:           "partial access granted",
		Metadata:         map[string]any{"records": 3},
	}
}

func TestLogEvent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	defer obs.SetLogger(zap.New(core))()

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithPrincipal(ctx, auth.NewPrincipal("user-42", "admin", "br-1", nil))

	if err := LogEvent(ctx, "audit.test", map[string]any{"foo": "bar"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["type"] != "audit" || fields["event"] != "audit.test" {
		t.Fatalf("unexpected entry: %v", fields)
	}
	if fields["request_id"] != "req-123" || fields["user_id"] != "user-42" {
		t.Fatalf("missing context fields: %v", fields)
	}
	payload, ok := fields["fields"].(map[string]any)
	if !ok || payload["foo"] != "bar" {
		t.Fatalf("fields missing or incorrect: %v", fields["fields"])
	}

	if err := LogEvent(ctx, " ", nil); err == nil {
		t.Fatal("expected error for empty event")
	}
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))

	if err := sink.Write(WithRequestID(context.Background(), "req-9"), testRecord()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	entries := logs.FilterField(zap.String("event", "access.decision")).All()
	if len(entries) != 1 {
		t.Fatalf("expected one decision entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["audit_id"] != "aud_01" || fields["access_granted"] != true || fields["restriction_level"] != "partial" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if fields["request_id"] != "req-9" {
		t.Fatalf("expected request id, got %v", fields["request_id"])
	}
}

func TestPGSink(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	rec := testRecord()
	mock.ExpectExec("insert into access_audit_log").
		WithArgs(rec.ID, rec.Timestamp, "user-42", "br-2", "view", "stock", true, "partial",
			"partial access granted", "req-1", []byte(`{"records":3}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	sink := NewPGSink(db)
	if err := sink.Write(WithRequestID(context.Background(), "req-1"), rec); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGSinkError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("insert into access_audit_log").WillReturnError(errors.New("boom"))
	if err := NewPGSink(db).Write(context.Background(), testRecord()); err == nil {
		t.Fatal("expected error")
	}
	if err := (&PGSink{}).Write(context.Background(), testRecord()); err == nil {
		t.Fatal("expected error without db")
	}
}

func TestMulti(t *testing.T) {
	var got []string
	first := SinkFunc(func(_ context.Context, rec Record) error {
		got = append(got, "first:"+rec.ID)
		return errors.New("down")
	})
	second := SinkFunc(func(_ context.Context, rec Record) error {
		got = append(got, "second:"+rec.ID)
		return nil
	})
	err := Multi(first, nil, second).Write(context.Background(), testRecord())
	if err == nil || err.Error() != "down" {
		t.Fatalf("expected first error, got %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both sinks to run, got %v", got)
	}
}
