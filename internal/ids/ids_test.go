package ids

import (
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestWithPrefixUniqueAndOrdered(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seen := make(map[string]struct{})
	prev := ""
	for i := 0; i < 1000; i++ {
		id := WithPrefix("sess", now)
		if !strings.HasPrefix(id, "sess_") {
			t.Fatalf("missing prefix: %s", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
		if prev != "" && id <= prev {
			t.Fatalf("ids not monotonic: %s <= %s", id, prev)
		}
		prev = id
	}
}

func TestAtEncodesTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	id, err := ulid.ParseStrict(strings.TrimPrefix(WithPrefix("aud", now), "aud_"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := ulid.Time(id.Time()); !got.Equal(now) {
		t.Fatalf("unexpected time %v", got)
	}
}
