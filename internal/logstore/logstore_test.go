package logstore

import (
	"fmt"
	"testing"
)

func TestAppendAssignsIncreasingIDs(t *testing.T) {
	st := NewStore(0)
	a := st.Append("s1", "first", LevelInfo)
	b := st.Append("s1", "second", LevelError)
	if a.ID == 0 || b.ID != a.ID+1 {
		t.Fatalf("expected auto-incrementing ids, got %d then %d", a.ID, b.ID)
	}
	if a.CreatedAt.IsZero() || b.CreatedAt.Before(a.CreatedAt) {
		t.Fatalf("expected stamped, non-decreasing timestamps")
	}
}

func TestBySessionOrderedOldestFirst(t *testing.T) {
	st := NewStore(0)
	for i := 0; i < 5; i++ {
		st.Append("a", fmt.Sprintf("a-%d", i), LevelInfo)
		st.Append("b", fmt.Sprintf("b-%d", i), LevelInfo)
	}
	logs := st.BySession("a")
	if len(logs) != 5 {
		t.Fatalf("expected 5 records for session a, got %d", len(logs))
	}
	for i, rec := range logs {
		if rec.SessionID != "a" {
			t.Fatalf("foreign record in session query: %+v", rec)
		}
		if rec.Message != fmt.Sprintf("a-%d", i) {
			t.Fatalf("expected append order, got %q at %d", rec.Message, i)
		}
		if i > 0 && rec.CreatedAt.Before(logs[i-1].CreatedAt) {
			t.Fatalf("timestamps decreased at index %d", i)
		}
	}
}

func TestRecentNewestFirstTruncated(t *testing.T) {
	st := NewStore(0)
	for i := 0; i < 10; i++ {
		st.Append("s", fmt.Sprintf("m-%d", i), LevelInfo)
	}
	recent := st.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recent))
	}
	if recent[0].Message != "m-9" || recent[1].Message != "m-8" || recent[2].Message != "m-7" {
		t.Fatalf("expected newest first, got %v", recent)
	}
	if got := st.Recent(100); len(got) != 10 {
		t.Fatalf("limit beyond size should return everything, got %d", len(got))
	}
	if got := st.Recent(0); got != nil {
		t.Fatalf("limit 0 should return nothing, got %v", got)
	}
}

func TestRetentionEvictsOldest(t *testing.T) {
	st := NewStore(4)
	for i := 0; i < 10; i++ {
		st.Append("s", fmt.Sprintf("m-%d", i), LevelInfo)
	}
	if st.Len() != 4 {
		t.Fatalf("expected retention cap of 4, got %d", st.Len())
	}
	logs := st.BySession("s")
	if logs[0].Message != "m-6" || logs[len(logs)-1].Message != "m-9" {
		t.Fatalf("expected oldest evicted, got %q..%q", logs[0].Message, logs[len(logs)-1].Message)
	}
}

func TestClear(t *testing.T) {
	st := NewStore(0)
	st.Append("a", "x", LevelInfo)
	st.Append("b", "y", LevelInfo)
	st.Append("a", "z", LevelWarning)

	st.Clear("a")
	if got := st.BySession("a"); len(got) != 0 {
		t.Fatalf("expected session a cleared, got %v", got)
	}
	if got := st.BySession("b"); len(got) != 1 {
		t.Fatalf("expected session b untouched, got %v", got)
	}

	st.Clear("")
	if st.Len() != 0 {
		t.Fatalf("expected full clear, got %d records", st.Len())
	}
}
