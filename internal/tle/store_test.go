package tle

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, l1, l2 string) *Record {
	t.Helper()
	rec, err := ParseRecord(l1, l2)
	if err != nil {
		t.Fatalf("ParseRecord: %v", err)
	}
	return rec
}

func TestStoreMergeKeepsNewerEpoch(t *testing.T) {
	s := NewStore()
	if s.Get() != nil || s.AgeSeconds() != -1 {
		t.Fatal("new store should be empty")
	}

	iss := mustParse(t, issLine1, issLine2)
	older := *iss
	older.Epoch = iss.Epoch.Add(-24 * time.Hour)
	newer := *iss
	newer.Epoch = iss.Epoch.Add(24 * time.Hour)

	now := time.Now()
	if changed := s.Merge("test", now, []*Record{iss}); len(changed) != 1 {
		t.Fatalf("first merge changed %d, want 1", len(changed))
	}
	if changed := s.Merge("test", now, []*Record{&older}); len(changed) != 0 {
		t.Errorf("older record should not replace stored one")
	}
	if changed := s.Merge("test", now, []*Record{iss}); len(changed) != 0 {
		t.Errorf("same-epoch record should not replace stored one")
	}
	if changed := s.Merge("test", now, []*Record{&newer}); len(changed) != 1 {
		t.Errorf("newer record should replace stored one")
	}

	got, ok := s.Lookup("25544")
	if !ok || got != &newer {
		t.Errorf("Lookup returned %v, want newer record", got)
	}
	if _, ok := s.Lookup("00005"); ok {
		t.Error("Lookup found a record that was never merged")
	}
}

func TestStoreEpochRange(t *testing.T) {
	s := NewStore()
	iss := mustParse(t, issLine1, issLine2)
	vanguard := mustParse(t, vanguardLine1, vanguardLine2)
	s.Merge("test", time.Now(), []*Record{iss, vanguard})

	ds := s.Get()
	if len(ds.Records) != 2 {
		t.Fatalf("dataset has %d records, want 2", len(ds.Records))
	}
	if !ds.EpochRange.Min.Equal(vanguard.Epoch) || !ds.EpochRange.Max.Equal(iss.Epoch) {
		t.Errorf("EpochRange = %v..%v", ds.EpochRange.Min, ds.EpochRange.Max)
	}
}

func TestStoreSnapshotIsolation(t *testing.T) {
	s := NewStore()
	iss := mustParse(t, issLine1, issLine2)
	s.Merge("test", time.Now(), []*Record{iss})
	before := s.Get()

	vanguard := mustParse(t, vanguardLine1, vanguardLine2)
	s.Merge("test", time.Now(), []*Record{vanguard})

	if len(before.Records) != 1 {
		t.Errorf("earlier snapshot mutated: %d records", len(before.Records))
	}
}
