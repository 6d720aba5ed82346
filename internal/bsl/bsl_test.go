package bsl

import "testing"

func TestMatchExactNameWithoutAdvanced(t *testing.T) {
	m := New(false, 2)
	ok := m.Match(File{Name: "Movie.MKV"}, Entry{Filename: "movie.mkv"}, nil)
	if !ok {
		t.Fatal("expected case-insensitive exact name match to succeed")
	}
}

func TestMatchRejectsDifferentNameWithoutAdvanced(t *testing.T) {
	m := New(false, 2)
	ok := m.Match(File{Name: "Movie (1).mkv"}, Entry{Filename: "movie.mkv"}, nil)
	if ok {
		t.Fatal("expected mismatched filenames to not match when advanced matching is off")
	}
}

func TestManualMatchTakesPriorityOverAdvancedScoring(t *testing.T) {
	m := New(true, 4) // threshold unreachable without manual override
	manual := map[string]string{"localfile.mkv": "playlistentry.mkv"}

	ok := m.Match(File{Name: "LocalFile.mkv"}, Entry{Filename: "PlaylistEntry.mkv"}, manual)
	if !ok {
		t.Fatal("expected manual match to override scoring")
	}
}

func TestManualMatchRejectsWhenTargetDiffers(t *testing.T) {
	m := New(false, 1)
	manual := map[string]string{"localfile.mkv": "other.mkv"}

	ok := m.Match(File{Name: "LocalFile.mkv"}, Entry{Filename: "playlistentry.mkv"}, manual)
	if ok {
		t.Fatal("expected manual match pointing elsewhere to reject this entry")
	}
}

func TestAdvancedScoringWithinSizeTolerance(t *testing.T) {
	m := New(true, 3)
	clientFile := File{Name: "ep01.mkv", Size: 100 * 1024 * 1024, Type: "video/x-matroska"}
	entry := Entry{Filename: "ep01.mkv", SizeOnDisk: 100*1024*1024 + 1024*1024} // 1MiB off, within 1.5MiB tolerance

	if !m.Match(clientFile, entry, nil) {
		t.Fatal("expected match: name+ext+size+mime-family all agree")
	}
}

func TestAdvancedScoringOutsideSizeToleranceDropsOneCriterion(t *testing.T) {
	m := New(true, 4) // require all four criteria
	clientFile := File{Name: "ep01.mkv", Size: 100 * 1024 * 1024, Type: "video/x-matroska"}
	entry := Entry{Filename: "ep01.mkv", SizeOnDisk: 100*1024*1024 + 2*1024*1024} // 2MiB off, exceeds tolerance

	if m.Match(clientFile, entry, nil) {
		t.Fatal("expected non-match: size criterion fails, only 3/4 satisfied, threshold is 4")
	}
}

func TestAdvancedScoringMimeFamilyMatchWithoutExactType(t *testing.T) {
	m := New(true, 2)
	clientFile := File{Name: "recording.mov", Type: "video/quicktime; codecs=avc1"}
	entry := Entry{Filename: "clip.mov"}

	// Names differ, but matching extension plus a mime family match
	// (quicktime reports a parameterized type string) reaches threshold 2.
	if !m.Match(clientFile, entry, nil) {
		t.Fatal("expected ext+mime-family to reach threshold 2 despite differing names and a non-exact mime string")
	}
}

func TestNewClampsNonPositiveThresholdToOne(t *testing.T) {
	m := New(true, 0)
	if m.Threshold != 1 {
		t.Fatalf("Threshold = %d, want 1", m.Threshold)
	}
	m = New(true, -5)
	if m.Threshold != 1 {
		t.Fatalf("Threshold = %d, want 1", m.Threshold)
	}
}

func TestAggregateModeAnyRequiresSingleMatch(t *testing.T) {
	reporters := map[string]bool{"a": true, "b": true, "c": true}
	perMember := map[string]bool{"a": false, "b": true, "c": false}

	if !Aggregate(ModeAny, perMember, reporters) {
		t.Fatal("expected any-mode to be active with one match among reporters")
	}
}

func TestAggregateModeAllRequiresEveryReporterMatched(t *testing.T) {
	reporters := map[string]bool{"a": true, "b": true}
	perMember := map[string]bool{"a": true, "b": false}

	if Aggregate(ModeAll, perMember, reporters) {
		t.Fatal("expected all-mode to be inactive when one reporter has not matched")
	}

	perMember["b"] = true
	if !Aggregate(ModeAll, perMember, reporters) {
		t.Fatal("expected all-mode to be active once every reporter has matched")
	}
}

func TestAggregateWithNoReportersIsInactive(t *testing.T) {
	if Aggregate(ModeAny, map[string]bool{}, map[string]bool{}) {
		t.Fatal("expected aggregate with zero reporters to be inactive")
	}
}
