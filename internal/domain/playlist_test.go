package domain

import "testing"

func TestNewPlaylistStartsUnstarted(t *testing.T) {
	p := NewPlaylist()
	if p.CurrentIndex != -1 {
		t.Fatalf("CurrentIndex = %d, want -1", p.CurrentIndex)
	}
	if p.MainVideoIndex != -1 {
		t.Fatalf("MainVideoIndex = %d, want -1", p.MainVideoIndex)
	}
	if _, ok := p.Current(); ok {
		t.Fatal("Current() on empty playlist should report ok=false")
	}
}

func TestCurrentReturnsEntryAtValidIndex(t *testing.T) {
	p := Playlist{
		Videos:       []Entry{{Filename: "a.mp4"}, {Filename: "b.mp4"}},
		CurrentIndex: 1,
	}
	entry, ok := p.Current()
	if !ok {
		t.Fatal("expected ok=true")
	}
	if entry.Filename != "b.mp4" {
		t.Fatalf("Filename = %q, want b.mp4", entry.Filename)
	}
}

func TestIndexValidBounds(t *testing.T) {
	p := Playlist{Videos: []Entry{{}, {}, {}}}

	cases := []struct {
		idx  int
		want bool
	}{
		{-1, false},
		{0, true},
		{2, true},
		{3, false},
		{100, false},
	}
	for _, c := range cases {
		if got := p.IndexValid(c.idx); got != c.want {
			t.Errorf("IndexValid(%d) = %v, want %v", c.idx, got, c.want)
		}
	}
}
