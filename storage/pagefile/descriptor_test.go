package pagefile

import "testing"

func TestChunkDescriptorValid(t *testing.T) {
	cases := []struct {
		name string
		desc ChunkDescriptor
		want bool
	}{
		{"zero value is invalid", ChunkDescriptor{}, false},
		{"sentinel start is invalid", ChunkDescriptor{StartPageIdx: InvalidPageIdx, NumPages: 1}, false},
		{"zero length is invalid", ChunkDescriptor{StartPageIdx: 0, NumPages: 0}, false},
		{"real range is valid", ChunkDescriptor{StartPageIdx: 3, NumPages: 2}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.desc.Valid(); got != c.want {
				t.Errorf("Valid() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestChunkDescriptorEnd(t *testing.T) {
	d := ChunkDescriptor{StartPageIdx: 10, NumPages: 5}
	if got := d.End(); got != 15 {
		t.Errorf("End() = %d, want 15", got)
	}
}

func TestChunkDescriptorOverlaps(t *testing.T) {
	base := ChunkDescriptor{StartPageIdx: 10, NumPages: 5} // [10,15)

	cases := []struct {
		name  string
		other ChunkDescriptor
		want  bool
	}{
		{"identical range overlaps", base, true},
		{"adjacent before does not overlap", ChunkDescriptor{StartPageIdx: 5, NumPages: 5}, false},  // [5,10)
		{"adjacent after does not overlap", ChunkDescriptor{StartPageIdx: 15, NumPages: 5}, false},   // [15,20)
		{"straddling start overlaps", ChunkDescriptor{StartPageIdx: 8, NumPages: 4}, true},           // [8,12)
		{"straddling end overlaps", ChunkDescriptor{StartPageIdx: 12, NumPages: 4}, true},            // [12,16)
		{"contained within overlaps", ChunkDescriptor{StartPageIdx: 11, NumPages: 1}, true},          // [11,12)
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := base.Overlaps(c.other); got != c.want {
				t.Errorf("Overlaps(%+v) = %v, want %v", c.other, got, c.want)
			}
			if got := c.other.Overlaps(base); got != c.want {
				t.Errorf("Overlaps symmetry failed for %+v", c.other)
			}
		})
	}
}
