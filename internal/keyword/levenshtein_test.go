package keyword

import "testing"

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "光影", 2},
		{"kitten", "sitting", 3},
		{"光影回廊", "光影回廊", 0},
		{"光影回廊", "光影长廊", 1},
		{"演示", "演示作品", 2},
		{"声之森", "森之声", 2},
	}
	for _, tt := range tests {
		if got := EditDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("EditDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if got := EditDistance(tt.b, tt.a); got != tt.want {
			t.Errorf("EditDistance(%q, %q) = %d, want %d (symmetry)", tt.b, tt.a, got, tt.want)
		}
	}
}

func TestNameAccepts(t *testing.T) {
	tests := []struct {
		query, name string
		want        bool
	}{
		{"演示", "演示作品", true},
		{"光影长廊", "光影回廊", true},
		{"灯", "悬浮之灯光装置", false},
		{"ab", "ac", true},
		{"a", "b", true},
	}
	for _, tt := range tests {
		if got := nameAccepts(tt.query, tt.name); got != tt.want {
			t.Errorf("nameAccepts(%q, %q) = %v, want %v", tt.query, tt.name, got, tt.want)
		}
	}
}
