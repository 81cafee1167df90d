package people

import "testing"

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Jan Novák", "jan novak"},
		{"jan-novak", "jan novak"},
		{"jan_novak", "jan novak"},
		{"  Jan   Novák ", "jan novak"},
		{"Jiří", "jiri"},
		{"", ""},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := NormalizeKey(tc.input); got != tc.want {
				t.Errorf("NormalizeKey(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestNormalizeKey_SlugMatchesDisplayName(t *testing.T) {
	if NormalizeKey("marie-svobodova") != NormalizeKey("Marie Svobodová") {
		t.Error("slug and display name do not normalize to the same key")
	}
}
