package bar

import "testing"

func TestParseInterval(t *testing.T) {
	for _, iv := range Intervals {
		got, err := ParseInterval(string(iv))
		if err != nil {
			t.Fatalf("ParseInterval(%q): %v", iv, err)
		}
		if got != iv {
			t.Errorf("ParseInterval(%q) = %q", iv, got)
		}
	}

	if _, err := ParseInterval("week"); err == nil {
		t.Error("expected error for unsupported interval")
	}
}
