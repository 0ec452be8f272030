package version

import "testing"

func TestCompatible(t *testing.T) {
	cases := []struct {
		theirs, ours string
		want         bool
	}{
		{"1.0.0", "1.0.1", true},
		{"1.0.0", "2.0.0", false},
		{"0.1.0", "0.2.0", false},
		{"0.1.0", "0.1.5", true},
		{"2.3.4", "2.9.0", true},
	}
	for _, c := range cases {
		got, err := Compatible(c.theirs, c.ours)
		if err != nil {
			t.Fatalf("Compatible(%s, %s) error: %v", c.theirs, c.ours, err)
		}
		if got != c.want {
			t.Errorf("Compatible(%s, %s) = %v, want %v", c.theirs, c.ours, got, c.want)
		}
	}
}

func TestCompatibleRejectsMalformed(t *testing.T) {
	if _, err := Compatible("not-a-version", "1.0.0"); err == nil {
		t.Fatal("expected error for malformed peer version")
	}
}
