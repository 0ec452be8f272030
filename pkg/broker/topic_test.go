package broker

import "testing"

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		topic, pattern string
		want           bool
	}{
		{"acme/f/s/svc/userspace", "acme/f/s/svc/userspace", true},
		{"acme/f/s/svc/userspace", "acme/f/s/+/userspace", true},
		{"acme/f/s/svc/events/started", "acme/f/s/svc/events/#", true},
		{"acme/f/s/svc/events", "acme/f/s/svc/events/#", true},
		{"acme/f/s/svc/userspace", "acme/f/other/+/userspace", false},
		{"acme/f/s/svc/userspace", "acme/f/s/svc", false},
	}
	for _, c := range cases {
		if got := MatchTopic(c.topic, c.pattern); got != c.want {
			t.Errorf("MatchTopic(%q, %q) = %v, want %v", c.topic, c.pattern, got, c.want)
		}
	}
}
