package identity

import "testing"

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"acme.plant1.mfg.line2.packer",
		"acme.plant1.mfg.packer",
	}
	for _, in := range cases {
		h, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", in, err)
		}
		got, err := FromTopic(h.ToTopic())
		if err != nil {
			t.Fatalf("FromTopic(%q) error: %v", h.ToTopic(), err)
		}
		if !got.Equal(h) {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, h)
		}
	}
}

func TestParseRejectsBadLabels(t *testing.T) {
	cases := []string{
		"Acme.plant1.mfg.packer", // uppercase
		"acme.plant1.mfg",        // too few labels
		"acme.plant1.mfg.line2.sub.packer",
		"-acme.plant1.mfg.packer",
	}
	for _, in := range cases {
		if _, err := Parse(in); err == nil {
			t.Fatalf("Parse(%q) expected error, got nil", in)
		}
	}
}

func TestSubsystemOmittedRendersDash(t *testing.T) {
	h, err := Parse("acme.plant1.mfg.packer")
	if err != nil {
		t.Fatal(err)
	}
	want := "acme/plant1/mfg/-/packer"
	if got := h.ToTopic(); got != want {
		t.Fatalf("ToTopic() = %q, want %q", got, want)
	}
}

func TestInboxReplyLifecycleTopics(t *testing.T) {
	h, _ := Parse("acme.plant1.mfg.line2.packer")
	if h.InboxTopic() != "acme/plant1/mfg/line2/packer/userspace" {
		t.Fatalf("unexpected inbox topic: %s", h.InboxTopic())
	}
	if h.ReplyTopic() != "acme/plant1/mfg/line2/packer/reply" {
		t.Fatalf("unexpected reply topic: %s", h.ReplyTopic())
	}
	if h.LifecycleTopic() != "acme/plant1/mfg/line2/packer/lifecycle" {
		t.Fatalf("unexpected lifecycle topic: %s", h.LifecycleTopic())
	}
	if got := h.EventTopic("Conveyor", "jam"); got != "acme/plant1/mfg/line2/packer/events/Conveyor/jam" {
		t.Fatalf("unexpected event topic: %s", got)
	}
}
