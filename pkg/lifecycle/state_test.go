package lifecycle

import "testing"

func TestControllerFullTransitionSequence(t *testing.T) {
	c := New()
	sequence := []State{StateConnecting, StateSubscribing, StateReady, StateStopping, StateStopped}
	for _, s := range sequence {
		if err := c.Transition(s); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
	if c.State() != StateStopped {
		t.Errorf("final state = %s, want STOPPED", c.State())
	}
}

func TestControllerRejectsSkippedTransition(t *testing.T) {
	c := New()
	if err := c.Transition(StateReady); err == nil {
		t.Fatal("expected error transitioning directly from NEW to READY")
	}
}

func TestControllerIsReady(t *testing.T) {
	c := New()
	c.Transition(StateConnecting)
	c.Transition(StateSubscribing)
	if c.IsReady() {
		t.Fatal("expected not ready before READY transition")
	}
	c.Transition(StateReady)
	if !c.IsReady() {
		t.Fatal("expected ready after READY transition")
	}
}
