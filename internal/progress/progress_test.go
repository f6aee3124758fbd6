package progress

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		phase string
		want  State
	}{
		{"failed", Failed},
		{"ready", Success},
		{"building", Building},
		{"waiting", Waiting},
		{"pushing", Pushing},
		{"built", Pushing},
		{"launching", Launching},
	}

	for _, tt := range tests {
		t.Run(tt.phase, func(t *testing.T) {
			got, ok := Classify(tt.phase)
			if !ok {
				t.Fatalf("Classify(%q) not recognized", tt.phase)
			}

			if got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.phase, got, tt.want)
			}
		})
	}
}

func TestClassify_Unknown(t *testing.T) {
	for _, phase := range []string{"", "unknown", "READY", "Built", "heartbeat"} {
		if _, ok := Classify(phase); ok {
			t.Errorf("Classify(%q) should not be recognized", phase)
		}
	}
}

func TestTracker_InitialState(t *testing.T) {
	tr := NewTracker()
	if tr.Current() != NotStarted {
		t.Fatalf("expected %v, got %v", NotStarted, tr.Current())
	}

	if tr.Terminal() {
		t.Fatal("new tracker must not be terminal")
	}
}

func TestTracker_AllowsBackwardTransitions(t *testing.T) {
	tr := NewTracker()
	tr.Advance(Launching)

	if !tr.Advance(Building) {
		t.Fatal("expected backward transition to be applied")
	}

	if tr.Current() != Building {
		t.Errorf("expected %v, got %v", Building, tr.Current())
	}
}

func TestTracker_TerminalIsSticky(t *testing.T) {
	for _, terminal := range []State{Success, Failed} {
		t.Run(terminal.String(), func(t *testing.T) {
			tr := NewTracker()
			tr.Advance(Building)
			tr.Advance(terminal)

			for _, next := range []State{Waiting, Building, Pushing, Launching, Success, Failed} {
				if tr.Advance(next) {
					t.Errorf("Advance(%v) applied after %v", next, terminal)
				}
			}

			if tr.Current() != terminal {
				t.Errorf("expected %v, got %v", terminal, tr.Current())
			}
		})
	}
}

func TestTracker_Observers(t *testing.T) {
	tr := NewTracker()

	var seen []State
	tr.Subscribe(func(s State) { seen = append(seen, s) })
	tr.Subscribe(nil)

	tr.Advance(Waiting)
	tr.Advance(Failed)
	tr.Advance(Building)

	want := []State{Waiting, Failed}
	if len(seen) != len(want) {
		t.Fatalf("expected %d notifications, got %d (%v)", len(want), len(seen), seen)
	}

	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("notification %d: expected %v, got %v", i, want[i], seen[i])
		}
	}
}

func TestFraction(t *testing.T) {
	if Fraction(NotStarted) != 0 || Fraction(Failed) != 0 {
		t.Error("expected zero fraction for not started and failed")
	}

	if Fraction(Success) != 1 {
		t.Error("expected full fraction for success")
	}

	prev := 0.0
	for _, s := range Steps() {
		f := Fraction(s)
		if f <= prev || f >= 1 {
			t.Errorf("Fraction(%v) = %v, expected strictly between %v and 1", s, f, prev)
		}

		prev = f
	}
}
