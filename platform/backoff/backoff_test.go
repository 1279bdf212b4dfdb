package backoff

import (
	"testing"
	"time"
)

func TestExponentialDoublesPerAttempt(t *testing.T) {
	s := NewExponential(time.Second, time.Minute)

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
	}
	for _, tc := range cases {
		if got := s.Delay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: got %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestExponentialCapsAtMax(t *testing.T) {
	s := NewExponential(time.Second, 10*time.Second)

	if got := s.Delay(30); got != 10*time.Second {
		t.Fatalf("expected cap at 10s, got %v", got)
	}
}

func TestExponentialClampsLowAttempts(t *testing.T) {
	s := NewExponential(time.Second, time.Minute)

	if got := s.Delay(0); got != time.Second {
		t.Fatalf("attempt 0 should clamp to attempt 1, got %v", got)
	}
	if got := s.Delay(-3); got != time.Second {
		t.Fatalf("negative attempt should clamp to attempt 1, got %v", got)
	}
}

func TestJitterStaysWithinBase(t *testing.T) {
	s := NewExponentialWithJitter(time.Second, time.Minute)

	for attempt := 1; attempt <= 6; attempt++ {
		base := time.Second << (attempt - 1)
		for i := 0; i < 100; i++ {
			d := s.Delay(attempt)
			if d < 0 || d > base {
				t.Fatalf("attempt %d: delay %v outside [0, %v]", attempt, d, base)
			}
		}
	}
}

func TestJitterRespectsMax(t *testing.T) {
	s := NewExponentialWithJitter(time.Second, 5*time.Second)

	for i := 0; i < 200; i++ {
		if d := s.Delay(20); d > 5*time.Second {
			t.Fatalf("delay %v exceeds configured max", d)
		}
	}
}
