package backoff

import (
	"testing"
	"time"
)

func TestDelayZeroRetriesIsBasePlusJitter(t *testing.T) {
	p := Default
	// retryCount=0 still carries jitter but the base component is 1x Base.
	d := p.Delay(0)
	if d < 0 || d > p.Base+p.MaxJitter {
		t.Fatalf("delay(0)=%v out of expected range [0, %v]", d, p.Base+p.MaxJitter)
	}
}

func TestDelayMonotonicUntilCap(t *testing.T) {
	p := Policy{Base: 1000 * time.Millisecond, Max: 30000 * time.Millisecond, MaxJitter: 0}

	prev := p.Delay(0)
	for n := 1; n <= 6; n++ {
		d := p.Delay(n)
		if d < prev && d != p.Max {
			t.Fatalf("delay(%d)=%v is not >= delay(%d)=%v and not capped", n, d, n-1, prev)
		}
		prev = d
	}
}

func TestDelaySaturatesAtMax(t *testing.T) {
	p := Policy{Base: 1000 * time.Millisecond, Max: 30000 * time.Millisecond, MaxJitter: 1000 * time.Millisecond}
	d := p.Delay(10)
	if d > p.Max+p.MaxJitter {
		t.Fatalf("delay(10)=%v exceeds Max+MaxJitter=%v", d, p.Max+p.MaxJitter)
	}
	if d < p.Max {
		t.Fatalf("delay(10)=%v expected to have saturated at Max=%v (plus jitter)", d, p.Max)
	}
}

func TestEligibleAtZeroRetriesIsImmediate(t *testing.T) {
	p := Default
	if !p.IsEligible(time.Now(), 0, time.Now()) {
		t.Fatal("retry_count=0 must be immediately eligible")
	}
}

func TestEligibleAtRespectsBackoffWindow(t *testing.T) {
	p := Policy{Base: 1000 * time.Millisecond, Max: 30000 * time.Millisecond, MaxJitter: 0}
	last := time.Now()

	if p.IsEligible(last, 1, last) {
		t.Fatal("item should not be eligible immediately after a failed attempt")
	}
	if !p.IsEligible(last, 1, last.Add(2*time.Second)) {
		t.Fatal("item should be eligible after its backoff window elapses")
	}
}
