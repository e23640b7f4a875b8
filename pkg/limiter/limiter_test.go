package limiter

import (
	"io/ioutil"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"pgregory.net/rapid"
)

var testPolicy = Policy{Capacity: 5, Window: time.Hour}

func BenchmarkTryAcquire(b *testing.B) {
	now := time.Now()
	state := NewRateState(now, testPolicy.Window)

	for i := 0; i < b.N; i++ {
		tryAcquire(testPolicy, &state, now.Add(time.Duration(i)*time.Second))
	}
}

func TestTryAcquire(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		desc      string
		state     RateState
		now       time.Time
		want      bool
		wantState RateState
	}{
		{
			desc:      "new caller opens a window",
			state:     NewRateState(base, time.Hour),
			now:       base,
			want:      true,
			wantState: RateState{Count: 1, WindowStart: base},
		},
		{
			desc:      "inside window below capacity increments without sliding",
			state:     RateState{Count: 2, WindowStart: base},
			now:       base.Add(10 * time.Minute),
			want:      true,
			wantState: RateState{Count: 3, WindowStart: base},
		},
		{
			desc:      "inside window at capacity is denied",
			state:     RateState{Count: 5, WindowStart: base},
			now:       base.Add(59 * time.Minute),
			want:      false,
			wantState: RateState{Count: 5, WindowStart: base},
		},
		{
			desc:      "window elapsed exactly resets",
			state:     RateState{Count: 5, WindowStart: base},
			now:       base.Add(time.Hour),
			want:      true,
			wantState: RateState{Count: 1, WindowStart: base.Add(time.Hour)},
		},
		{
			desc:      "reset uses the triggering call time",
			state:     RateState{Count: 5, WindowStart: base},
			now:       base.Add(3 * time.Hour),
			want:      true,
			wantState: RateState{Count: 1, WindowStart: base.Add(3 * time.Hour)},
		},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			state := tC.state
			got := tryAcquire(testPolicy, &state, tC.now)

			assert.Equal(t, tC.want, got)
			assert.Equal(t, tC.wantState.Count, state.Count)
			assert.T(t, tC.wantState.WindowStart.Equal(state.WindowStart))
		})
	}
}

func TestTryAcquire_DenialsDoNotDelayReset(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	state := RateState{Count: 0, WindowStart: base.Add(-time.Hour)}

	for i := 0; i < 5; i++ {
		assert.T(t, tryAcquire(testPolicy, &state, base.Add(time.Duration(i)*time.Minute)))
	}
	for i := 0; i < 10; i++ {
		assert.T(t, !tryAcquire(testPolicy, &state, base.Add(time.Duration(30+i)*time.Minute)))
	}

	assert.T(t, tryAcquire(testPolicy, &state, base.Add(time.Hour)))
	assert.Equal(t, 1, state.Count)
}

func TestLimiterService_Remaining(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiterService(testPolicy, newNullLogger(), prometheus.NewRegistry())

	state := NewRateState(base, testPolicy.Window)
	assert.Equal(t, 5, l.Remaining(state, base))

	l.TryAcquire("caller", &state, base)
	l.TryAcquire("caller", &state, base.Add(time.Minute))
	assert.Equal(t, 3, l.Remaining(state, base.Add(2*time.Minute)))
	assert.Equal(t, 5, l.Remaining(state, base.Add(time.Hour)))
}

func TestTryAcquire_WindowCapacityProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 10).Draw(rt, "capacity")
		policy := Policy{Capacity: capacity, Window: time.Hour}
		gaps := rapid.SliceOfN(rapid.IntRange(0, 90), 1, 60).Draw(rt, "gapMinutes")

		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		state := NewRateState(base, policy.Window)
		now := base

		var admitted []time.Time
		for _, gap := range gaps {
			now = now.Add(time.Duration(gap) * time.Minute)
			before := state

			if !tryAcquire(policy, &state, now) {
				if state != before {
					rt.Fatalf("denied request mutated state: %+v -> %+v", before, state)
				}
				if now.Sub(before.WindowStart) >= policy.Window {
					rt.Fatalf("request after window expiry was denied")
				}
				continue
			}

			if now.Sub(before.WindowStart) >= policy.Window && state.Count != 1 {
				rt.Fatalf("expired window did not reset counter, got %d", state.Count)
			}
			if state.Count > capacity {
				rt.Fatalf("count %d exceeds capacity %d", state.Count, capacity)
			}
			admitted = append(admitted, now)
		}

		// admissions are grouped into windows that start at a reset; no group
		// holds more than capacity entries
		windowStart := time.Time{}
		inWindow := 0
		for _, at := range admitted {
			if windowStart.IsZero() || at.Sub(windowStart) >= policy.Window {
				windowStart = at
				inWindow = 0
			}
			inWindow++
			if inWindow > capacity {
				rt.Fatalf("%d admissions inside one window, capacity %d", inWindow, capacity)
			}
		}
	})
}

func newNullLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = ioutil.Discard

	return logger
}
