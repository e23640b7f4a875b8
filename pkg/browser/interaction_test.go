package browser

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRandomScroll_Simulate(t *testing.T) {
	testCases := []struct {
		desc      string
		scrollErr error
		sleepErr  error
		wantKind  ErrorKind
	}{
		{
			desc: "scrolls and pauses",
		},
		{
			desc:      "scroll failure is an interaction error",
			scrollErr: errors.New("page gone"),
			wantKind:  KindInteraction,
		},
		{
			desc:     "interrupted pause is an interaction error",
			sleepErr: context.Canceled,
			wantKind: KindInteraction,
		},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			// arrange
			session := new(sessionMock)
			session.On("Scroll", mock.Anything, mock.AnythingOfType("float64")).Return(tC.scrollErr)

			var slept time.Duration
			sleep := func(ctx context.Context, d time.Duration) error {
				slept = d
				return tC.sleepErr
			}

			cfg := ScrollConfig{MinScroll: 100, MaxScroll: 500, MinPause: time.Second, MaxPause: 2 * time.Second}
			policy := NewRandomScroll(cfg, NewJitter(7), sleep)

			// act
			err := policy.Simulate(context.Background(), session)

			// assert
			if tC.wantKind == "" {
				require.NoError(t, err)
				offset := session.Calls[0].Arguments.Get(1).(float64)
				assert.GreaterOrEqual(t, offset, 100.0)
				assert.LessOrEqual(t, offset, 500.0)
				assert.GreaterOrEqual(t, slept, time.Second)
				assert.LessOrEqual(t, slept, 2*time.Second)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tC.wantKind, KindOf(err, ""))
		})
	}
}

func TestNavigationError(t *testing.T) {
	timeout := NavigationError(fmt.Errorf("navigate: %w", context.DeadlineExceeded))
	assert.Equal(t, KindNavigationTimeout, KindOf(timeout, ""))
	assert.True(t, errors.Is(timeout, context.DeadlineExceeded))

	other := NavigationError(errors.New("net::ERR_PROXY_CONNECTION_FAILED"))
	assert.Equal(t, KindNavigation, KindOf(other, ""))
}

func TestKindOf_Fallback(t *testing.T) {
	assert.Equal(t, KindNavigation, KindOf(errors.New("plain"), KindNavigation))
	assert.Equal(t, KindSessionCreation, KindOf(errors.Wrap(SessionCreationError(errors.New("boom")), "ctx"), ""))
}

func TestJitter_Ranges(t *testing.T) {
	j := NewJitter(1)
	for i := 0; i < 1000; i++ {
		d := j.Duration(time.Second, 3*time.Second)
		assert.True(t, d >= time.Second && d <= 3*time.Second, d)

		n := j.IntRange(3, 5)
		assert.True(t, n >= 3 && n <= 5, n)
	}
	assert.Equal(t, time.Second, j.Duration(time.Second, time.Second))
	assert.Equal(t, 4, j.IntRange(4, 2))
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)

	assert.Equal(t, context.Canceled, err)
	assert.Less(t, time.Since(start), time.Second)
}

type sessionMock struct {
	mock.Mock
}

func (s *sessionMock) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	args := s.Called(ctx, url, timeout)
	return args.Error(0)
}

func (s *sessionMock) Scroll(ctx context.Context, offsetY float64) error {
	args := s.Called(ctx, offsetY)
	return args.Error(0)
}

func (s *sessionMock) Close() error {
	args := s.Called()
	return args.Error(0)
}
