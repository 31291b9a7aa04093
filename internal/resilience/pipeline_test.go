package resilience

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "paygate.backend/internal/domain/errors"
)

func testConfig() Config {
	return Config{
		BreakerMaxRequests:  1,
		BreakerInterval:     time.Second,
		BreakerTimeout:      20 * time.Millisecond,
		BreakerFailureRatio: 0.5,
		RetryMaxAttempts:    3,
		RetryBaseDelay:      time.Millisecond,
		RetryMaxDelay:       5 * time.Millisecond,
		CallTimeout:         50 * time.Millisecond,
	}
}

func TestDo_SucceedsWithoutRetry(t *testing.T) {
	p := New(testConfig(), nil)
	var calls int32

	err := p.Do(context.Background(), "stripe", "default", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	require.NoError(t, err)
	assert.EqualValues(t, 1, calls)
}

func TestDo_RetriesTransientFailures(t *testing.T) {
	p := New(testConfig(), nil)
	var calls int32

	err := p.Do(context.Background(), "stripe", "default", func(ctx context.Context) error {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return errors.New("transient network error")
		}
		return nil
	})

	require.NoError(t, err)
	assert.EqualValues(t, 3, calls)
}

func TestDo_DoesNotRetryPermanentErrors(t *testing.T) {
	p := New(testConfig(), nil)
	var calls int32

	err := p.Do(context.Background(), "stripe", "default", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return domainerrors.Validation("bad request")
	})

	assert.Error(t, err)
	assert.EqualValues(t, 1, calls)
}

func TestDo_DoesNotRetryProviderHTTP4xx(t *testing.T) {
	p := New(testConfig(), nil)
	var calls int32

	err := p.Do(context.Background(), "stripe", "default", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return domainerrors.ProviderHTTPError(http.StatusBadRequest, "stripe", `{"error":"bad request"}`)
	})

	assert.Error(t, err)
	assert.EqualValues(t, 1, calls, "a 4xx provider response must never be retried")
}

func TestDo_RetriesProviderHTTP5xx(t *testing.T) {
	p := New(testConfig(), nil)
	var calls int32

	err := p.Do(context.Background(), "stripe", "default", func(ctx context.Context) error {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return domainerrors.ProviderHTTPError(http.StatusBadGateway, "stripe", "upstream down")
		}
		return nil
	})

	require.NoError(t, err)
	assert.EqualValues(t, 3, calls, "a 5xx provider response must be retried")
}

func TestDo_TripsBreakerAfterRepeatedFailures(t *testing.T) {
	cfg := testConfig()
	cfg.RetryMaxAttempts = 0
	p := New(cfg, nil)

	alwaysFail := func(ctx context.Context) error {
		return domainerrors.NewAppError(http.StatusBadGateway, domainerrors.CodeProviderUnavailable, "upstream error", errors.New("upstream error"))
	}

	for i := 0; i < 5; i++ {
		_ = p.Do(context.Background(), "stripe", "default", alwaysFail)
	}

	err := p.Do(context.Background(), "stripe", "default", alwaysFail)
	assert.Error(t, err)
}

func TestDo_DistinctBreakersPerRegion(t *testing.T) {
	p := New(testConfig(), nil)

	cbDefault := p.breakerFor("stripe", "default")
	cbEU := p.breakerFor("stripe", "eu")
	cbOther := p.breakerFor("paypal", "default")

	assert.NotSame(t, cbDefault, cbEU)
	assert.NotSame(t, cbDefault, cbOther)
	assert.Same(t, cbDefault, p.breakerFor("stripe", "default"))
}
