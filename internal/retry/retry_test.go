package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/five82/shelf/internal/api"
	"github.com/google/go-cmp/cmp"
)

var errBoom = errors.New("boom")

// recordSleeps swaps the policy's sleep for one that only records delays.
func recordSleeps(p *Policy) *[]time.Duration {
	var delays []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return &delays
}

func TestInvalidPolicy(t *testing.T) {
	testCases := []struct {
		name   string
		policy Policy
	}{
		{name: "negative retries", policy: Policy{MaxRetries: -1, BaseDelay: time.Second}},
		{name: "negative delay", policy: Policy{MaxRetries: 1, BaseDelay: -time.Second}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Do(context.Background(), tc.policy, func(context.Context) (int, error) {
				t.Error("Do invoked fn with an invalid policy")
				return 0, nil
			})
			if !errors.Is(err, ErrInvalidPolicy) {
				t.Fatalf("Do error = %v, want ErrInvalidPolicy", err)
			}
		})
	}
}

func TestDo_BackoffDelays(t *testing.T) {
	p := Default()
	delays := recordSleeps(&p)

	attempts := 0
	_, err := Do(context.Background(), p, func(context.Context) (string, error) {
		attempts++
		return "", errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("Do error = %v, want last error", err)
	}
	if attempts != 4 {
		t.Fatalf("attempts = %d, want 4", attempts)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if diff := cmp.Diff(want, *delays); diff != "" {
		t.Fatalf("delays mismatch (-want +got):\n%s", diff)
	}
}

func TestDo_ReturnsLastError(t *testing.T) {
	p := Policy{MaxRetries: 2, BaseDelay: time.Millisecond}
	recordSleeps(&p)

	errs := []error{errors.New("first"), errors.New("second"), errors.New("third")}
	attempts := 0
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		e := errs[attempts]
		attempts++
		return 0, e
	})
	if err != errs[2] {
		t.Fatalf("Do error = %v, want %v", err, errs[2])
	}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	p := Default()
	delays := recordSleeps(&p)

	attempts := 0
	got, err := Do(context.Background(), p, func(context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errBoom
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if got != 42 {
		t.Fatalf("Do = %d, want 42", got)
	}
	if len(*delays) != 2 {
		t.Fatalf("slept %d times, want 2", len(*delays))
	}
}

func TestDo_ShouldRetryDeclines(t *testing.T) {
	p := Default()
	p.ShouldRetry = Transient
	recordSleeps(&p)

	attempts := 0
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		attempts++
		return 0, &api.Error{Kind: api.KindConflict, Status: 409}
	})
	if api.KindOf(err) != api.KindConflict {
		t.Fatalf("Do error = %v, want conflict", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestDo_StopsOnCancellation(t *testing.T) {
	p := Default()
	recordSleeps(&p)

	attempts := 0
	_, err := Do(context.Background(), p, func(context.Context) (int, error) {
		attempts++
		return 0, api.ErrCanceled
	})
	if !api.IsCanceled(err) {
		t.Fatalf("Do error = %v, want canceled", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestDo_CancelDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxRetries: 3, BaseDelay: time.Hour}

	attempts := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, p, func(context.Context) (int, error) {
			attempts++
			return 0, errBoom
		})
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !api.IsCanceled(err) {
			t.Fatalf("Do error = %v, want canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestTransient(t *testing.T) {
	for kind, want := range map[api.Kind]bool{
		api.KindTimeout:            true,
		api.KindNetworkError:       true,
		api.KindServiceUnavailable: true,
		api.KindServerError:        true,
		api.KindRateLimited:        true,
		api.KindValidation:         false,
		api.KindUnauthorized:       false,
	} {
		if got := Transient(&api.Error{Kind: kind}); got != want {
			t.Errorf("Transient(%v) = %v, want %v", kind, got, want)
		}
	}
}
