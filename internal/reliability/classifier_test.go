package reliability

import (
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		if !IsRetryableHTTPStatus(code) {
			t.Fatalf("status %d should be retryable", code)
		}
	}
	for _, code := range []int{200, 204, 400, 401, 403, 404} {
		if IsRetryableHTTPStatus(code) {
			t.Fatalf("status %d should not be retryable", code)
		}
	}
}

func TestExponentialBackoffCaps(t *testing.T) {
	base := time.Second
	cap := 30 * time.Second

	if got := ExponentialBackoff(0, base, cap); got != base {
		t.Fatalf("attempt 0 = %s, want %s", got, base)
	}
	if got := ExponentialBackoff(2, base, cap); got != 4*time.Second {
		t.Fatalf("attempt 2 = %s, want 4s", got)
	}
	if got := ExponentialBackoff(20, base, cap); got != cap {
		t.Fatalf("attempt 20 = %s, want cap %s", got, cap)
	}
}
