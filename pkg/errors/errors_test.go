package errors

import (
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	derived := ErrNotFound.WithDetail("message_id", "msg-1")

	assert.Empty(t, ErrNotFound.Details, "sentinel must stay clean")
	assert.Equal(t, "msg-1", derived.Details["message_id"])

	again := ErrNotFound.WithDetail("message_id", "msg-2")
	assert.Equal(t, "msg-1", derived.Details["message_id"])
	assert.Equal(t, "msg-2", again.Details["message_id"])
}

func TestWithCauseDoesNotShareDetails(t *testing.T) {
	base := NewError("REPLAY_FAILED", "replay failed", http.StatusBadGateway).
		WithDetail("queue", "orders-dlq")

	wrapped := base.WithCause(errors.New("send failed")).
		WithDetail("message_id", "msg-1")

	assert.Len(t, base.Details, 1)
	assert.Len(t, wrapped.Details, 2)
	assert.Equal(t, "orders-dlq", wrapped.Details["queue"])
}

func TestWithDetailConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = ErrNotFound.WithDetail("message_id", "m")
				_ = ErrInternal.WithDetail("panic", true)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, ErrNotFound.Details)
	assert.Empty(t, ErrInternal.Details)
}

func TestToErrorResponseOmitsForeignDetails(t *testing.T) {
	_ = ErrInternal.WithDetail("stack_trace", "goroutine 1 [running]")

	resp := ToErrorResponse(errors.New("boom"))
	require.Equal(t, "INTERNAL_ERROR", resp["error_code"])
	assert.NotContains(t, resp, "details")
}
