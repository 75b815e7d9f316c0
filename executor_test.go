package starscream

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialExecutorOrder(t *testing.T) {
	t.Parallel()

	e := &serialExecutor{}

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	const n = 1000
	for i := 0; i < n; i++ {
		i := i
		e.Execute(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == n-1 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for executor to drain")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, n)
	for i, v := range got {
		if i != v {
			t.Fatalf("callback %v ran out of order as %v", v, i)
		}
	}
}

func TestExecutorFunc(t *testing.T) {
	t.Parallel()

	ran := false
	e := ExecutorFunc(func(fn func()) { fn() })
	e.Execute(func() { ran = true })
	assert.True(t, ran)
}

func TestErrorString(t *testing.T) {
	t.Parallel()

	err := &Error{Code: ErrCodeOutputStreamWrite, Reason: "write failed"}
	assert.Contains(t, err.Error(), ErrorDomain)
	assert.Contains(t, err.Error(), "write failed")

	wrapped := &Error{Code: 403, Reason: "handshake rejected", Err: assert.AnError}
	assert.ErrorIs(t, wrapped, assert.AnError)
}
