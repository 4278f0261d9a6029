package job

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUnknownAsset(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Get("missing")
	assert.False(t, ok)
}

func TestBeginIsIdempotentPerAsset(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Begin("asset-1"))
	assert.False(t, r.Begin("asset-1"), "duplicate hand-off must not win")

	st, ok := r.Get("asset-1")
	require.True(t, ok)
	assert.Equal(t, StateProcessing, st.State)
}

func TestCompletedStateIsTerminal(t *testing.T) {
	r := NewRegistry()
	r.Begin("asset-1")

	urls := []string{"/asset-1/see1.mp4", "/asset-1/see2.mp4"}
	r.Complete("asset-1", urls)
	r.Fail("asset-1", "late failure must be ignored")

	st, ok := r.Get("asset-1")
	require.True(t, ok)
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, urls, st.SegmentURLs)
}

func TestFailedStateIsTerminalAndCarriesNoURLs(t *testing.T) {
	r := NewRegistry()
	r.Begin("asset-1")

	r.Fail("asset-1", "segmentation timed out")
	r.Complete("asset-1", []string{"/asset-1/see1.mp4"})

	st, ok := r.Get("asset-1")
	require.True(t, ok)
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, "segmentation timed out", st.Message)
	assert.Empty(t, st.SegmentURLs)
}

func TestConcurrentAssetsDoNotInterfere(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("asset-%d", i)
			assert.True(t, r.Begin(id))
			if i%2 == 0 {
				r.Complete(id, []string{"/" + id + "/see1.mp4"})
			} else {
				r.Fail(id, "boom")
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 64; i++ {
		id := fmt.Sprintf("asset-%d", i)
		st, ok := r.Get(id)
		require.True(t, ok, id)
		assert.True(t, st.State.Terminal(), id)
		if st.State == StateFailed {
			assert.Empty(t, st.SegmentURLs, id)
		}
	}
}
