package flow

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexSerialisesPerKey(t *testing.T) {
	k := newKeyedMutex()
	counters := make([]int, 4)
	var wg sync.WaitGroup
	for i := 0; i < 400; i++ {
		key := int64(i % 4)
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(key)
			counters[key]++
			unlock()
		}()
	}
	wg.Wait()

	for key := int64(0); key < 4; key++ {
		assert.Equal(t, 100, counters[key])
	}
	assert.Equal(t, 0, k.size(), "idle keys are released")
}
