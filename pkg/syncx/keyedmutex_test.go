package syncx

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("session-a")
			defer km.Unlock("session-a")
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	km.Lock("a")

	done := make(chan struct{})
	go func() {
		// 持有 a 不应阻塞 b
		km.Lock("b")
		km.Unlock("b")
		close(done)
	}()

	<-done
	km.Unlock("a")
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	km := NewKeyedMutex()
	km.Lock("x")
	km.Unlock("x")

	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.locks, "释放后不应残留条目")
}

func TestKeyedMutexUnlockUnheldPanics(t *testing.T) {
	km := NewKeyedMutex()
	assert.Panics(t, func() { km.Unlock("never-locked") })
}
