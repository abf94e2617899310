package syncutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardedMutex_SerializesSameKey(t *testing.T) {
	var locks ShardedMutex
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("creator_1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestShardedMutex_DistinctKeysDoNotBlock(t *testing.T) {
	var locks ShardedMutex

	// These two keys hash to different shards, so holding one must not
	// block the other.
	unlock := locks.Lock("payment_1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		u := locks.Lock("withdrawal_9")
		u()
		close(done)
	}()
	<-done
}
