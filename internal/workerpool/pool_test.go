package workerpool_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dreamware/containersharder/internal/workerpool"
)

func TestWaitBlocksUntilAllTasksFinish(t *testing.T) {
	pool := workerpool.New(4)
	var done int32

	for i := 0; i < 10; i++ {
		pool.Spawn(func() error {
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&done, 1)
			return nil
		})
	}

	errs := pool.Wait()
	assert.Empty(t, errs)
	assert.EqualValues(t, 10, atomic.LoadInt32(&done))
}

func TestWaitCollectsErrors(t *testing.T) {
	pool := workerpool.New(2)
	boom := errors.New("boom")

	pool.Spawn(func() error { return nil })
	pool.Spawn(func() error { return boom })
	pool.Spawn(func() error { return boom })

	errs := pool.Wait()
	assert.Len(t, errs, 2)
}

func TestConcurrencyIsBounded(t *testing.T) {
	pool := workerpool.New(2)
	var current, max int32

	for i := 0; i < 20; i++ {
		pool.Spawn(func() error {
			n := atomic.AddInt32(&current, 1)
			for {
				m := atomic.LoadInt32(&max)
				if n <= m || atomic.CompareAndSwapInt32(&max, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&current, -1)
			return nil
		})
	}
	pool.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&max), int32(2))
}

func TestPoolIsReusableAcrossRounds(t *testing.T) {
	pool := workerpool.New(3)

	pool.Spawn(func() error { return errors.New("first round") })
	first := pool.Wait()
	assert.Len(t, first, 1)

	pool.Spawn(func() error { return nil })
	second := pool.Wait()
	assert.Empty(t, second)
}
