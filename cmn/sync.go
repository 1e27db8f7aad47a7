package cmn

import "sync"

// DynSemaphore implements a semaphore whose size can change during use.
type DynSemaphore struct {
	size int
	cur  int
	c    *sync.Cond
	mu   sync.Mutex
}

func NewDynSemaphore(n int) *DynSemaphore {
	sema := &DynSemaphore{size: n}
	sema.c = sync.NewCond(&sema.mu)
	return sema
}

func (s *DynSemaphore) Size() int {
	s.mu.Lock()
	size := s.size
	s.mu.Unlock()
	return size
}

func (s *DynSemaphore) SetSize(n int) {
	Assert(n >= 1)
	s.mu.Lock()
	s.size = n
	s.mu.Unlock()
}

func (s *DynSemaphore) Acquire() {
	s.mu.Lock()
	for s.cur+1 > s.size {
		s.c.Wait()
	}
	s.cur++
	s.mu.Unlock()
}

func (s *DynSemaphore) Release() {
	s.mu.Lock()
	Assert(s.cur >= 1)
	s.cur--
	s.c.Signal()
	s.mu.Unlock()
}

// LimitedWaitGroup combines a sync.WaitGroup with a DynSemaphore to cap
// the number of goroutines in flight at once. Used wherever the contract
// is "at most max_concurrency operations in flight," rather than "all N
// at once."
type LimitedWaitGroup struct {
	wg   *sync.WaitGroup
	sema *DynSemaphore
}

func NewLimitedWaitGroup(n int) *LimitedWaitGroup {
	if n < 1 {
		n = 1
	}
	return &LimitedWaitGroup{wg: &sync.WaitGroup{}, sema: NewDynSemaphore(n)}
}

// Add blocks until a slot is free, then reserves it and increments the
// wait group. Call Done to release the slot.
func (lwg *LimitedWaitGroup) Add() {
	lwg.sema.Acquire()
	lwg.wg.Add(1)
}

func (lwg *LimitedWaitGroup) Done() {
	lwg.wg.Done()
	lwg.sema.Release()
}

func (lwg *LimitedWaitGroup) Wait() {
	lwg.wg.Wait()
}
