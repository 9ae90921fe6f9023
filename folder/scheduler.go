package folder

import (
	"sync"
	"time"

	"github.com/creativeprojects/imapview/lib"
)

// Scheduler runs delayed tasks on a shared timer. A failing or panicking
// task is logged and consumed so it can never poison the scheduler for
// the tasks behind it.
//
// Like the status cache, it is owned by the Service: started at server
// start, stopped at server stop.
type Scheduler struct {
	delay   time.Duration
	log     lib.Logger
	mu      sync.Mutex
	stopped bool
	timers  map[*time.Timer]bool
	wg      sync.WaitGroup
}

func NewScheduler(delay time.Duration, logger lib.Logger) *Scheduler {
	if logger == nil {
		logger = &lib.NoLog{}
	}
	return &Scheduler{
		delay:  delay,
		log:    logger,
		timers: make(map[*time.Timer]bool),
	}
}

// Delay returns the configured task delay.
func (s *Scheduler) Delay() time.Duration {
	return s.delay
}

// Schedule queues a task to run once after the configured delay.
func (s *Scheduler) Schedule(name string, task func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.log.Printf("scheduler: dropping task %q, scheduler is stopped", name)
		return
	}
	s.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(s.delay, func() {
		defer s.wg.Done()
		defer func() {
			if recovered := recover(); recovered != nil {
				s.log.Printf("scheduler: task %q panicked: %v", name, recovered)
			}
			s.mu.Lock()
			delete(s.timers, timer)
			s.mu.Unlock()
		}()
		if err := task(); err != nil {
			s.log.Printf("scheduler: task %q failed: %v", name, err)
		}
	})
	s.timers[timer] = true
}

// Stop cancels pending tasks and waits for running ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for timer := range s.timers {
		if timer.Stop() {
			// the task will never run
			s.wg.Done()
		}
		delete(s.timers, timer)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
