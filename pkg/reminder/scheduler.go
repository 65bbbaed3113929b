// Package reminder nudges conversations that went quiet before checkout.
// Each phone has at most one pending timer; any inbound event re-arms it.
package reminder

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const reminderText = "Hi! Noticed you were browsing our store. If you'd like updates on new " +
	"arrivals and offers, just reply with your name and email."

// Notifier is the outbound message surface the scheduler needs.
type Notifier interface {
	SendText(ctx context.Context, to, body string) error
}

// Scheduler runs the per-phone idle state machine:
// Idle -> TimerArmed -> Reminded -> Completed. Completed is terminal; there
// is no way back to Idle.
type Scheduler struct {
	notifier Notifier
	logger   *zap.Logger
	delay    time.Duration

	mu        sync.Mutex
	timers    map[string]*time.Timer
	gen       map[string]uint64
	reminded  map[string]bool
	completed map[string]bool
	// resolved is reserved for conversations closed by support; nothing
	// transitions into it yet.
	resolved map[string]bool

	stopped bool
}

func NewScheduler(notifier Notifier, delay time.Duration, logger *zap.Logger) *Scheduler {
	if delay <= 0 {
		delay = 30 * time.Minute
	}
	return &Scheduler{
		notifier:  notifier,
		logger:    logger,
		delay:     delay,
		timers:    make(map[string]*time.Timer),
		gen:       make(map[string]uint64),
		reminded:  make(map[string]bool),
		completed: make(map[string]bool),
		resolved:  make(map[string]bool),
	}
}

// Touch cancels any armed timer for the phone and arms a fresh one, unless
// the phone already completed. Cancel-then-reschedule happens under one lock
// so two pending timers can never coexist.
func (s *Scheduler) Touch(phone string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.completed[phone] {
		return
	}
	if t, ok := s.timers[phone]; ok {
		t.Stop()
	}
	s.gen[phone]++
	g := s.gen[phone]
	s.timers[phone] = time.AfterFunc(s.delay, func() { s.fire(phone, g) })
}

// fire delivers the reminder unless the timer was superseded between expiry
// and acquiring the lock. A Touch landing in that window bumps the generation;
// the stale callback must not touch the fresh timer's handle.
func (s *Scheduler) fire(phone string, gen uint64) {
	s.mu.Lock()
	if s.stopped || s.completed[phone] || s.gen[phone] != gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, phone)
	s.reminded[phone] = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.notifier.SendText(ctx, phone, reminderText); err != nil {
		s.logger.Warn("reminder not delivered", zap.String("phone", phone), zap.Error(err))
	}
}

// MarkCompleted permanently disables reminders for the phone.
func (s *Scheduler) MarkCompleted(phone string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[phone]; ok {
		t.Stop()
		delete(s.timers, phone)
	}
	delete(s.reminded, phone)
	s.completed[phone] = true
}

func (s *Scheduler) IsReminded(phone string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reminded[phone]
}

func (s *Scheduler) IsCompleted(phone string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed[phone]
}

// Stop cancels all pending timers. New Touch calls become no-ops.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for phone, t := range s.timers {
		t.Stop()
		delete(s.timers, phone)
	}
}
