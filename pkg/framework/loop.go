package framework

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is the tick of a Loop without Interval.
const DefaultInterval = 100 * time.Millisecond

// Loop runs controllers periodically and hosts background runnables.
type Loop struct {
	Interval time.Duration

	controllers [PriorityLevels]controllerList
	runners     []Runnable

	lastTick time.Time
	wakeUpCh chan struct{}
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

type controllerList struct {
	controllers []Controller
	postHooks   []Controller
	lock        sync.Mutex
}

type loopIteration struct {
	*Loop
	ctx           context.Context
	time          time.Time
	elapsed       time.Duration
	priorityLevel int
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Interval: DefaultInterval}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers to the loop.
// Controllers which are also Runnable are started with the loop.
func (l *Loop) AddController(priorityLevel int, ctls ...Controller) *Loop {
	lst := &l.controllers[priorityLevel]
	lst.lock.Lock()
	lst.controllers = append(lst.controllers, ctls...)
	lst.lock.Unlock()
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementions.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Run implements Runnable. It returns when ctx is done or any
// runnable fails.
func (l *Loop) Run(ctx context.Context) error {
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var doneCh chan error
	if len(l.runners) > 0 {
		doneCh = make(chan error, 1)
		runner := NewRunnerWith(ctx)
		runner.Go(l.runners...)
		go func() {
			doneCh <- runner.Wait()
		}()
	}
	defer func() {
		cancel()
		if doneCh != nil {
			<-doneCh
		}
	}()

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-doneCh:
			doneCh = nil
			if err != nil {
				return err
			}
		case <-ticker.C:
			l.RunOnce(ctx)
		case <-l.wakeUpCh:
			l.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single iteration over all controllers.
func (l *Loop) RunOnce(ctx context.Context) {
	now := time.Now()
	iter := &loopIteration{Loop: l, ctx: ctx, time: now}
	if !l.lastTick.IsZero() {
		iter.elapsed = now.Sub(l.lastTick)
	}
	l.lastTick = now
	for i := 0; i < PriorityLevels; i++ {
		iter.priorityLevel = i
		l.controllers[i].run(iter)
	}
}

// PostRunAt implements LoopControl.
func (l *Loop) PostRunAt(priorityLevel int, hooks ...Controller) {
	lst := &l.controllers[priorityLevel]
	lst.lock.Lock()
	lst.postHooks = append(lst.postHooks, hooks...)
	lst.lock.Unlock()
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	if l.wakeUpCh == nil {
		return
	}
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

func (t *loopIteration) Context() context.Context { return t.ctx }
func (t *loopIteration) Time() time.Time          { return t.time }
func (t *loopIteration) Elapsed() time.Duration   { return t.elapsed }
func (t *loopIteration) PriorityLevel() int       { return t.priorityLevel }

func (c *controllerList) run(iter *loopIteration) {
	c.lock.Lock()
	ctls := c.controllers
	c.lock.Unlock()
	runControllers(iter, ctls)
	c.lock.Lock()
	ctls, c.postHooks = c.postHooks, nil
	c.lock.Unlock()
	runControllers(iter, ctls)
}

func runControllers(iter *loopIteration, ctls []Controller) {
	for _, ctl := range ctls {
		if err := ctl.Control(iter); err != nil {
			glog.Errorf("controller error: %v", err)
		}
	}
}

// Throttle wraps ctl so it runs at most once per period. The period
// is evaluated on every iteration so it may follow a live setting; a
// non-positive period runs ctl on every iteration.
func Throttle(period func() time.Duration, ctl Controller) Controller {
	var last time.Time
	return ControlFunc(func(cc ControlContext) error {
		now := cc.Time()
		if p := period(); p > 0 && !last.IsZero() && now.Sub(last) < p {
			return nil
		}
		last = now
		return ctl.Control(cc)
	})
}
