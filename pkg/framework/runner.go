package framework

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/golang/glog"
)

// ErrForcedExit is returned by Wait when a second stop signal arrives.
var ErrForcedExit = errors.New("forced exit")

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun wraps a Runnable with a name.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

// Runner runs Runnables in goroutines sharing one cancelable context,
// stops them together and collects their errors.
type Runner struct {
	Context context.Context

	cancel  context.CancelFunc
	lock    sync.Mutex
	running int
	errCh   chan error
	exitCh  chan struct{}
}

// NewRunner creates a runner with a default background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a runner whose context derives from ctx.
func NewRunnerWith(ctx context.Context) *Runner {
	r := &Runner{
		errCh:  make(chan error),
		exitCh: make(chan struct{}),
	}
	r.Context, r.cancel = context.WithCancel(ctx)
	return r
}

// HandleSignals stops the runner on CtrlC and SIGTERM from the system.
// A second signal makes Wait return immediately.
func (r *Runner) HandleSignals() *Runner {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		glog.Info("stop requested")
		r.Stop()
		<-sigCh
		glog.Error("stop requested again, force exit")
		close(r.exitCh)
	}()
	return r
}

// Go spawns Runnables.
func (r *Runner) Go(runners ...Runnable) *Runner {
	for _, runner := range runners {
		r.lock.Lock()
		name := strconv.Itoa(r.running)
		r.running++
		r.lock.Unlock()
		if named, ok := runner.(Named); ok {
			name = named.Name()
		}
		glog.V(4).Infof("start Runner[%s]", name)
		go func(runner Runnable, name string) {
			err := runner.Run(r.Context)
			glog.V(4).Infof("Runner[%s] stopped: %v", name, err)
			r.errCh <- err
		}(runner, name)
	}
	return r
}

// Stop cancels the context of all Runnables.
func (r *Runner) Stop() {
	r.cancel()
}

// Wait waits until all Runnables stop and aggregates errors other than
// cancellation.
func (r *Runner) Wait() error {
	var errs AggregatedError
	for {
		r.lock.Lock()
		if r.running == 0 {
			r.lock.Unlock()
			break
		}
		r.lock.Unlock()
		select {
		case <-r.exitCh:
			return ErrForcedExit
		case err := <-r.errCh:
			r.lock.Lock()
			r.running--
			r.lock.Unlock()
			if err != context.Canceled {
				errs.Add(err)
			}
		}
	}
	return errs.Aggregate()
}

// StopAndWait stops all Runnables and waits for them.
func (r *Runner) StopAndWait() error {
	r.Stop()
	return r.Wait()
}
