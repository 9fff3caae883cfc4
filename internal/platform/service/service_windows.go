//go:build windows

package service

import (
	"context"

	"golang.org/x/sys/windows/svc"
)

// runner handles the Windows Service lifecycle
type runner struct {
	cancel context.CancelFunc
	done   <-chan struct{}
}

// Execute implements svc.Handler
func (m *runner) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (ssec bool, errno uint32) {
	const cmdsAccepted = svc.AcceptStop | svc.AcceptShutdown
	changes <- svc.Status{State: svc.StartPending}
	changes <- svc.Status{State: svc.Running, Accepts: cmdsAccepted}

	for {
		select {
		case <-m.done:
			changes <- svc.Status{State: svc.StopPending}
			return false, 0
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				changes <- svc.Status{State: svc.StopPending}
				m.cancel()
				<-m.done
				return false, 0
			}
		}
	}
}

// Run executes fn, inside the service loop when started by the service
// manager. A stop request cancels ctx.
func Run(ctx context.Context, name string, fn Workload) error {
	isService, err := svc.IsWindowsService()
	if err != nil || !isService {
		return fn(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	var runErr error
	go func() {
		defer close(done)
		runErr = fn(ctx)
	}()

	if err := svc.Run(name, &runner{cancel: cancel, done: done}); err != nil {
		cancel()
		<-done
		return err
	}
	<-done
	return runErr
}
