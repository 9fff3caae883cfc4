package monitor

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/technosupport/slothunter/internal/protocol"
)

// Router maps coordinator commands onto Coordinator methods. Every
// command gets a Response; failures are reported in it, never as errors.
type Router struct {
	c *Coordinator
}

func NewRouter(c *Coordinator) *Router {
	return &Router{c: c}
}

// Dispatch handles one command.
func (r *Router) Dispatch(ctx context.Context, msg protocol.Message) protocol.Response {
	switch msg.Type {
	case protocol.LicenseActivated:
		r.c.LicenseActivated(ctx)
		return protocol.OK()

	case protocol.LicenseDeactivated:
		r.c.LicenseDeactivated(ctx)
		return protocol.OK()

	case protocol.StartMonitoring:
		var p protocol.StartPayload
		if err := msg.Decode(&p); err != nil {
			return protocol.Fail("invalid payload")
		}
		cfg, err := r.c.Start(ctx, p.Config)
		if err != nil {
			return protocol.Fail(errorMessage(err))
		}
		return protocol.Response{Success: true, Config: cfg}

	case protocol.StopMonitoring:
		if err := r.c.Stop(ctx); err != nil {
			return protocol.Fail(err.Error())
		}
		return protocol.OK()

	case protocol.GetStatus:
		return protocol.Response{Success: true, Data: r.c.Status(ctx)}

	case protocol.SlotsFound:
		var res protocol.DetectionResult
		if err := msg.Decode(&res); err != nil {
			return protocol.Fail("invalid payload")
		}
		return r.c.OnSlotsReported(ctx, res)

	case protocol.CheckNow:
		m, err := r.c.ManualCheck(ctx)
		if err != nil {
			return protocol.Fail(errorMessage(err))
		}
		return protocol.Response{Success: true, Message: m}

	default:
		return protocol.Fail("unknown message type")
	}
}

// Handle adapts Dispatch to protocol.Handler.
func (r *Router) Handle(ctx context.Context, msg protocol.Message) (json.RawMessage, error) {
	return r.Dispatch(ctx, msg).JSON(), nil
}

// Attach serves coordinator commands on bus.
func (r *Router) Attach(bus protocol.Bus) (func(), error) {
	return bus.Subscribe(protocol.SubjectCoordinator, r.Handle)
}

func errorMessage(err error) string {
	if errors.Is(err, ErrLicenseRequired) {
		return ErrLicenseRequired.Error()
	}
	return err.Error()
}
