package engine

import (
	"context"
	"sync"
	"time"

	"github.com/MattGorko/U2F-Emulated/channel"
	"github.com/MattGorko/U2F-Emulated/hidcmd"
	"github.com/MattGorko/U2F-Emulated/hidpacket"
	"github.com/MattGorko/U2F-Emulated/pkg"
	"github.com/MattGorko/U2F-Emulated/transport"
)

// TickInterval is how often the engine reaps idle channels.
const TickInterval = 100 * time.Millisecond

// Engine owns a transport, channel table, and command dispatcher, and
// runs the read-dispatch-write loop plus the idle-reap ticker.
type Engine struct {
	transport  transport.Transport
	table      *channel.Table
	dispatcher *hidcmd.Dispatcher
	instanceID string

	mutex   sync.RWMutex
	running bool
	cancel  context.CancelFunc

	writeMutex sync.Mutex
}

// New constructs an Engine from its collaborators.
func New(t transport.Transport, table *channel.Table, dispatcher *hidcmd.Dispatcher) *Engine {
	return &Engine{
		transport:  t,
		table:      table,
		dispatcher: dispatcher,
		instanceID: pkg.NewInstanceID(),
	}
}

// IsRunning reports whether Run is currently executing.
func (e *Engine) IsRunning() bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.running
}

// Run drives the engine until ctx is cancelled, Stop is called, or a
// fatal transport/internal error occurs. It returns that error, or nil
// on clean shutdown.
func (e *Engine) Run(ctx context.Context) error {
	e.mutex.Lock()
	if e.running {
		e.mutex.Unlock()
		return pkg.ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true
	e.mutex.Unlock()

	defer func() {
		e.mutex.Lock()
		e.running = false
		e.cancel = nil
		e.mutex.Unlock()
	}()

	pkg.LogInfo(pkg.ComponentEngine, "engine started", "instance", e.instanceID)

	tickDone := make(chan struct{})
	go func() {
		defer close(tickDone)
		e.tickLoop(runCtx)
	}()

	err := e.readLoop(runCtx)
	cancel()
	<-tickDone

	if err != nil {
		pkg.LogError(pkg.ComponentEngine, "engine stopped", "instance", e.instanceID, "error", err)
	} else {
		pkg.LogInfo(pkg.ComponentEngine, "engine stopped", "instance", e.instanceID)
	}
	return err
}

// Stop requests a clean shutdown of a running engine. It is safe to
// call from any goroutine, including concurrently with Run.
func (e *Engine) Stop() {
	e.mutex.RLock()
	cancel := e.cancel
	e.mutex.RUnlock()
	if cancel != nil {
		cancel()
	}
}

func (e *Engine) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		report, err := e.transport.ReadReport(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			pkg.LogError(pkg.ComponentTransport, "read failed", "error", err)
			return err
		}

		if err := e.handleReport(ctx, report); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (e *Engine) handleReport(ctx context.Context, report []byte) error {
	init, cont, err := hidpacket.Decode(report)
	if err != nil {
		// A report of the wrong length can only come from a transport
		// violating its own contract; treat it as fatal.
		pkg.LogError(pkg.ComponentTransport, "malformed report", "error", err)
		return err
	}

	outcome, msg, errCID, err := e.table.Ingest(init, cont)
	switch outcome {
	case channel.None:
		return nil

	case channel.Errored:
		pkg.LogWarn(pkg.ComponentChannel, "channel error", "cid", errCID, "error", err)
		return e.writeResponse(ctx, errCID, hidcmd.CmdError, []byte{pkg.HIDErrorCode(err)})

	case channel.Complete:
		resp := e.dispatcher.Dispatch(msg)
		if msg.CID == channel.CIDBroadcast {
			e.table.Forget(channel.CIDBroadcast)
		} else {
			e.table.MarkIdle(msg.CID)
		}
		return e.writeResponse(ctx, resp.CID, resp.CMD, resp.Payload)
	}
	return nil
}

func (e *Engine) writeResponse(ctx context.Context, cid uint32, cmd byte, payload []byte) error {
	e.writeMutex.Lock()
	defer e.writeMutex.Unlock()

	for _, report := range channel.Serialize(cid, cmd, payload) {
		if err := e.transport.WriteReport(ctx, report); err != nil {
			pkg.LogError(pkg.ComponentTransport, "write failed", "error", err)
			return err
		}
	}
	return nil
}

func (e *Engine) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, cid := range e.table.Tick(now) {
				pkg.LogWarn(pkg.ComponentChannel, "transaction timed out", "cid", cid)
				if err := e.writeResponse(ctx, cid, hidcmd.CmdError, []byte{pkg.HIDErrorCode(pkg.ErrMsgTimeout)}); err != nil {
					return
				}
			}
		}
	}
}
