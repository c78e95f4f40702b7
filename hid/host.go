package hid

import (
	"context"
	"time"

	"github.com/jangala-dev/ecfw-core/buffer"
	"github.com/jangala-dev/ecfw-core/deferred"
	"github.com/jangala-dev/ecfw-core/internal/ecerr"
	"github.com/jangala-dev/ecfw-core/internal/xlog"
)

// HostBus is the target-side (device-impersonation) I2C engine this
// bridge drives; the physical I2C slave hardware it wraps is out of
// scope here, same as every other peripheral register layout in this
// tree.
type HostBus interface {
	// NextTransaction blocks until the host starts a transaction,
	// returning its kind and, for a write, the 2-byte register address
	// the host wrote first.
	NextTransaction(ctx context.Context) (TransactionKind, uint16, error)
	// ReadWord reads the next 2 bytes of the current write transaction.
	ReadWord(ctx context.Context) (uint16, error)
	// ReadByte reads a single byte (the extended report-ID byte).
	ReadByte(ctx context.Context) (byte, error)
	// ReadPayload reads n further bytes of the current write transaction.
	ReadPayload(ctx context.Context, n int) ([]byte, error)
	// WriteResponse sends payload back for the host's follow-up read.
	WriteResponse(ctx context.Context, payload []byte) error
}

// Host is the bridge's host-facing side: it classifies each transaction,
// decodes HID-I2C commands, and dispatches the resulting Request across
// ch to whichever task is playing device side.
type Host struct {
	bus              HostBus
	regs             RegisterFile
	ch               *deferred.Channel[Request, Response]
	interrupt        *InterruptBridge
	responseTimeout  time.Duration
	interByteTimeout time.Duration

	// scratch is the single backing array a command write's payload is
	// assembled into before it is copied out onto the Request that
	// crosses to the device side; one command write is in flight at a
	// time, so the mutable borrow never contends with itself.
	scratch *buffer.Buffer[byte]
}

// NewHost builds a Host. responseTimeout and interByteTimeout default to
// the §4.9 bounds (200ms, 50ms) when zero.
func NewHost(bus HostBus, regs RegisterFile, ch *deferred.Channel[Request, Response], interrupt *InterruptBridge, responseTimeout, interByteTimeout time.Duration) *Host {
	if responseTimeout <= 0 {
		responseTimeout = 200 * time.Millisecond
	}
	if interByteTimeout <= 0 {
		interByteTimeout = 50 * time.Millisecond
	}
	return &Host{
		bus:              bus,
		regs:             regs,
		ch:               ch,
		interrupt:        interrupt,
		responseTimeout:  responseTimeout,
		interByteTimeout: interByteTimeout,
		scratch:          buffer.New(make([]byte, maxResponseLen)),
	}
}

// Run services transactions until ctx is done.
func (h *Host) Run(ctx context.Context) {
	for {
		if err := h.serveOne(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			xlog.Warnf("hid.host", "transaction failed: %v", err)
			if h.interrupt != nil {
				h.interrupt.Reset()
			}
		}
	}
}

func (h *Host) withInterByte(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, h.interByteTimeout)
}

func (h *Host) serveOne(ctx context.Context) error {
	cctx, cancel := h.withInterByte(ctx)
	kind, regAddr, err := h.bus.NextTransaction(cctx)
	cancel()
	if err != nil {
		return err
	}

	switch kind {
	case TransactionProbe:
		return nil

	case TransactionRead:
		// Only the Input register supports a bare read; it precedes the
		// response rather than following it, per §4.9's host-side
		// response note.
		return h.serveInputReport(ctx)

	case TransactionWrite:
		if regAddr != h.regs.CommandAddr {
			return ecerr.Wrapf("hid.host", ecerr.InvalidRegisterAddress, nil, "write to unsupported register")
		}
		return h.serveCommandWrite(ctx)

	default:
		return ecerr.Wrapf("hid.host", ecerr.InvalidData, nil, "unknown transaction kind")
	}
}

func (h *Host) serveInputReport(ctx context.Context) error {
	resp, err := h.dispatch(ctx, Request{Kind: ReqInputReport})
	if err != nil {
		return err
	}
	return h.writeResponse(ctx, resp.Payload)
}

func (h *Host) serveCommandWrite(ctx context.Context) error {
	cctx, cancel := h.withInterByte(ctx)
	word, err := h.bus.ReadWord(cctx)
	cancel()
	if err != nil {
		return err
	}

	op, rt, reportID, extended := decodeCommandWord(word)
	if extended {
		cctx, cancel = h.withInterByte(ctx)
		b, err := h.bus.ReadByte(cctx)
		cancel()
		if err != nil {
			return err
		}
		reportID = b
	}

	kind, err := requestKindFor(op)
	if err != nil {
		return err
	}
	req := Request{Kind: kind, ReportType: rt, ReportID: reportID}

	if opcodeRequiresHostData(op) {
		cctx, cancel = h.withInterByte(ctx)
		dataAddr, err := h.bus.ReadWord(cctx)
		cancel()
		if err != nil {
			return err
		}
		if dataAddr != h.regs.DataAddr {
			return ecerr.Wrapf("hid.host", ecerr.InvalidRegisterAddress, nil, "data register mismatch")
		}

		cctx, cancel = h.withInterByte(ctx)
		length, err := h.bus.ReadWord(cctx)
		cancel()
		if err != nil {
			return err
		}
		if length < 2 {
			return ecerr.Wrapf("hid.host", ecerr.InvalidData, nil, "length prefix too small")
		}

		n := int(length) - 2
		if n > h.scratch.Len() {
			return ecerr.Wrapf("hid.host", ecerr.InvalidData, nil, "payload %d exceeds scratch capacity %d", n, h.scratch.Len())
		}

		cctx, cancel = h.withInterByte(ctx)
		payload, err := h.bus.ReadPayload(cctx, n)
		cancel()
		if err != nil {
			return err
		}
		owned := h.scratch.BorrowMut()
		copy(owned.Slice(), payload)
		req.Payload = append([]byte(nil), owned.Slice()[:n]...)
		owned.Release()
	}

	if h.interrupt != nil {
		h.interrupt.OnHostRequestReceived()
	}

	resp, err := h.dispatch(ctx, req)
	if err != nil {
		return err
	}
	if !kind.hasResponse() {
		return nil
	}

	return h.writeResponse(ctx, resp.Payload)
}

// writeResponse re-applies the 2-byte total-length prefix that Device
// strips off before handing a Response back (device.go's readFramed):
// a host read of Input/Feature/Output registers must see the same
// length-prefixed framing a real peripheral would return.
func (h *Host) writeResponse(ctx context.Context, payload []byte) error {
	framed := appendUint16LE(nil, uint16(len(payload)+2))
	framed = append(framed, payload...)

	cctx, cancel := context.WithTimeout(ctx, h.responseTimeout)
	defer cancel()
	if err := h.bus.WriteResponse(cctx, framed); err != nil {
		return err
	}
	if h.interrupt != nil {
		h.interrupt.OnHostResponseSent()
	}
	return nil
}

func (h *Host) dispatch(ctx context.Context, req Request) (Response, error) {
	cctx, cancel := context.WithTimeout(ctx, h.responseTimeout)
	defer cancel()
	return h.ch.Execute(cctx, req)
}
