package hid

import (
	"context"
	"time"

	"github.com/jangala-dev/ecfw-core/deferred"
	"github.com/jangala-dev/ecfw-core/hw"
	"github.com/jangala-dev/ecfw-core/internal/ecerr"
	"github.com/jangala-dev/ecfw-core/x/shmring"
)

// maxResponseLen bounds a single FeatureReport/InputReport read-back;
// the scratch ring is sized to hold at least this much.
const maxResponseLen = 256

// Device is the bridge's peripheral-facing side: it executes HID-I2C
// requests against the real peripheral and sends the result back across
// ch to whichever task is playing host side.
type Device struct {
	i2c            hw.I2C
	peripheralAddr uint16
	regs           RegisterFile
	ch             *deferred.Channel[Request, Response]
	timeout        time.Duration

	// ring is the raw-byte scratch buffer between this goroutine's I2C
	// read and the Response it hands back; a single goroutine is both
	// producer and consumer here, which trivially satisfies shmring's
	// SPSC contract.
	ring    *shmring.Ring
	scratch []byte
}

// NewDevice builds a Device and allocates its own maxResponseLen-byte
// scratch buffer; ring must have capacity >= maxResponseLen.
func NewDevice(i2c hw.I2C, peripheralAddr uint16, regs RegisterFile, ch *deferred.Channel[Request, Response], ring *shmring.Ring, timeout time.Duration) *Device {
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	return &Device{
		i2c:            i2c,
		peripheralAddr: peripheralAddr,
		regs:           regs,
		ch:             ch,
		timeout:        timeout,
		ring:           ring,
		scratch:        make([]byte, maxResponseLen),
	}
}

// Run services requests until ctx is done.
func (d *Device) Run(ctx context.Context) {
	for {
		req, err := d.ch.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		req.Respond(d.handle(req.Command()))
	}
}

func (d *Device) handle(req Request) Response {
	if req.Kind == ReqInputReport {
		return d.readRegister(d.regs.InputAddr)
	}
	op, ok := opcodeFor(req.Kind)
	if !ok {
		return Response{Err: ecerr.Wrapf("hid.device", ecerr.InvalidData, nil, "unknown request kind")}
	}
	return d.executeCommand(op, req)
}

// readRegister performs a bare register read, used for InputReport: a
// 2-byte length prefix followed by that many further bytes of report
// data, the standard HID-over-I2C register-read framing.
func (d *Device) readRegister(addr uint16) Response {
	w := appendUint16LE(nil, addr)
	payload, err := d.readFramed(w)
	if err != nil {
		return Response{Err: ecerr.Wrapf("hid.device", ecerr.DeviceError, err, "read_register")}
	}
	return Response{Payload: payload}
}

func (d *Device) executeCommand(op Opcode, req Request) Response {
	word, extended, extByte := encodeCommandWord(op, req.ReportType, req.ReportID)

	w := appendUint16LE(nil, d.regs.CommandAddr)
	w = appendUint16LE(w, word)
	if extended {
		w = append(w, extByte)
	}
	if opcodeRequiresHostData(op) {
		w = appendUint16LE(w, d.regs.DataAddr)
		length := uint16(len(req.Payload) + 2)
		w = appendUint16LE(w, length)
		w = append(w, req.Payload...)
	}

	if !opcodeHasDeviceResponse(op) {
		if err := d.i2c.Tx(d.peripheralAddr, w, nil); err != nil {
			return Response{Err: ecerr.Wrapf("hid.device", ecerr.DeviceError, err, "command")}
		}
		return Response{}
	}

	payload, err := d.readFramed(w)
	if err != nil {
		return Response{Err: ecerr.Wrapf("hid.device", ecerr.DeviceError, err, "command_with_response")}
	}
	return Response{Payload: payload}
}

// readFramed executes the command write, then reads the standard
// HID-over-I2C response framing: a 2-byte total-length prefix followed
// by length-2 further bytes. The raw frame is relayed through the
// shared ring before being trimmed to just the report data; a single
// goroutine is both producer and consumer here, satisfying shmring's
// SPSC contract.
func (d *Device) readFramed(w []byte) ([]byte, error) {
	lenBuf := d.scratch[:2]
	if err := d.i2c.Tx(d.peripheralAddr, w, lenBuf); err != nil {
		return nil, err
	}
	total := int(lenBuf[0]) | int(lenBuf[1])<<8
	if total < 2 {
		total = 2
	}
	remaining := total - 2
	if max := len(d.scratch) - 2; remaining > max {
		remaining = max
	}
	if remaining > 0 {
		if err := d.i2c.Tx(d.peripheralAddr, nil, d.scratch[2:2+remaining]); err != nil {
			return nil, err
		}
	}

	frame := d.scratch[:2+remaining]
	n := d.ring.TryWriteFrom(frame)
	out := make([]byte, n)
	d.ring.TryReadInto(out)
	if len(out) <= 2 {
		return nil, nil
	}
	return out[2:], nil
}

func appendUint16LE(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}
