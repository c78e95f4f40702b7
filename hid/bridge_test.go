package hid

import (
	"context"
	"testing"
	"time"

	"github.com/jangala-dev/ecfw-core/deferred"
	"github.com/jangala-dev/ecfw-core/x/shmring"
)

var testRegs = RegisterFile{
	HidDescAddr:    0x0001,
	ReportDescAddr: 0x0002,
	InputAddr:      0x0003,
	OutputAddr:     0x0004,
	CommandAddr:    0x0005,
	DataAddr:       0x0006,
}

type queueHostBus struct {
	kind     TransactionKind
	regAddr  uint16
	words    []uint16
	bytes    []byte
	payloads [][]byte
	response []byte
}

func (b *queueHostBus) NextTransaction(ctx context.Context) (TransactionKind, uint16, error) {
	return b.kind, b.regAddr, nil
}
func (b *queueHostBus) ReadWord(ctx context.Context) (uint16, error) {
	w := b.words[0]
	b.words = b.words[1:]
	return w, nil
}
func (b *queueHostBus) ReadByte(ctx context.Context) (byte, error) {
	v := b.bytes[0]
	b.bytes = b.bytes[1:]
	return v, nil
}
func (b *queueHostBus) ReadPayload(ctx context.Context, n int) ([]byte, error) {
	p := b.payloads[0]
	b.payloads = b.payloads[1:]
	return p[:n], nil
}
func (b *queueHostBus) WriteResponse(ctx context.Context, payload []byte) error {
	b.response = append([]byte(nil), payload...)
	return nil
}

// fakeI2C serves a fixed length-prefixed response frame across two
// reads (length prefix, then report data), modeling the standard
// HID-over-I2C register-read framing.
type fakeI2C struct {
	lastWrite []byte
	frame     []byte // [lenLo, lenHi, data...]
	stage     int
}

func (f *fakeI2C) Tx(addr uint16, w, r []byte) error {
	if w != nil {
		f.lastWrite = append([]byte(nil), w...)
	}
	if len(r) == 0 {
		return nil
	}
	if f.stage == 0 {
		copy(r, f.frame[:2])
		f.stage = 1
	} else {
		copy(r, f.frame[2:])
		f.stage = 0
	}
	return nil
}

func TestGetReportRoundTripThroughHostAndDevice(t *testing.T) {
	ch := deferred.NewChannel[Request, Response]()
	ring := shmring.New(64)
	i2c := &fakeI2C{frame: []byte{4, 0, 0xAA, 0xBB}}
	device := NewDevice(i2c, 0x50, testRegs, ch, ring, 100*time.Millisecond)

	word, _, _ := encodeCommandWord(OpGetReport, ReportTypeFeature, 2)
	bus := &queueHostBus{
		kind:    TransactionWrite,
		regAddr: testRegs.CommandAddr,
		words:   []uint16{word},
	}
	host := NewHost(bus, testRegs, ch, nil, 100*time.Millisecond, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() { device.Run(ctx); close(done) }()

	if err := host.serveOne(ctx); err != nil {
		t.Fatalf("serveOne: %v", err)
	}
	cancel()
	<-done

	want := []byte{4, 0, 0xAA, 0xBB}
	if len(bus.response) != len(want) {
		t.Fatalf("response = %v, want %v", bus.response, want)
	}
	for i, b := range want {
		if bus.response[i] != b {
			t.Fatalf("response = %v, want %v", bus.response, want)
		}
	}
}

func TestSetReportWithHostDataWritesPayloadThroughDevice(t *testing.T) {
	ch := deferred.NewChannel[Request, Response]()
	ring := shmring.New(64)
	i2c := &fakeI2C{}
	device := NewDevice(i2c, 0x50, testRegs, ch, ring, 100*time.Millisecond)

	word, _, _ := encodeCommandWord(OpSetReport, ReportTypeOutput, 1)
	payload := []byte{0x01, 0x02, 0x03}
	bus := &queueHostBus{
		kind:     TransactionWrite,
		regAddr:  testRegs.CommandAddr,
		words:    []uint16{word, testRegs.DataAddr, uint16(len(payload) + 2)},
		payloads: [][]byte{payload},
	}
	host := NewHost(bus, testRegs, ch, nil, 100*time.Millisecond, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() { device.Run(ctx); close(done) }()

	if err := host.serveOne(ctx); err != nil {
		t.Fatalf("serveOne: %v", err)
	}
	cancel()
	<-done

	if len(i2c.lastWrite) < len(payload) {
		t.Fatalf("lastWrite = %v, too short to contain payload", i2c.lastWrite)
	}
	tail := i2c.lastWrite[len(i2c.lastWrite)-len(payload):]
	for i, b := range payload {
		if tail[i] != b {
			t.Fatalf("payload not forwarded to peripheral: got %v want %v", tail, payload)
		}
	}
}

func TestDataRegisterMismatchIsRejected(t *testing.T) {
	ch := deferred.NewChannel[Request, Response]()
	word, _, _ := encodeCommandWord(OpSetReport, ReportTypeOutput, 1)
	bus := &queueHostBus{
		kind:    TransactionWrite,
		regAddr: testRegs.CommandAddr,
		words:   []uint16{word, 0x9999}, // wrong data register address
	}
	host := NewHost(bus, testRegs, ch, nil, 50*time.Millisecond, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := host.serveOne(ctx); err == nil {
		t.Fatal("expected an InvalidRegisterAddress error for a mismatched data register")
	}
}
