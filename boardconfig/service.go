package boardconfig

import (
	"context"

	"github.com/andreyvit/tinyjson"

	"github.com/jangala-dev/ecfw-core/bus"
	"github.com/jangala-dev/ecfw-core/internal/ecerr"
	"github.com/jangala-dev/ecfw-core/internal/xlog"
)

const (
	serviceName  = "boardconfig"
	configPrefix = "config"
	// CtxDeviceKey is the context key the board's device ID is carried
	// under when starting the publisher.
	CtxDeviceKey = "device"
)

// EmbeddedConfigLookup resolves a device ID to its embedded board
// document; overridable for tests and alternate build configurations.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// PublishService republishes the board document's top-level keys as
// retained bus messages, so services that only need one section of the
// document (rather than the full typed Config) can subscribe to just
// that key instead of parsing the whole thing themselves.
type PublishService struct {
	Name string
}

// NewPublishService builds a PublishService.
func NewPublishService() *PublishService {
	return &PublishService{Name: serviceName}
}

func (s *PublishService) publish(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return ecerr.Wrapf(logTag, ecerr.InvalidData, nil, "missing device ID in context")
	}

	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return ecerr.Wrapf(logTag, ecerr.InvalidData, nil, "no embedded config for device %q", device)
	}

	r := tinyjson.Raw(raw)
	val := r.Value()
	if err := r.EnsureEOF(); err != nil {
		return ecerr.Wrapf(logTag, ecerr.InvalidData, err, "trailing data after document")
	}

	m, ok := val.(map[string]any)
	if !ok {
		return ecerr.Wrapf(logTag, ecerr.InvalidData, nil, "embedded config is not a JSON object")
	}

	for k, v := range m {
		conn.Publish(&bus.Message{
			Topic:    bus.T(configPrefix, k),
			Payload:  v,
			Retained: true,
		})
	}
	return nil
}

// Start launches the publisher in a goroutine, the way the teacher's
// config service does.
func (s *PublishService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publish(ctx, conn); err != nil {
			xlog.Warnf(logTag, "publish: %v", err)
		}
	}()
}
