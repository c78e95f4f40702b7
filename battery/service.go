package battery

import (
	"context"
	"time"

	"github.com/jangala-dev/ecfw-core/internal/ecerr"
	"github.com/jangala-dev/ecfw-core/internal/xlog"
	"github.com/jangala-dev/ecfw-core/registry"
)

// Config tunes the polling loop. Every field has a usable zero value via
// NewService's defaulting, mirroring the teacher's worker-config
// defaulting convention.
type Config struct {
	// PollInterval is how often an Operational.Polling device is re-sampled.
	PollInterval time.Duration
	// DetectInterval is how often a NotPresent device is retried.
	DetectInterval time.Duration
	// RetryBackoff delays the next attempt after a failed poll.
	RetryBackoff time.Duration
	// MaxRetries bounds consecutive immediate retries before a device is
	// left for the next regular DetectInterval/PollInterval tick.
	MaxRetries int
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.DetectInterval <= 0 {
		c.DetectInterval = 5 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 250 * time.Millisecond
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 6
	}
}

type deviceRuntime struct {
	device  *Device
	due     time.Time
	retries int
}

// Service periodically drives every registered Device's FSM: DoInit for
// devices not yet present, then PollDynamicData on a steady cadence once
// Operational. A failed poll is retried with backoff up to MaxRetries
// before falling back to the regular cadence, the same
// trigger/collect/retry-with-backoff shape the teacher's measurement
// worker uses for generic sensor polling.
type Service struct {
	cfg     Config
	devices registry.List[*Device]
}

func NewService(cfg Config) *Service {
	cfg.setDefaults()
	return &Service{cfg: cfg}
}

// RegisterDevice adds d to the set the polling loop drives.
func (s *Service) RegisterDevice(d *Device) error {
	return s.devices.Register(&d.node, d)
}

// Run drives every registered device until ctx is done. A device that
// has never been initialized is attempted immediately.
func (s *Service) Run(ctx context.Context) {
	runtimes := make([]*deviceRuntime, 0, s.devices.Len())
	s.devices.Each(func(_ uint64, d *Device) bool {
		runtimes = append(runtimes, &deviceRuntime{device: d})
		return true
	})

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		now := time.Now()
		next := now.Add(s.cfg.PollInterval)
		for _, rt := range runtimes {
			if now.Before(rt.due) {
				if rt.due.Before(next) {
					next = rt.due
				}
				continue
			}
			s.step(ctx, rt, now)
			if rt.due.Before(next) {
				next = rt.due
			}
		}
		timer.Reset(time.Until(next))
	}
}

func (s *Service) step(ctx context.Context, rt *deviceRuntime, now time.Time) {
	var ev Event
	if rt.device.Stage() == StagePresentOperationalPolling || rt.device.Stage() == StagePresentOperationalInit {
		ev = Event{Kind: EventPollDynamicData}
	} else {
		ev = Event{Kind: EventDoInit}
	}

	err := rt.device.HandleEvent(ctx, ev)
	switch {
	case err == nil:
		rt.retries = 0
		rt.due = now.Add(s.cfg.PollInterval)
	case ecerr.Is(err, ecerr.DeviceTimeout) || ecerr.Is(err, ecerr.ContextTimeout):
		xlog.Warnf(logTag, "device poll timed out: %v", err)
		rt.retries = 0
		rt.due = now.Add(s.cfg.DetectInterval)
	case rt.retries < s.cfg.MaxRetries:
		rt.retries++
		rt.due = now.Add(s.cfg.RetryBackoff)
	default:
		xlog.Warnf(logTag, "device poll failed after retries: %v", err)
		rt.retries = 0
		rt.due = now.Add(s.cfg.DetectInterval)
	}
}
