package powerpolicy

import (
	"context"
	"sync"

	"github.com/jangala-dev/ecfw-core/comms"
	"github.com/jangala-dev/ecfw-core/internal/ecerr"
	"github.com/jangala-dev/ecfw-core/internal/xlog"
	"github.com/jangala-dev/ecfw-core/registry"
)

const logTag = "powerpolicy"

// ConsumerConnected/ConsumerDisconnected are the comms payloads delivered
// to the Battery endpoint on every consumer-selection change (§6).
type ConsumerConnected struct {
	DeviceID   DeviceId
	Capability PowerCapability
}

type ConsumerDisconnected struct {
	DeviceID DeviceId
}

// ChargerNotifier receives the consumer capability every time selection
// changes, so charger wrappers can retarget their charge-current budget.
type ChargerNotifier interface {
	NotifyCapability(cap PowerCapability)
}

// ProviderPolicy parameterizes the provider-budgeting algorithm of §4.4.
type ProviderPolicy struct {
	LowPower            PowerCapability
	HighPower           PowerCapability
	ThresholdMW         uint32
	MaxRecoveryAttempts int
}

// Service owns the registered device set, the current consumer
// selection, and the registered charger notifiers.
type Service struct {
	fabric   *comms.Fabric
	devices  registry.List[*Device]
	chargers registry.List[ChargerNotifier]
	policy   ProviderPolicy

	mu                 sync.Mutex
	currentConsumer    *Device
	currentConsumerCap PowerCapability
}

func NewService(fabric *comms.Fabric, policy ProviderPolicy) *Service {
	if policy.MaxRecoveryAttempts <= 0 {
		policy.MaxRecoveryAttempts = 3
	}
	return &Service{fabric: fabric, policy: policy}
}

// RegisterDevice adds d to the registry the consumer-selection and
// provider-budgeting algorithms walk.
func (s *Service) RegisterDevice(d *Device) error {
	return s.devices.Register(&d.node, d)
}

// RegisterCharger adds a charger wrapper to the set notified on every
// consumer-capability change.
func (s *Service) RegisterCharger(node *registry.Node[ChargerNotifier], c ChargerNotifier) error {
	return s.chargers.Register(node, c)
}

func (s *Service) notifyChargers(cap PowerCapability) {
	s.chargers.Each(func(_ uint64, c ChargerNotifier) bool {
		c.NotifyCapability(cap)
		return true
	})
}

// Attach transitions d Detached -> Idle and re-runs consumer selection.
func (s *Service) Attach(d *Device) error {
	if err := d.Attach(); err != nil {
		return err
	}
	s.selectConsumer()
	return nil
}

// Detach transitions d to Detached from any state and re-runs consumer
// selection.
func (s *Service) Detach(d *Device) {
	s.mu.Lock()
	wasConsumer := d == s.currentConsumer
	if wasConsumer {
		s.currentConsumer = nil
	}
	s.mu.Unlock()
	d.Detach()
	s.selectConsumer()
}

// NotifyConsumerPowerCapability records what d could sink and re-runs
// consumer selection.
func (s *Service) NotifyConsumerPowerCapability(d *Device, cap *PowerCapability) {
	d.NotifyConsumerCapability(cap)
	s.selectConsumer()
}

func (s *Service) executeDeviceAction(d *Device, req DeviceRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	resp, err := d.ch.Execute(ctx, req)
	if err != nil {
		return err
	}
	return resp.Err
}

// selectConsumer implements §4.4's algorithm: walk all registered
// devices, pick the one whose available consumer capability maximizes
// max_power_mW (ties by registration order), and — if it differs from
// the current selection — disconnect the old consumer and connect the
// new one, notifying the Battery endpoint and every charger wrapper
// along the way.
func (s *Service) selectConsumer() {
	s.mu.Lock()
	defer s.mu.Unlock()

	better := func(cand, cur *Device) bool {
		c, k := cand.AvailableConsumerCapability(), cur.AvailableConsumerCapability()
		if c == nil {
			return false
		}
		if k == nil {
			return true
		}
		return c.MaxPowerMW() > k.MaxPowerMW()
	}
	keep := func(d *Device) bool { return d.AvailableConsumerCapability() != nil }

	best, _, ok := registry.Oldest(&s.devices, better, keep)
	if !ok {
		return
	}
	bestCap := *best.AvailableConsumerCapability()

	if s.currentConsumer == best && s.currentConsumerCap == bestCap {
		return
	}

	if s.currentConsumer != nil {
		old := s.currentConsumer
		if err := s.executeDeviceAction(old, DeviceRequest{Kind: ActionDisconnect}); err != nil {
			xlog.Warnf(logTag, "disconnect consumer %d: %v", old.ID(), err)
		}
		old.commitDisconnect()
		s.currentConsumer = nil
		s.notifyChargers(PowerCapability{})
		s.fabric.Send(comms.Internal(comms.KindPower), comms.Internal(comms.KindBattery),
			ConsumerDisconnected{DeviceID: old.ID()})
	}

	if err := s.executeDeviceAction(best, DeviceRequest{Kind: ActionConnectConsumer, Capability: bestCap}); err != nil {
		xlog.Warnf(logTag, "connect consumer %d: %v", best.ID(), err)
		return
	}
	best.commitConnectConsumer(bestCap)
	s.currentConsumer = best
	s.currentConsumerCap = bestCap
	s.notifyChargers(bestCap)
	s.fabric.Send(comms.Internal(comms.KindPower), comms.Internal(comms.KindBattery),
		ConsumerConnected{DeviceID: best.ID(), Capability: bestCap})
}

func (s *Service) countActiveProviders() int {
	n := 0
	s.devices.Each(func(_ uint64, d *Device) bool {
		if d.State() == ConnectedProvider {
			n++
		}
		return true
	})
	return n
}

func (s *Service) providerCapability(activeProviders int) PowerCapability {
	if uint32(activeProviders)*s.policy.LowPower.MaxPowerMW() <= s.policy.ThresholdMW {
		return s.policy.HighPower
	}
	return s.policy.LowPower
}

// RequestProviderPowerCapability is triggered when d wants to become (or
// continue being) a provider. It re-budgets across the active provider
// count and either connects d fresh or updates its capability, then
// refreshes every other already-connected provider to the same budget
// decision. A failure on d enters the bounded provider-recovery path; a
// failure refreshing another already-connected provider is only logged
// (it keeps its previous capability).
func (s *Service) RequestProviderPowerCapability(d *Device) error {
	if d.State() != Idle && d.State() != ConnectedProvider {
		return invalidState(Idle, d.State())
	}

	s.mu.Lock()
	active := s.countActiveProviders()
	if d.State() != ConnectedProvider {
		active++
	}
	cap := s.providerCapability(active)
	s.mu.Unlock()

	kind := ActionNotifyProviderCapability
	if d.State() == Idle {
		kind = ActionConnectProvider
	}

	if err := s.executeDeviceAction(d, DeviceRequest{Kind: kind, Capability: cap}); err != nil {
		s.beginProviderRecovery(d, cap)
		return ecerr.Wrapf("powerpolicy.provider", ecerr.CannotProvide, err, "provider action failed, recovery attempted")
	}
	if kind == ActionConnectProvider {
		d.commitConnectProvider(cap)
	} else {
		d.commitConnectProvider(cap) // capability refresh; state already ConnectedProvider
	}

	s.devices.Each(func(_ uint64, other *Device) bool {
		if other == d || other.State() != ConnectedProvider {
			return true
		}
		if err := s.executeDeviceAction(other, DeviceRequest{Kind: ActionNotifyProviderCapability, Capability: cap}); err != nil {
			xlog.Warnf(logTag, "refresh provider %d: %v", other.ID(), err)
			return true
		}
		other.commitConnectProvider(cap)
		return true
	})
	return nil
}

// beginProviderRecovery disconnects a provider-capable device that just
// failed a provider action, marks it in_recovery, and re-probes it a
// bounded number of times before leaving it Idle.
func (s *Service) beginProviderRecovery(d *Device, cap PowerCapability) {
	d.setRecovery(true)
	defer d.setRecovery(false)

	if err := s.executeDeviceAction(d, DeviceRequest{Kind: ActionDisconnect}); err != nil {
		xlog.Warnf(logTag, "recovery disconnect %d: %v", d.ID(), err)
	}
	d.commitDisconnect()

	for attempt := 0; attempt < s.policy.MaxRecoveryAttempts; attempt++ {
		if err := s.executeDeviceAction(d, DeviceRequest{Kind: ActionConnectProvider, Capability: cap}); err == nil {
			d.commitConnectProvider(cap)
			return
		}
	}
	xlog.Warnf(logTag, "provider %d recovery exhausted after %d attempts; staying idle", d.ID(), s.policy.MaxRecoveryAttempts)
}

// Disconnect transitions d from either Connected state back to Idle.
func (s *Service) Disconnect(d *Device) error {
	switch d.State() {
	case ConnectedConsumer, ConnectedProvider:
	default:
		return invalidState(ConnectedConsumer, d.State())
	}

	s.mu.Lock()
	wasConsumer := d == s.currentConsumer
	s.mu.Unlock()

	if err := s.executeDeviceAction(d, DeviceRequest{Kind: ActionDisconnect}); err != nil {
		return err
	}
	d.commitDisconnect()

	if wasConsumer {
		s.mu.Lock()
		s.currentConsumer = nil
		s.mu.Unlock()
		s.notifyChargers(PowerCapability{})
		s.fabric.Send(comms.Internal(comms.KindPower), comms.Internal(comms.KindBattery),
			ConsumerDisconnected{DeviceID: d.ID()})
	}
	return nil
}
