package hw

import (
	"context"
	"time"

	"tinygo.org/x/drivers"

	"github.com/jangala-dev/ecfw-core/battery"
	"github.com/jangala-dev/ecfw-core/charger"
	"github.com/jangala-dev/ecfw-core/hw/ltc4015"
	"github.com/jangala-dev/ecfw-core/internal/ecerr"
)

const ltc4015LogTag = "hw.ltc4015"

// LTC4015Adapter drives one LTC4015 multi-chemistry charger controller
// as both a battery.FuelGauge and a charger.Controller — the chip is a
// single combined charger/coulomb-counter IC, so one physical device
// naturally wears both roles rather than needing two drivers.
type LTC4015Adapter struct {
	dev     *ltc4015.Device
	cfg     ltc4015.Config
	timeout time.Duration
}

// NewLTC4015Adapter detects the strapped chemistry/variant once at
// construction (ltc4015.NewAuto) and wraps the resulting Device.
func NewLTC4015Adapter(i2c drivers.I2C, cfg ltc4015.Config, cmdTimeout time.Duration) (*LTC4015Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, ecerr.Wrapf(ltc4015LogTag, ecerr.InvalidData, err, "ltc4015 config")
	}
	if cmdTimeout <= 0 {
		cmdTimeout = time.Second
	}
	dev, err := ltc4015.NewAuto(i2c, cfg)
	if err != nil {
		return nil, ecerr.Wrapf(ltc4015LogTag, ecerr.DeviceError, err, "detect variant")
	}
	return &LTC4015Adapter{dev: dev, cfg: cfg, timeout: cmdTimeout}, nil
}

// Timeout implements battery.FuelGauge.
func (a *LTC4015Adapter) Timeout() time.Duration { return a.timeout }

// Ping implements battery.FuelGauge by reading a register that is
// always readable regardless of chemistry or variant.
func (a *LTC4015Adapter) Ping(ctx context.Context) error {
	if _, err := a.dev.ReadConfig(); err != nil {
		return ecerr.Wrapf(ltc4015LogTag, ecerr.DeviceError, err, "ping")
	}
	return nil
}

// Initialize implements battery.FuelGauge by pushing the configured
// sense resistors and coulomb-counter prescale to the device; this is
// the one-time setup ltc4015.Device.Configure performs, separate from
// the detection NewAuto already did at construction.
func (a *LTC4015Adapter) Initialize(ctx context.Context) error {
	if err := a.dev.Configure(a.cfg); err != nil {
		return ecerr.Wrapf(ltc4015LogTag, ecerr.DeviceError, err, "configure")
	}
	return nil
}

// UpdateStaticCache implements battery.FuelGauge. The LTC4015 has no
// manufacturer/device-name/serial or design-capacity registers (it is a
// charger controller with a coulomb counter, not a full smart-battery
// gauge), so those fields stay zero; Chemistry/ChemistryID come from
// the variant NewAuto detected.
func (a *LTC4015Adapter) UpdateStaticCache(ctx context.Context) (battery.StaticCache, error) {
	var sc battery.StaticCache
	switch a.dev.Chem() {
	case ltc4015.ChemLithium:
		copy(sc.Chemistry[:], "LiIon")
	case ltc4015.ChemLeadAcid:
		copy(sc.Chemistry[:], "PbAcd")
	}
	sc.ChemistryID = uint16(a.dev.Variant())
	return sc, nil
}

// UpdateDynamicCache implements battery.FuelGauge, reading everything
// in one Snapshot so the values are from the same sampling instant.
func (a *LTC4015Adapter) UpdateDynamicCache(ctx context.Context) (battery.DynamicCache, error) {
	snap := a.dev.Snapshot()
	return battery.DynamicCache{
		VoltageMV:             clampU16(snap.Pack_mV),
		CurrentMA:             int16(snap.IBat_mA),
		TemperatureDeciKelvin: milliCelsiusToDeciKelvin(snap.Die_mC),
		StatusBits:            uint16(snap.System),
	}, nil
}

// Init implements charger.Controller.
func (a *LTC4015Adapter) Init(ctx context.Context) error {
	return a.Initialize(ctx)
}

// SetChargingCurrentMA implements charger.Controller.
func (a *LTC4015Adapter) SetChargingCurrentMA(ctx context.Context, mA uint16) error {
	if err := a.dev.SetIChargeTarget_mA(int32(mA)); err != nil {
		return ecerr.Wrapf(ltc4015LogTag, ecerr.DeviceError, err, "set charge target")
	}
	return nil
}

func clampU16(mV int32) uint16 {
	if mV < 0 {
		return 0
	}
	if mV > 0xFFFF {
		return 0xFFFF
	}
	return uint16(mV)
}

// milliCelsiusToDeciKelvin converts the die temperature (milli-degrees
// Celsius) Die_mC reports into deci-Kelvin, rounding to the nearest unit.
func milliCelsiusToDeciKelvin(mC int32) uint16 {
	deciKelvin := (int64(mC) + 273150 + 50) / 100
	if deciKelvin < 0 {
		return 0
	}
	if deciKelvin > 0xFFFF {
		return 0xFFFF
	}
	return uint16(deciKelvin)
}
