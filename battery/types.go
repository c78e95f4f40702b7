// Package battery drives each registered fuel gauge through
// initialization, static-data load, and repeated dynamic-data polling,
// bounded by a state-machine timeout and a per-command device timeout.
package battery

import (
	"context"
	"time"
)

// FuelGauge is the concrete driver behind one battery device; its
// register layout (e.g. a BQ-family fuel gauge/charger IC) is out of
// scope per spec §1 — only this behavioral contract is driven here.
type FuelGauge interface {
	Ping(ctx context.Context) error
	Initialize(ctx context.Context) error
	UpdateStaticCache(ctx context.Context) (StaticCache, error)
	UpdateDynamicCache(ctx context.Context) (DynamicCache, error)
	// Timeout bounds a single command issued against this device.
	Timeout() time.Duration
}

// StaticCache is the fixed-size fields a fuel gauge reports once per
// Operational.Init pass.
type StaticCache struct {
	Manufacturer      [21]byte
	DeviceName        [21]byte
	Chemistry         [5]byte
	ChemistryID       uint16
	DesignCapacityMWh uint32
	DesignVoltageMV   uint16
	Serial            [4]byte
}

// DynamicCache is refreshed on every Operational.Polling pass.
type DynamicCache struct {
	MaxPowerMW            uint32
	SusPowerMW            uint32
	FullChargeCapMWh      uint32
	RemainingCapMWh       uint32
	RSOCPercent           uint8
	CycleCount            uint16
	VoltageMV             uint16
	MaxErrorPercent       uint8
	StatusBits            uint16
	ChargingVoltageMV     uint16
	ChargingCurrentMA     uint16
	TemperatureDeciKelvin uint16
	CurrentMA             int16
	AvgCurrentMA          int16
}

// Stage is the hierarchical FSM position of §4.7.
type Stage uint8

const (
	StageNotPresent Stage = iota
	StagePresentNotOperational
	StagePresentOperationalInit
	StagePresentOperationalPolling
)

func (s Stage) String() string {
	switch s {
	case StageNotPresent:
		return "not_present"
	case StagePresentNotOperational:
		return "present.not_operational"
	case StagePresentOperationalInit:
		return "present.operational.init"
	case StagePresentOperationalPolling:
		return "present.operational.polling"
	default:
		return "?"
	}
}

// EventKind is the set of events the FSM accepts.
type EventKind uint8

const (
	EventDoInit EventKind = iota
	EventPollStaticData
	EventPollDynamicData
	EventTimeout
	EventOem
)

// Event carries an optional vendor-passthrough payload for EventOem.
type Event struct {
	Kind    EventKind
	OemCode uint8
	OemData []byte
}
