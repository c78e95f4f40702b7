// Package boardconfig loads the static, build-embedded board
// configuration document: per-service command timeouts, the NVRAM
// section table, and the CFU primary/subcomponent map, validating all
// of it before any service starts.
package boardconfig

import (
	"time"

	"github.com/andreyvit/tinyjson"

	"github.com/jangala-dev/ecfw-core/cfu"
	"github.com/jangala-dev/ecfw-core/internal/ecerr"
	"github.com/jangala-dev/ecfw-core/nvram"
	"github.com/jangala-dev/ecfw-core/x/fmtx"
	"github.com/jangala-dev/ecfw-core/x/strx"
)

const logTag = "boardconfig"

// Config is the fully parsed and validated board document.
type Config struct {
	Battery BatteryConfig
	Charger ChargerConfig
	Typec   TypecConfig
	HID     HIDConfig
	NVRAM   NVRAMConfig
	CFU     CFUConfig
}

// BatteryConfig carries the state-machine timeout shared by every
// fuel-gauge device and each device's own per-command timeout.
type BatteryConfig struct {
	StateMachineTimeout time.Duration
	FuelGauges          []FuelGaugeConfig
}

// FuelGaugeConfig names one configured fuel-gauge device and its
// per-command timeout.
type FuelGaugeConfig struct {
	ID             int
	CommandTimeout time.Duration
}

// ChargerConfig carries the charger wrapper's per-command timeout.
type ChargerConfig struct {
	CommandTimeout time.Duration
}

// TypecConfig carries the PD controller's per-command timeout.
type TypecConfig struct {
	CommandTimeout time.Duration
}

// HIDConfig carries the HID host bridge's response and inter-byte
// timeouts.
type HIDConfig struct {
	ResponseTimeout  time.Duration
	InterByteTimeout time.Duration
}

// NVRAMConfig is the board's NVRAM layout: the backing store's valid
// word-offset range plus the named sections within it.
type NVRAMConfig struct {
	Valid    nvram.Range
	Sections []NVRAMSection
}

// NVRAMSection names one NVRAM word offset for diagnostic purposes;
// its position in Sections is its Table index.
type NVRAMSection struct {
	Name   string
	Offset int
}

// CFUComponentConfig declares one updatable component and, if it is a
// primary, the subcomponents that share its update channel.
type CFUComponentConfig struct {
	ID            cfu.ComponentId
	Subcomponents []cfu.ComponentId
}

// CFUConfig is the full board CFU topology.
type CFUConfig struct {
	Components []CFUComponentConfig
}

func defaultConfig() Config {
	return Config{
		Battery: BatteryConfig{StateMachineTimeout: 120 * time.Second},
		Charger: ChargerConfig{CommandTimeout: time.Second},
		Typec:   TypecConfig{CommandTimeout: 2500 * time.Millisecond},
		HID: HIDConfig{
			ResponseTimeout:  200 * time.Millisecond,
			InterByteTimeout: 50 * time.Millisecond,
		},
	}
}

// Load parses raw as a JSON board document and validates it: NVRAM
// offsets must be in range and unique (delegated to nvram.Table.Validate),
// and the CFU component map must not declare a duplicate ID, an
// oversized subcomponent list, or a subcomponent ID with no matching
// component. Fields the document omits keep their package defaults.
func Load(raw []byte) (*Config, error) {
	r := tinyjson.Raw(raw)
	val := r.Value()
	if err := r.EnsureEOF(); err != nil {
		return nil, ecerr.Wrapf(logTag, ecerr.InvalidData, err, "trailing data after document")
	}

	root, ok := val.(map[string]any)
	if !ok {
		return nil, ecerr.Wrapf(logTag, ecerr.InvalidData, nil, "board document is not a JSON object")
	}

	cfg := defaultConfig()

	if obj, ok := objField(root, "battery"); ok {
		if ms, ok := durationMsField(obj, "state_machine_timeout_ms"); ok {
			cfg.Battery.StateMachineTimeout = ms
		}
		if arr, ok := arrField(obj, "fuel_gauges"); ok {
			for _, item := range arr {
				fg, ok := item.(map[string]any)
				if !ok {
					return nil, ecerr.Wrapf(logTag, ecerr.InvalidData, nil, "battery.fuel_gauges entry is not an object")
				}
				id, _ := intField(fg, "id")
				timeout := cfg.Charger.CommandTimeout
				if ms, ok := durationMsField(fg, "cmd_timeout_ms"); ok {
					timeout = ms
				}
				cfg.Battery.FuelGauges = append(cfg.Battery.FuelGauges, FuelGaugeConfig{ID: id, CommandTimeout: timeout})
			}
		}
	}

	if obj, ok := objField(root, "charger"); ok {
		if ms, ok := durationMsField(obj, "cmd_timeout_ms"); ok {
			cfg.Charger.CommandTimeout = ms
		}
	}

	if obj, ok := objField(root, "typec"); ok {
		if ms, ok := durationMsField(obj, "cmd_timeout_ms"); ok {
			cfg.Typec.CommandTimeout = ms
		}
	}

	if obj, ok := objField(root, "hid"); ok {
		if ms, ok := durationMsField(obj, "response_timeout_ms"); ok {
			cfg.HID.ResponseTimeout = ms
		}
		if ms, ok := durationMsField(obj, "interbyte_timeout_ms"); ok {
			cfg.HID.InterByteTimeout = ms
		}
	}

	if obj, ok := objField(root, "nvram"); ok {
		low, _ := intField(obj, "valid_low")
		high, _ := intField(obj, "valid_high")
		cfg.NVRAM.Valid = nvram.Range{Low: low, High: high}

		if arr, ok := arrField(obj, "sections"); ok {
			for _, item := range arr {
				s, ok := item.(map[string]any)
				if !ok {
					return nil, ecerr.Wrapf(logTag, ecerr.InvalidData, nil, "nvram.sections entry is not an object")
				}
				name, _ := strField(s, "name")
				offset, _ := intField(s, "offset")
				name = strx.Coalesce(name, fmtx.Sprintf("section-%d", offset))
				cfg.NVRAM.Sections = append(cfg.NVRAM.Sections, NVRAMSection{Name: name, Offset: offset})
			}
		}
	}

	if obj, ok := objField(root, "cfu"); ok {
		if arr, ok := arrField(obj, "components"); ok {
			for _, item := range arr {
				c, ok := item.(map[string]any)
				if !ok {
					return nil, ecerr.Wrapf(logTag, ecerr.InvalidData, nil, "cfu.components entry is not an object")
				}
				id, _ := intField(c, "id")
				entry := CFUComponentConfig{ID: cfu.ComponentId(id)}
				if subs, ok := arrField(c, "subcomponents"); ok {
					for _, sv := range subs {
						n, ok := sv.(float64)
						if !ok {
							return nil, ecerr.Wrapf(logTag, ecerr.InvalidData, nil, "cfu.components[].subcomponents entry is not a number")
						}
						entry.Subcomponents = append(entry.Subcomponents, cfu.ComponentId(n))
					}
				}
				cfg.CFU.Components = append(cfg.CFU.Components, entry)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects a document whose NVRAM table has a duplicate or
// out-of-range offset, or whose CFU map has a duplicate component ID,
// an oversized subcomponent list, or a subcomponent ID that names no
// declared component.
func (c *Config) Validate() error {
	offsets := make([]int, len(c.NVRAM.Sections))
	for i, s := range c.NVRAM.Sections {
		offsets[i] = s.Offset
	}
	if err := nvram.NewTable(c.NVRAM.Valid, offsets).Validate(); err != nil {
		return err
	}

	seen := make(map[cfu.ComponentId]bool, len(c.CFU.Components))
	for _, comp := range c.CFU.Components {
		if seen[comp.ID] {
			return ecerr.Wrapf(logTag, ecerr.InvalidData, nil, "cfu component %d declared more than once", comp.ID)
		}
		seen[comp.ID] = true
		if len(comp.Subcomponents) > cfu.MaxSubcomponents {
			return ecerr.Wrapf(logTag, ecerr.InvalidData, nil, "cfu component %d declares %d subcomponents, max %d",
				comp.ID, len(comp.Subcomponents), cfu.MaxSubcomponents)
		}
	}
	for _, comp := range c.CFU.Components {
		for _, sub := range comp.Subcomponents {
			if !seen[sub] {
				return ecerr.Wrapf(logTag, ecerr.InvalidData, nil, "cfu component %d names undeclared subcomponent %d", comp.ID, sub)
			}
		}
	}
	return nil
}

func objField(m map[string]any, key string) (map[string]any, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

func arrField(m map[string]any, key string) ([]any, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	arr, ok := v.([]any)
	return arr, ok
}

func strField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func intField(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	n, ok := v.(float64)
	return int(n), ok
}

func durationMsField(m map[string]any, key string) (time.Duration, bool) {
	n, ok := intField(m, key)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Millisecond, true
}
