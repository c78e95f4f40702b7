package boardconfig

// Populate embeddedConfigs at build time (e.g. via code generation) or
// manually during development. Key: device ID (the value placed in ctx
// under CtxDeviceKey). Value: raw JSON bytes for that device's board
// document, in the schema boardconfig.Load parses.
const cfgReference = `{
  "battery": {
    "state_machine_timeout_ms": 120000,
    "fuel_gauges": [
      {"id": 1, "cmd_timeout_ms": 500}
    ]
  },
  "charger": { "cmd_timeout_ms": 500 },
  "typec": { "cmd_timeout_ms": 2500 },
  "hid": { "response_timeout_ms": 200, "interbyte_timeout_ms": 50 },
  "nvram": {
    "valid_low": 3,
    "valid_high": 8,
    "sections": [
      {"name": "battery_design_capacity", "offset": 3},
      {"name": "charger_trim", "offset": 4}
    ]
  },
  "cfu": {
    "components": [
      {"id": 1, "subcomponents": [2, 3]},
      {"id": 2},
      {"id": 3}
    ]
  }
}`

var embeddedConfigs = map[string][]byte{
	"reference": []byte(cfgReference),
}
