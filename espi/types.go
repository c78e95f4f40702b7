// Package espi implements the eSPI host-surface bridge: a byte-addressed,
// little-endian, packed memory map the host reads directly, with writes
// routed through typed internal messages rather than applied to the map
// in place.
package espi

// Section identifies one of the memory map's top-level regions.
type Section int

const (
	SectionVersion Section = iota
	SectionCapabilities
	SectionNotifications
	SectionTimeAlarm
	SectionBattery
	SectionThermal
)

// Byte layout. Offsets are structural: the host reads this exact byte
// sequence over eSPI, so field order and width must never change.
const (
	versionOffset  = 0
	versionSize    = 4 // major, minor, spin, res0: u8 each

	capabilitiesOffset = versionOffset + versionSize
	capabilitiesSize   = 20 // events:u32 fw_version:4 secure_state:u8 boot_status:u8 fan_mask:u8 battery_mask:u8 temp_mask:u16 key_mask:u16 debug_mask:u16 res0:u16

	notificationsOffset = capabilitiesOffset + capabilitiesSize
	notificationsSize   = 4 // service:u16, event:u16

	timeAlarmOffset = notificationsOffset + notificationsSize
	timeAlarmSize   = 36

	batteryOffset = timeAlarmOffset + timeAlarmSize
	batterySize   = int(batteryFieldCount) * 4

	thermalOffset = batteryOffset + batterySize
	thermalSize   = int(thermalFieldCount) * 4

	memoryMapSize = thermalOffset + thermalSize
)

// Capabilities field offsets within the Capabilities section.
const (
	capEventsOffset       = 0
	capFwVersionOffset    = 4
	capSecureStateOffset  = 8
	capBootStatusOffset   = 9
	capFanMaskOffset      = 10
	capBatteryMaskOffset  = 11
	capTempMaskOffset     = 12
	capKeyMaskOffset      = 14
	capDebugMaskOffset    = 16
)

// TimeAlarm field table: offset + width within the TimeAlarm section,
// in the order declared in the original structure (events first, packed
// with no padding).
type timeAlarmField struct {
	id     TimeAlarmFieldID
	offset uint16
	size   uint8
}

var timeAlarmFields = []timeAlarmField{
	{TAEvents, 0, 4},
	{TACapability, 4, 4},
	{TAYear, 8, 2},
	{TAMonth, 10, 1},
	{TADay, 11, 1},
	{TAHour, 12, 1},
	{TAMinute, 13, 1},
	{TASecond, 14, 1},
	{TAValid, 15, 1},
	{TADaylight, 16, 1},
	{TARes1, 17, 1},
	{TAMilli, 18, 2},
	{TATimeZone, 20, 2},
	{TARes2, 22, 2},
	{TAAlarmStatus, 24, 4},
	{TAAcTimeVal, 28, 4},
	{TADcTimeVal, 32, 4},
}

// TimeAlarmFieldID names one TimeAlarm field.
type TimeAlarmFieldID int

const (
	TAEvents TimeAlarmFieldID = iota
	TACapability
	TAYear
	TAMonth
	TADay
	TAHour
	TAMinute
	TASecond
	TAValid
	TADaylight
	TARes1
	TAMilli
	TATimeZone
	TARes2
	TAAlarmStatus
	TAAcTimeVal
	TADcTimeVal
)

// BatteryFieldID names one Battery field; all 25 fields are u32 and laid
// out back to back with no padding.
type BatteryFieldID int

const (
	BatEvents BatteryFieldID = iota
	BatStatus
	BatLastFullCharge
	BatCycleCount
	BatState
	BatPresentRate
	BatRemainCap
	BatPresentVolt
	BatPsrState
	BatPsrMaxOut
	BatPsrMaxIn
	BatPeakLevel
	BatPeakPower
	BatSusLevel
	BatSusPower
	BatPeakThres
	BatSusThres
	BatTripThres
	BatBmcData
	BatBmdData
	BatBmdFlags
	BatBmdCount
	BatChargeTime
	BatRunTime
	BatSampleTime

	batteryFieldCount
)

// ThermalFieldID names one Thermal field; all 16 fields are u32.
type ThermalFieldID int

const (
	ThEvents ThermalFieldID = iota
	ThCoolMode
	ThDbaLimit
	ThSonneLimit
	ThMaLimit
	ThFan1OnTemp
	ThFan1RampTemp
	ThFan1MaxTemp
	ThFan1CrtTemp
	ThFan1HotTemp
	ThFan1MaxRpm
	ThFan1CurRpm
	ThTmp1Val
	ThTmp1Timeout
	ThTmp1Low
	ThTmp1High

	thermalFieldCount
)
