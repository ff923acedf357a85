// internal/setup/layouts.go
package setup

import (
	"github.com/shopspring/decimal"

	"unilog-service/internal/checksum"
)

// UniLog runtime configuration, answered to the query-config command.
const (
	FieldModusA2                 = "modus_a2"
	FieldModusA3                 = "modus_a3"
	FieldMemoryUsed              = "memory_used"
	FieldFirmware                = "firmware"
	FieldMemoryDeleted           = "memory_deleted"
	FieldTimeInterval            = "time_interval"
	FieldMotorPoles              = "motor_poles"
	FieldBladeOrPoleCount        = "blade_or_pole_count"
	FieldAutoStartCurrentEnabled = "auto_start_current_enabled"
	FieldAutoStartCurrent        = "auto_start_current"
	FieldAutoStartRxEnabled      = "auto_start_rx_enabled"
	FieldAutoStartRx             = "auto_start_rx"
	FieldAutoStartTimeEnabled    = "auto_start_time_enabled"
	FieldAutoStartTime           = "auto_start_time"
	FieldCurrentSensor           = "current_sensor"
	FieldSerialNumber            = "serial_number"
	FieldModusA1                 = "modus_a1"
	FieldLimiterEnabled          = "limiter_enabled"
	FieldLimiter                 = "limiter"
	FieldGearRatio               = "gear_ratio"
)

// Gen1Runtime is the 24 byte UniLog configuration frame
var Gen1Runtime = &Layout{
	Name:     "unilog-config",
	Size:     24,
	Checksum: checksum.AdditivePlusOne,
	Fields: []Field{
		{Name: FieldModusA2, Offset: 4, Width: U8},
		{Name: FieldModusA3, Offset: 5, Width: U8},
		{Name: FieldMemoryUsed, Offset: 6, Width: U16BE, ReadOnly: true},
		{Name: FieldFirmware, Offset: 8, Width: U8, Scale: -2, ReadOnly: true},
		{Name: FieldMemoryDeleted, Offset: 9, Width: U8, ReadOnly: true},
		{Name: FieldTimeInterval, Offset: 10, Width: U8},
		{Name: FieldMotorPoles, Offset: 11, Width: U8, Mask: 0x80},
		{Name: FieldBladeOrPoleCount, Offset: 11, Width: U8, Mask: 0x7F},
		{Name: FieldAutoStartCurrentEnabled, Offset: 12, Width: U8, Mask: 0x80},
		{Name: FieldAutoStartCurrent, Offset: 12, Width: U8, Mask: 0x7F},
		{Name: FieldAutoStartRxEnabled, Offset: 13, Width: U8, Mask: 0x80},
		{Name: FieldAutoStartRx, Offset: 13, Width: U8, Mask: 0x7F},
		{Name: FieldAutoStartTimeEnabled, Offset: 14, Width: U8, Mask: 0x80},
		{Name: FieldAutoStartTime, Offset: 14, Width: U8, Mask: 0x7F},
		{Name: FieldCurrentSensor, Offset: 15, Width: U8},
		{Name: FieldSerialNumber, Offset: 16, Width: U16BE, ReadOnly: true},
		{Name: FieldModusA1, Offset: 18, Width: U8},
		{Name: FieldLimiterEnabled, Offset: 19, Width: U8, Mask: 0x80},
		{Name: FieldLimiter, Offset: 19, Width: U16BE, Mask: 0x7FFF},
		{Name: FieldGearRatio, Offset: 21, Width: U8, Scale: -1},
	},
	Defaults: map[string]decimal.Decimal{
		FieldTimeInterval:     decimal.NewFromInt(3),
		FieldBladeOrPoleCount: decimal.NewFromInt(2),
		FieldAutoStartCurrent: decimal.NewFromInt(3),
		FieldGearRatio:        decimal.New(10, -1),
	},
}

// UniLog telemetry configuration, answered to the query-telemetry command.
const (
	FieldAlarmCurrentEnabled      = "alarm_current_enabled"
	FieldAlarmVoltageStartEnabled = "alarm_voltage_start_enabled"
	FieldAlarmVoltageEnabled      = "alarm_voltage_enabled"
	FieldAlarmCapacityEnabled     = "alarm_capacity_enabled"
	FieldAlarmHeightEnabled       = "alarm_height_enabled"
	FieldAlarmCurrent             = "alarm_current"
	FieldAlarmVoltageStart        = "alarm_voltage_start"
	FieldAlarmVoltage             = "alarm_voltage"
	FieldAlarmCapacity            = "alarm_capacity"
	FieldAlarmHeight              = "alarm_height"
	FieldAddressCurrent           = "address_current"
	FieldAddressVoltage           = "address_voltage"
	FieldAddressRevolution        = "address_revolution"
	FieldAddressCapacity          = "address_capacity"
	FieldAddressHeight            = "address_height"
)

// Gen1Telemetry is the 24 byte UniLog telemetry frame
var Gen1Telemetry = &Layout{
	Name:     "unilog-telemetry",
	Size:     24,
	Checksum: checksum.AdditivePlusOne,
	Fields: []Field{
		{Name: FieldAlarmCurrent, Offset: 4, Width: U16LE},
		{Name: FieldAlarmVoltageStart, Offset: 6, Width: U16LE, Scale: -1},
		{Name: FieldAlarmVoltage, Offset: 8, Width: U16LE, Scale: -1},
		{Name: FieldAlarmCapacity, Offset: 10, Width: U16LE},
		{Name: FieldAlarmHeight, Offset: 12, Width: U16LE},
		{Name: FieldAddressCurrent, Offset: 14, Width: U8},
		{Name: FieldAddressVoltage, Offset: 15, Width: U8},
		{Name: FieldAddressRevolution, Offset: 16, Width: U8},
		{Name: FieldAddressCapacity, Offset: 17, Width: U8},
		{Name: FieldAddressHeight, Offset: 18, Width: U8},
		{Name: FieldAlarmCurrentEnabled, Offset: 19, Width: U8, Mask: 0x01},
		{Name: FieldAlarmVoltageStartEnabled, Offset: 19, Width: U8, Mask: 0x02},
		{Name: FieldAlarmVoltageEnabled, Offset: 19, Width: U8, Mask: 0x04},
		{Name: FieldAlarmCapacityEnabled, Offset: 19, Width: U8, Mask: 0x08},
		{Name: FieldAlarmHeightEnabled, Offset: 19, Width: U8, Mask: 0x10},
	},
	Defaults: map[string]decimal.Decimal{
		FieldAlarmCurrent:             decimal.NewFromInt(60),
		FieldAlarmVoltageStart:        decimal.New(140, -1),
		FieldAlarmVoltageStartEnabled: decimal.NewFromInt(1),
		FieldAlarmVoltage:             decimal.New(120, -1),
		FieldAlarmCapacity:            decimal.NewFromInt(2600),
		FieldAlarmHeight:              decimal.NewFromInt(300),
		FieldAlarmHeightEnabled:       decimal.NewFromInt(1),
		FieldAddressCurrent:           decimal.NewFromInt(3),
		FieldAddressVoltage:           decimal.NewFromInt(2),
		FieldAddressRevolution:        decimal.NewFromInt(5),
		FieldAddressCapacity:          decimal.NewFromInt(4),
		FieldAddressHeight:            decimal.NewFromInt(6),
	},
}

// UniLog2 setup block, exchanged as a 192 byte file.
const (
	FieldDataRate             = "data_rate"
	FieldStartCurrentEnabled  = "start_current_enabled"
	FieldStartRxEnabled       = "start_rx_enabled"
	FieldStartTimeEnabled     = "start_time_enabled"
	FieldStartCurrent         = "start_current"
	FieldStartRx              = "start_rx"
	FieldStartTime            = "start_time"
	FieldCurrentSensorType    = "current_sensor_type"
	FieldPropOrPoleCount      = "prop_or_pole_count"
	FieldGearFactor           = "gear_factor"
	FieldVarioThreshold       = "vario_threshold"
	FieldVarioTone            = "vario_tone"
	FieldLimiterModus         = "limiter_modus"
	FieldEnergyLimit          = "energy_limit"
	FieldMinMaxRx             = "min_max_rx"
	FieldStopModus            = "stop_modus"
	FieldTelAlarmCurrent      = "tel_alarm_current_enabled"
	FieldTelAlarmVoltageStart = "tel_alarm_voltage_start_enabled"
	FieldTelAlarmVoltage      = "tel_alarm_voltage_enabled"
	FieldTelAlarmCapacity     = "tel_alarm_capacity_enabled"
	FieldTelAlarmHeight       = "tel_alarm_height_enabled"
	FieldTelAlarmVoltageRx    = "tel_alarm_voltage_rx_enabled"
	FieldTelAlarmCellVoltage  = "tel_alarm_cell_voltage_enabled"
	FieldCurrentAlarm         = "current_alarm"
	FieldVoltageStartAlarm    = "voltage_start_alarm"
	FieldVoltageAlarm         = "voltage_alarm"
	FieldCapacityAlarm        = "capacity_alarm"
	FieldHeightAlarm          = "height_alarm"
	FieldVoltageRxAlarm       = "voltage_rx_alarm"
	FieldCellVoltageAlarm     = "cell_voltage_alarm"
	FieldMLinkVoltage         = "mlink_voltage"
	FieldMLinkCurrent         = "mlink_current"
	FieldMLinkRevolution      = "mlink_revolution"
	FieldMLinkCapacity        = "mlink_capacity"
	FieldMLinkVario           = "mlink_vario"
	FieldMLinkHeight          = "mlink_height"
	FieldMLinkA1              = "mlink_a1"
	FieldMLinkA2              = "mlink_a2"
	FieldMLinkA3              = "mlink_a3"
	FieldMLinkCell1           = "mlink_cell1"
	FieldMLinkCell2           = "mlink_cell2"
	FieldMLinkCell3           = "mlink_cell3"
	FieldMLinkCell4           = "mlink_cell4"
	FieldMLinkCell5           = "mlink_cell5"
	FieldMLinkCell6           = "mlink_cell6"
)

const (
	Gen2SupportedFirmware = 103
	Gen2SetupSize         = 192

	mLinkUnassigned            = 16
	gen2DefaultSerialNumber    = 357
	gen2DefaultDataRate        = 2
	gen2DefaultStartCurrent    = 3
	gen2DefaultStartRx         = 15
	gen2DefaultStartTime       = 5
	gen2DefaultCurrentSensor   = 1
	gen2DefaultPropOrPoleCount = 2
)

// Gen2DataRateHz maps the data_rate index to samples per second
var Gen2DataRateHz = []int{50, 20, 10, 5, 2, 1}

// Gen2Setup is the UniLog2 setup block
var Gen2Setup = &Layout{
	Name:     "unilog2-setup",
	Size:     Gen2SetupSize,
	Checksum: checksum.XModem,
	Fields: []Field{
		{Name: FieldSerialNumber, Offset: 0, Width: U16LE},
		{Name: FieldFirmware, Offset: 2, Width: U16LE},
		{Name: FieldDataRate, Offset: 4, Width: U16LE},
		{Name: FieldStartCurrentEnabled, Offset: 6, Width: U16LE, Mask: 0x0001},
		{Name: FieldStartRxEnabled, Offset: 6, Width: U16LE, Mask: 0x0002},
		{Name: FieldStartTimeEnabled, Offset: 6, Width: U16LE, Mask: 0x0004},
		{Name: FieldStartCurrent, Offset: 8, Width: U16LE},
		{Name: FieldStartRx, Offset: 10, Width: U16LE, Scale: -1},
		{Name: FieldStartTime, Offset: 12, Width: U16LE},
		{Name: FieldCurrentSensorType, Offset: 14, Width: U16LE},
		{Name: FieldModusA1, Offset: 16, Width: U16LE},
		{Name: FieldModusA2, Offset: 18, Width: U16LE},
		{Name: FieldModusA3, Offset: 20, Width: U16LE},
		{Name: FieldPropOrPoleCount, Offset: 22, Width: U16LE},
		{Name: FieldGearFactor, Offset: 24, Width: U16LE, Scale: -2},
		{Name: FieldVarioThreshold, Offset: 26, Width: U16LE, Scale: -1},
		{Name: FieldVarioTone, Offset: 28, Width: U16LE},
		{Name: FieldLimiterModus, Offset: 30, Width: U16LE},
		{Name: FieldEnergyLimit, Offset: 32, Width: U16LE},
		{Name: FieldMinMaxRx, Offset: 34, Width: U16LE},
		{Name: FieldStopModus, Offset: 36, Width: U16LE},
		{Name: FieldTelAlarmCurrent, Offset: 74, Width: U16LE, Mask: 0x0001},
		{Name: FieldTelAlarmVoltageStart, Offset: 74, Width: U16LE, Mask: 0x0002},
		{Name: FieldTelAlarmVoltage, Offset: 74, Width: U16LE, Mask: 0x0004},
		{Name: FieldTelAlarmCapacity, Offset: 74, Width: U16LE, Mask: 0x0008},
		{Name: FieldTelAlarmHeight, Offset: 74, Width: U16LE, Mask: 0x0010},
		{Name: FieldTelAlarmVoltageRx, Offset: 74, Width: U16LE, Mask: 0x0020},
		{Name: FieldTelAlarmCellVoltage, Offset: 74, Width: U16LE, Mask: 0x0040},
		{Name: FieldCurrentAlarm, Offset: 76, Width: U16LE},
		{Name: FieldVoltageStartAlarm, Offset: 78, Width: U16LE, Scale: -1},
		{Name: FieldVoltageAlarm, Offset: 80, Width: U16LE, Scale: -1},
		{Name: FieldCapacityAlarm, Offset: 82, Width: U16LE},
		{Name: FieldHeightAlarm, Offset: 84, Width: U16LE},
		{Name: FieldVoltageRxAlarm, Offset: 86, Width: U16LE, Scale: -2},
		{Name: FieldCellVoltageAlarm, Offset: 88, Width: U16LE, Scale: -1},
		{Name: FieldMLinkVoltage, Offset: 128, Width: U8},
		{Name: FieldMLinkCurrent, Offset: 129, Width: U8},
		{Name: FieldMLinkRevolution, Offset: 130, Width: U8},
		{Name: FieldMLinkCapacity, Offset: 131, Width: U8},
		{Name: FieldMLinkVario, Offset: 132, Width: U8},
		{Name: FieldMLinkHeight, Offset: 133, Width: U8},
		{Name: FieldMLinkA1, Offset: 134, Width: U8},
		{Name: FieldMLinkA2, Offset: 135, Width: U8},
		{Name: FieldMLinkA3, Offset: 136, Width: U8},
		{Name: FieldMLinkCell1, Offset: 138, Width: U8},
		{Name: FieldMLinkCell2, Offset: 139, Width: U8},
		{Name: FieldMLinkCell3, Offset: 140, Width: U8},
		{Name: FieldMLinkCell4, Offset: 141, Width: U8},
		{Name: FieldMLinkCell5, Offset: 142, Width: U8},
		{Name: FieldMLinkCell6, Offset: 143, Width: U8},
	},
	FirmwareField:    FieldFirmware,
	ExpectedFirmware: decimal.NewFromInt(Gen2SupportedFirmware),
	Defaults: map[string]decimal.Decimal{
		FieldSerialNumber:        decimal.NewFromInt(gen2DefaultSerialNumber),
		FieldFirmware:            decimal.NewFromInt(Gen2SupportedFirmware),
		FieldDataRate:            decimal.NewFromInt(gen2DefaultDataRate),
		FieldStartCurrentEnabled: decimal.NewFromInt(1),
		FieldStartCurrent:        decimal.NewFromInt(gen2DefaultStartCurrent),
		FieldStartRx:             decimal.New(gen2DefaultStartRx, -1),
		FieldStartTime:           decimal.NewFromInt(gen2DefaultStartTime),
		FieldCurrentSensorType:   decimal.NewFromInt(gen2DefaultCurrentSensor),
		FieldPropOrPoleCount:     decimal.NewFromInt(gen2DefaultPropOrPoleCount),
		FieldGearFactor:          decimal.New(100, -2),
		FieldVarioThreshold:      decimal.New(5, -1),
		FieldEnergyLimit:         decimal.NewFromInt(1000),
		FieldCurrentAlarm:        decimal.NewFromInt(100),
		FieldVoltageStartAlarm:   decimal.New(124, -1),
		FieldVoltageAlarm:        decimal.New(100, -1),
		FieldCapacityAlarm:       decimal.NewFromInt(2000),
		FieldHeightAlarm:         decimal.NewFromInt(200),
		FieldVoltageRxAlarm:      decimal.New(450, -2),
		FieldCellVoltageAlarm:    decimal.New(30, -1),
		FieldMLinkVoltage:        decimal.NewFromInt(0),
		FieldMLinkCurrent:        decimal.NewFromInt(1),
		FieldMLinkRevolution:     decimal.NewFromInt(2),
		FieldMLinkCapacity:       decimal.NewFromInt(3),
		FieldMLinkVario:          decimal.NewFromInt(4),
		FieldMLinkHeight:         decimal.NewFromInt(5),
		FieldMLinkA1:             decimal.NewFromInt(6),
		FieldMLinkA2:             decimal.NewFromInt(7),
		FieldMLinkA3:             decimal.NewFromInt(8),
		FieldMLinkCell1:          decimal.NewFromInt(mLinkUnassigned),
		FieldMLinkCell2:          decimal.NewFromInt(mLinkUnassigned),
		FieldMLinkCell3:          decimal.NewFromInt(mLinkUnassigned),
		FieldMLinkCell4:          decimal.NewFromInt(mLinkUnassigned),
		FieldMLinkCell5:          decimal.NewFromInt(mLinkUnassigned),
		FieldMLinkCell6:          decimal.NewFromInt(mLinkUnassigned),
	},
}

// reservedMLinkOffset is written as "unassigned" by New
const reservedMLinkOffset = 137

// NewGen2Setup returns the factory default UniLog2 setup block
func NewGen2Setup() *Block {
	b := Gen2Setup.New()
	b.raw[reservedMLinkOffset] = mLinkUnassigned
	return b
}

// LayoutByName returns one of the known layouts
func LayoutByName(name string) (*Layout, bool) {
	for _, l := range []*Layout{Gen1Runtime, Gen1Telemetry, Gen2Setup} {
		if l.Name == name {
			return l, true
		}
	}
	return nil, false
}
