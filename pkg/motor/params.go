package motor

import "github.com/robotalks/drivelink/pkg/comm"

// Parameter IDs.
const (
	ParamFirmwareVersion byte = 0x00
	ParamDataRate        byte = 0x01
	ParamMinSpeed        byte = 0x02
	ParamMaxSpeed        byte = 0x03
	ParamTargetSpeed     byte = 0x04
	ParamCurrentSpeed    byte = 0x05
	ParamAccel           byte = 0x06
	ParamDecel           byte = 0x07
	ParamDirection       byte = 0x0d
	ParamVFTable         byte = 0x0e
	ParamNumPoles        byte = 0x14
	ParamSpeedP          byte = 0x1a
	ParamFaultStatus     byte = 0x2c
	ParamMotorStatus     byte = 0x2d
	ParamMaxTemperature  byte = 0x33
	ParamEthRxCount      byte = 0x3a
	ParamEthTxCount      byte = 0x3b
	ParamEthTCPTimeout   byte = 0x3c
)

// Data item IDs.
const (
	DataPhaseACurrent  byte = 0x00
	DataPhaseBCurrent  byte = 0x01
	DataPhaseCCurrent  byte = 0x02
	DataMotorCurrent   byte = 0x03
	DataBusVoltage     byte = 0x04
	DataMotorPosition  byte = 0x05
	DataStatorSpeed    byte = 0x06
	DataRotorSpeed     byte = 0x07
	DataProcessorUsage byte = 0x08
	DataMotorStatus    byte = 0x09
	DataDirection      byte = 0x0a
	DataFaultStatus    byte = 0x0b
	DataTemperature    byte = 0x0c
	DataMotorPower     byte = 0x0f
)

// Motor status values.
const (
	StatusStop  byte = 0x00
	StatusRun   byte = 0x01
	StatusAccel byte = 0x02
	StatusDecel byte = 0x03
)

// Fault flags.
const (
	FaultEmergencyStop   uint32 = 0x01
	FaultOverTemperature uint32 = 0x08
)

// FirmwareVersion is reported by ParamFirmwareVersion.
const FirmwareVersion = 0x0105

// VFTableSize is the number of V/f table entries.
const VFTableSize = 21

// Cells is the parameter and data item storage of a Drive.
type Cells struct {
	Firmware       *comm.Word
	DataRate       *comm.Word // milliseconds
	MinSpeed       *comm.Word // 1/10 Hz
	MaxSpeed       *comm.Word
	TargetSpeed    *comm.Word
	CurrentSpeed   *comm.Word
	Accel          *comm.Word // Hz/s
	Decel          *comm.Word
	Direction      *comm.Word
	VFTable        *comm.Blob // VFTableSize 1.15 fixed point amplitudes
	NumPoles       *comm.Word
	SpeedP         *comm.Word // signed 16.16
	FaultStatus    *comm.Word
	MotorStatus    *comm.Word
	MaxTemperature *comm.Word // degrees C
	EthRxCount     *comm.Word
	EthTxCount     *comm.Word
	EthTCPTimeout  *comm.Word // seconds, 0 disables

	PhaseCurrents  [3]*comm.Word // mA, signed
	MotorCurrent   *comm.Word    // mA
	BusVoltage     *comm.Word    // V
	Position       *comm.Word
	RotorSpeed     *comm.Word
	ProcessorUsage *comm.Word // percent
	Temperature    *comm.Word
	Power          *comm.Word // W
}

func newCells() *Cells {
	c := &Cells{
		Firmware:       comm.NewWord(2, FirmwareVersion),
		DataRate:       comm.NewWord(2, 100),
		MinSpeed:       comm.NewWord(2, 50),
		MaxSpeed:       comm.NewWord(2, 600),
		TargetSpeed:    comm.NewWord(2, 300),
		CurrentSpeed:   comm.NewWord(2, 0),
		Accel:          comm.NewWord(1, 10),
		Decel:          comm.NewWord(1, 10),
		Direction:      comm.NewWord(1, 0),
		VFTable:        comm.NewBlob(defaultVFTable()),
		NumPoles:       comm.NewWord(1, 4),
		SpeedP:         comm.NewWord(4, 0x00010000),
		FaultStatus:    comm.NewWord(1, 0),
		MotorStatus:    comm.NewWord(1, uint32(StatusStop)),
		MaxTemperature: comm.NewWord(1, 85),
		EthRxCount:     comm.NewWord(4, 0),
		EthTxCount:     comm.NewWord(4, 0),
		EthTCPTimeout:  comm.NewWord(4, 0),
		MotorCurrent:   comm.NewWord(2, 0),
		BusVoltage:     comm.NewWord(2, 325),
		Position:       comm.NewWord(4, 0),
		RotorSpeed:     comm.NewWord(2, 0),
		ProcessorUsage: comm.NewWord(1, 0),
		Temperature:    comm.NewWord(1, 25),
		Power:          comm.NewWord(2, 0),
	}
	for i := range c.PhaseCurrents {
		c.PhaseCurrents[i] = comm.NewWord(2, 0)
	}
	return c
}

// defaultVFTable ramps the amplitude linearly to full scale.
func defaultVFTable() []byte {
	table := make([]byte, VFTableSize*2)
	for i := 0; i < VFTableSize; i++ {
		v := uint16(i * 0x7fff / (VFTableSize - 1))
		table[i*2], table[i*2+1] = byte(v), byte(v>>8)
	}
	return table
}

func (d *Drive) parameters() []*comm.Parameter {
	c := d.cells
	return []*comm.Parameter{
		{ID: ParamFirmwareVersion, Value: c.Firmware},
		{ID: ParamDataRate, Range: comm.Unsigned(10, 5000), Step: 10, Value: c.DataRate},
		{ID: ParamMinSpeed, Range: comm.Unsigned(0, 4000), Step: 1, Value: c.MinSpeed},
		{ID: ParamMaxSpeed, Range: comm.Unsigned(0, 4000), Step: 1, Value: c.MaxSpeed},
		{ID: ParamTargetSpeed, Range: comm.Unsigned(0, 4000), Step: 1, Value: c.TargetSpeed},
		{ID: ParamCurrentSpeed, Range: comm.Unsigned(0, 4000), Value: c.CurrentSpeed},
		{ID: ParamAccel, Range: comm.Unsigned(1, 100), Step: 1, Value: c.Accel},
		{ID: ParamDecel, Range: comm.Unsigned(1, 100), Step: 1, Value: c.Decel},
		{ID: ParamDirection, Range: comm.Unsigned(0, 1), Step: 1, Value: c.Direction},
		{ID: ParamVFTable, Step: 1, Value: c.VFTable},
		{ID: ParamNumPoles, Range: comm.Unsigned(0, 255), Step: 1, Value: c.NumPoles},
		// full signed range as declared in firmware tables.
		{ID: ParamSpeedP, Range: comm.LegacyRange(0x80000000, 0x7fffffff), Step: 1, Value: c.SpeedP},
		{ID: ParamFaultStatus, Range: comm.Unsigned(0, 255), Step: 1, Value: c.FaultStatus, OnUpdate: d.clearFaults},
		{ID: ParamMotorStatus, Value: c.MotorStatus},
		{ID: ParamMaxTemperature, Range: comm.Unsigned(40, 150), Step: 1, Value: c.MaxTemperature},
		{ID: ParamEthRxCount, Range: comm.Unsigned(0, 0xffffffff), Step: 1, Value: c.EthRxCount},
		{ID: ParamEthTxCount, Range: comm.Unsigned(0, 0xffffffff), Step: 1, Value: c.EthTxCount},
		{ID: ParamEthTCPTimeout, Range: comm.Unsigned(0, 0xffffffff), Step: 1, Value: c.EthTCPTimeout},
	}
}

func (d *Drive) dataItems() []*comm.DataItem {
	c := d.cells
	return []*comm.DataItem{
		{ID: DataPhaseACurrent, Value: c.PhaseCurrents[0]},
		{ID: DataPhaseBCurrent, Value: c.PhaseCurrents[1]},
		{ID: DataPhaseCCurrent, Value: c.PhaseCurrents[2]},
		{ID: DataMotorCurrent, Value: c.MotorCurrent},
		{ID: DataBusVoltage, Value: c.BusVoltage},
		{ID: DataMotorPosition, Value: c.Position},
		{ID: DataStatorSpeed, Value: c.CurrentSpeed},
		{ID: DataRotorSpeed, Value: c.RotorSpeed},
		{ID: DataProcessorUsage, Value: c.ProcessorUsage},
		{ID: DataMotorStatus, Value: c.MotorStatus},
		{ID: DataDirection, Value: c.Direction},
		{ID: DataFaultStatus, Value: c.FaultStatus},
		{ID: DataTemperature, Value: c.Temperature},
		{ID: DataMotorPower, Value: c.Power},
	}
}
