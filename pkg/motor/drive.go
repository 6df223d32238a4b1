// Package motor simulates an AC induction motor drive controlled through
// the comm protocol.
package motor

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/drivelink/pkg/comm"
	"github.com/robotalks/drivelink/pkg/framework"
)

// ErrNoStore is returned by LoadParams and SaveParams without a Store.
var ErrNoStore = errors.New("parameter store not configured")

// ParamStore persists writable parameters.
type ParamStore interface {
	Save(drive string, reg *comm.Registry) error
	Load(drive string, reg *comm.Registry) (int, error)
}

// Simulation constants.
const (
	AmbientTemperature = 25.0
	NominalBusVoltage  = 325.0
	// PositionCounts is the encoder resolution per mechanical revolution.
	PositionCounts = 1024

	magnetizingCurrent = 800.0 // mA
	loadCurrentPerUnit = 2.0   // mA per 1/10 Hz
	accelCurrentFactor = 1.5
	ratedSlip          = 0.03
	thermalTimeConst   = 30.0 // seconds
	heatPerAmp         = 5.0  // degrees C above ambient per A
	maxStep            = time.Second
)

// Drive is a simulated ACIM drive. It implements comm.Hooks for the
// run and parameter commands and framework.Controller for the motor
// model.
type Drive struct {
	Name      string
	Store     ParamStore
	OnUpgrade func()

	cells    *Cells
	registry *comm.Registry

	lock        sync.Mutex
	running     bool
	dir         uint32
	speed       float64 // 1/10 Hz
	angle       float64 // electrical, radians
	position    float64 // counts
	temperature float64
}

// New creates a stopped Drive.
func New(name string) *Drive {
	d := &Drive{
		Name:        name,
		cells:       newCells(),
		temperature: AmbientTemperature,
	}
	d.registry = comm.MustNewRegistry(comm.TargetACIM, d.parameters(), d.dataItems())
	return d
}

// Registry returns the parameter and data item table.
func (d *Drive) Registry() *comm.Registry {
	return d.registry
}

// Cells exposes the value storage.
func (d *Drive) Cells() *Cells {
	return d.cells
}

// DataRate is the telemetry period.
func (d *Drive) DataRate() time.Duration {
	return time.Duration(d.cells.DataRate.Get()) * time.Millisecond
}

// IdleTimeout is the TCP connection idle timeout, zero if disabled.
func (d *Drive) IdleTimeout() time.Duration {
	return time.Duration(d.cells.EthTCPTimeout.Get()) * time.Second
}

// Running reports whether the motor is commanded to run.
func (d *Drive) Running() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.running
}

// Run implements comm.Hooks. A faulted drive refuses to run.
func (d *Drive) Run() {
	d.lock.Lock()
	defer d.lock.Unlock()
	if f := d.cells.FaultStatus.Get(); f != 0 {
		glog.Warningf("%s: run refused, fault 0x%02x", d.Name, f)
		return
	}
	if !d.running {
		glog.Infof("%s: run", d.Name)
	}
	d.running = true
}

// Stop implements comm.Hooks. The motor decelerates to standstill.
func (d *Drive) Stop() {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.running {
		glog.Infof("%s: stop", d.Name)
	}
	d.running = false
}

// EmergencyStop implements comm.Hooks. The motor is disabled at once and
// the drive latches a fault.
func (d *Drive) EmergencyStop() {
	d.lock.Lock()
	defer d.lock.Unlock()
	glog.Warningf("%s: emergency stop", d.Name)
	d.running = false
	d.speed = 0
	d.raiseLocked(FaultEmergencyStop)
	d.updateLocked(0, StatusStop)
}

// LoadParams implements comm.Hooks.
func (d *Drive) LoadParams() error {
	if d.Store == nil {
		return ErrNoStore
	}
	n, err := d.Store.Load(d.Name, d.registry)
	if err != nil {
		glog.Errorf("%s: load parameters: %v", d.Name, err)
		return err
	}
	glog.Infof("%s: loaded %d parameters", d.Name, n)
	return nil
}

// SaveParams implements comm.Hooks.
func (d *Drive) SaveParams() error {
	if d.Store == nil {
		return ErrNoStore
	}
	if err := d.Store.Save(d.Name, d.registry); err != nil {
		glog.Errorf("%s: save parameters: %v", d.Name, err)
		return err
	}
	glog.Infof("%s: parameters saved", d.Name)
	return nil
}

// Upgrade implements comm.Hooks.
func (d *Drive) Upgrade() {
	glog.Warningf("%s: firmware upgrade requested", d.Name)
	d.Stop()
	if d.OnUpgrade != nil {
		d.OnUpgrade()
	}
}

// clearFaults runs when the fault status is written: any write clears
// all faults.
func (d *Drive) clearFaults() {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.cells.FaultStatus.Set(0)
	glog.Infof("%s: faults cleared", d.Name)
}

func (d *Drive) raiseLocked(fault uint32) {
	d.cells.FaultStatus.Set(d.cells.FaultStatus.Get() | fault)
}

// AddToLoop implements framework.LoopAdder.
func (d *Drive) AddToLoop(l *framework.Loop) {
	l.AddController(framework.PrLvControl, d)
}

// Control implements framework.Controller.
func (d *Drive) Control(cc framework.ControlContext) error {
	dt := cc.Elapsed()
	if dt <= 0 {
		return nil
	}
	if dt > maxStep {
		dt = maxStep
	}
	d.Step(dt.Seconds())
	return nil
}

// Step advances the motor model by dt seconds.
func (d *Drive) Step(dt float64) {
	c := d.cells
	d.lock.Lock()
	defer d.lock.Unlock()

	want := c.Direction.Get()
	if want != d.dir && d.speed == 0 {
		d.dir = want
	}
	target := 0.0
	if d.running && want == d.dir {
		lo, hi := float64(c.MinSpeed.Get()), float64(c.MaxSpeed.Get())
		if hi < lo {
			hi = lo
		}
		target = math.Max(lo, math.Min(hi, float64(c.TargetSpeed.Get())))
	}

	status := StatusRun
	switch {
	case d.speed < target:
		d.speed = math.Min(target, d.speed+float64(c.Accel.Get())*10*dt)
		status = StatusAccel
	case d.speed > target:
		d.speed = math.Max(target, d.speed-float64(c.Decel.Get())*10*dt)
		status = StatusDecel
	case d.speed == 0:
		status = StatusStop
	}

	current := 0.0
	if d.speed > 0 || d.running {
		current = magnetizingCurrent + d.speed*loadCurrentPerUnit
		if status == StatusAccel {
			current *= accelCurrentFactor
		}
	}

	freq := d.speed / 10
	d.angle = math.Mod(d.angle+2*math.Pi*freq*dt, 2*math.Pi)
	poles := float64(c.NumPoles.Get())
	if poles < 2 {
		poles = 2
	}
	rotor := d.speed * (1 - ratedSlip)
	revs := rotor / 10 * 2 / poles * dt
	if d.dir != 0 {
		revs = -revs
	}
	d.position += revs * PositionCounts

	heat := AmbientTemperature + current/1000*heatPerAmp
	d.temperature += (heat - d.temperature) * math.Min(1, dt/thermalTimeConst)
	if d.temperature > float64(c.MaxTemperature.Get()) && c.FaultStatus.Get()&FaultOverTemperature == 0 {
		glog.Warningf("%s: over temperature %.1f", d.Name, d.temperature)
		d.raiseLocked(FaultOverTemperature)
		d.running = false
	}

	amp := current * math.Sqrt2
	for i, w := range c.PhaseCurrents {
		w.SetInt(int32(amp * math.Sin(d.angle-float64(i)*2*math.Pi/3)))
	}
	bus := NominalBusVoltage - current/1000*2
	c.BusVoltage.Set(uint32(bus))
	volts := d.vfAmplitude(freq, float64(c.MaxSpeed.Get())/10) * bus
	c.Power.Set(uint32(volts * current / 1000 * math.Sqrt(3) * 0.85))
	c.MotorCurrent.Set(uint32(current))
	c.RotorSpeed.Set(uint32(math.Round(rotor)))
	c.Position.SetInt(int32(int64(d.position)))
	c.Temperature.Set(uint32(d.temperature))
	load := uint32(10)
	if d.running {
		load += 25
	}
	c.ProcessorUsage.Set(load)
	d.updateLocked(d.speed, status)
}

func (d *Drive) updateLocked(speed float64, status byte) {
	d.cells.CurrentSpeed.Set(uint32(math.Round(speed)))
	d.cells.MotorStatus.Set(uint32(status))
}

// vfAmplitude interpolates the V/f table at freq, scaled so the last
// entry corresponds to maxFreq. The result is within 0 to 1.
func (d *Drive) vfAmplitude(freq, maxFreq float64) float64 {
	if maxFreq <= 0 {
		return 0
	}
	table := d.cells.VFTable.Bytes()
	pos := math.Min(1, freq/maxFreq) * (VFTableSize - 1)
	i := int(pos)
	entry := func(n int) float64 {
		return float64(int16(uint16(table[n*2])|uint16(table[n*2+1])<<8)) / 0x7fff
	}
	if i >= VFTableSize-1 {
		return math.Max(0, entry(VFTableSize-1))
	}
	a, b := entry(i), entry(i+1)
	return math.Max(0, a+(b-a)*(pos-float64(i)))
}
