package client

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/robotalks/drivelink/pkg/comm"
)

// ParamDesc describes a parameter. Min, Max and Step are only reported
// for values up to 4 bytes.
type ParamDesc struct {
	ID   byte
	Size int
	Min  uint32
	Max  uint32
	Step uint32
}

// Writable reports whether the target advertises a step. Values over 4
// bytes are described without one.
func (d ParamDesc) Writable() bool {
	return d.Size <= comm.MaxValueSize && d.Step != 0
}

// String implements fmt.Stringer.
func (d ParamDesc) String() string {
	if d.Size > comm.MaxValueSize {
		return fmt.Sprintf("0x%02x size=%d", d.ID, d.Size)
	}
	return fmt.Sprintf("0x%02x size=%d min=%d max=%d step=%d", d.ID, d.Size, d.Min, d.Max, d.Step)
}

// DataItemInfo is an entry of the data item list.
type DataItemInfo struct {
	ID   byte
	Size int
}

// TargetType queries the target type.
func (c *Client) TargetType(ctx context.Context) (byte, error) {
	data, err := c.Call(ctx, comm.CmdIDTarget)
	if err != nil {
		return 0, err
	}
	if len(data) != 1 {
		return 0, &ResponseError{Cmd: comm.CmdIDTarget, Reason: "bad length"}
	}
	return data[0], nil
}

// Parameters lists the parameter IDs.
func (c *Client) Parameters(ctx context.Context) ([]byte, error) {
	return c.Call(ctx, comm.CmdGetParams)
}

// Describe queries the description of a parameter.
func (c *Client) Describe(ctx context.Context, id byte) (ParamDesc, error) {
	desc := ParamDesc{ID: id}
	data, err := c.Call(ctx, comm.CmdGetParamDesc, id)
	if err != nil {
		return desc, err
	}
	if len(data) == 0 {
		return desc, &ResponseError{Cmd: comm.CmdGetParamDesc, Reason: "empty"}
	}
	desc.Size = int(data[0])
	switch {
	case desc.Size == 0:
		return desc, ErrUnknownParameter
	case desc.Size > comm.MaxValueSize:
		return desc, nil
	case len(data) != 1+desc.Size*3:
		return desc, &ResponseError{Cmd: comm.CmdGetParamDesc, Reason: "bad length"}
	}
	desc.Min = Value(data[1 : 1+desc.Size])
	desc.Max = Value(data[1+desc.Size : 1+desc.Size*2])
	desc.Step = Value(data[1+desc.Size*2:])
	return desc, nil
}

// Get reads the raw value of a parameter.
func (c *Client) Get(ctx context.Context, id byte) ([]byte, error) {
	data, err := c.Call(ctx, comm.CmdGetParamValue, id)
	if err == nil && len(data) == 0 {
		err = ErrUnknownParameter
	}
	return data, err
}

// Set writes the raw value of a parameter. The target acknowledges
// writes to unknown or read-only parameters the same way, so read back
// to confirm.
func (c *Client) Set(ctx context.Context, id byte, value []byte) error {
	_, err := c.Call(ctx, comm.CmdSetParamValue, append([]byte{id}, value...)...)
	return err
}

// SetValue writes v encoded little-endian in size bytes.
func (c *Client) SetValue(ctx context.Context, id byte, v uint32, size int) error {
	return c.Set(ctx, id, Encode(v, size))
}

// LoadParams restores parameters from the target's storage.
func (c *Client) LoadParams(ctx context.Context) error {
	_, err := c.Call(ctx, comm.CmdLoadParams)
	return err
}

// SaveParams persists parameters on the target.
func (c *Client) SaveParams(ctx context.Context) error {
	_, err := c.Call(ctx, comm.CmdSaveParams)
	return err
}

// DataItems lists the data items.
func (c *Client) DataItems(ctx context.Context) ([]DataItemInfo, error) {
	data, err := c.Call(ctx, comm.CmdGetDataItems)
	if err != nil {
		return nil, err
	}
	if len(data)%2 != 0 {
		return nil, &ResponseError{Cmd: comm.CmdGetDataItems, Reason: "odd length"}
	}
	items := make([]DataItemInfo, 0, len(data)/2)
	for i := 0; i < len(data); i += 2 {
		items = append(items, DataItemInfo{ID: data[i], Size: int(data[i+1])})
	}
	return items, nil
}

// Enable adds a data item to the telemetry stream.
func (c *Client) Enable(ctx context.Context, id byte) error {
	_, err := c.Call(ctx, comm.CmdEnableDataItem, id)
	return err
}

// Disable removes a data item from the telemetry stream.
func (c *Client) Disable(ctx context.Context, id byte) error {
	_, err := c.Call(ctx, comm.CmdDisableDataItem, id)
	return err
}

// StartStream starts the telemetry stream.
func (c *Client) StartStream(ctx context.Context) error {
	_, err := c.Call(ctx, comm.CmdStartDataStream)
	return err
}

// StopStream stops the telemetry stream.
func (c *Client) StopStream(ctx context.Context) error {
	_, err := c.Call(ctx, comm.CmdStopDataStream)
	return err
}

// RunMotor starts the motor.
func (c *Client) RunMotor(ctx context.Context) error {
	_, err := c.Call(ctx, comm.CmdRun)
	return err
}

// StopMotor stops the motor.
func (c *Client) StopMotor(ctx context.Context) error {
	_, err := c.Call(ctx, comm.CmdStop)
	return err
}

// EmergencyStop stops the motor immediately.
func (c *Client) EmergencyStop(ctx context.Context) error {
	_, err := c.Call(ctx, comm.CmdEmergencyStop)
	return err
}

// Upgrade asks the target to enter the firmware updater. There is no
// response and the target drops the connection.
func (c *Client) Upgrade() error {
	return c.Send(comm.CmdUpgrade)
}

// Value decodes a little-endian value of up to 4 bytes.
func Value(p []byte) uint32 {
	var b [4]byte
	copy(b[:], p)
	return binary.LittleEndian.Uint32(b[:])
}

// Encode encodes v little-endian in size bytes.
func Encode(v uint32, size int) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	if size > 4 {
		size = 4
	}
	return append([]byte(nil), b[:size]...)
}

// Sample is the value of a data item in a telemetry packet.
type Sample struct {
	ID    byte
	Value uint32
}

// DecodeTelemetry splits a telemetry payload by the enabled items in
// data item list order.
func DecodeTelemetry(items []DataItemInfo, enabled func(id byte) bool, payload []byte) ([]Sample, error) {
	var samples []Sample
	for _, item := range items {
		if !enabled(item.ID) {
			continue
		}
		if len(payload) < item.Size {
			return samples, fmt.Errorf("telemetry truncated at item 0x%02x", item.ID)
		}
		samples = append(samples, Sample{ID: item.ID, Value: Value(payload[:item.Size])})
		payload = payload[item.Size:]
	}
	if len(payload) != 0 {
		return samples, fmt.Errorf("telemetry has %d extra bytes", len(payload))
	}
	return samples, nil
}
