package comm

// Packet tags.
const (
	TagCommand byte = 0xff
	TagStatus  byte = 0xfe
	TagData    byte = 0xfd
)

// Command bytes.
const (
	CmdIDTarget         byte = 0x00
	CmdUpgrade          byte = 0x01
	CmdDiscoverTarget   byte = 0x02
	CmdGetParams        byte = 0x10
	CmdGetParamDesc     byte = 0x11
	CmdGetParamValue    byte = 0x12
	CmdSetParamValue    byte = 0x13
	CmdLoadParams       byte = 0x14
	CmdSaveParams       byte = 0x15
	CmdGetDataItems     byte = 0x20
	CmdEnableDataItem   byte = 0x21
	CmdDisableDataItem  byte = 0x22
	CmdStartDataStream  byte = 0x23
	CmdStopDataStream   byte = 0x24
	CmdRun              byte = 0x30
	CmdStop             byte = 0x31
	CmdEmergencyStop    byte = 0x32
)

// Target types reported by CmdIDTarget.
const (
	TargetBLDC    byte = 0x00
	TargetStepper byte = 0x01
	TargetACIM    byte = 0x02
)

// Packet size limits.
const (
	// HeaderSize is the tag and length bytes.
	HeaderSize = 2
	// MinPacketSize is a packet with a single body byte.
	MinPacketSize = 4
	// MaxPacketSize is bounded by the length byte.
	MaxPacketSize = 0xff
	// MaxValueSize is the largest value which gets range checked and a
	// full description.
	MaxValueSize = 4
)

// Checksum returns the byte which makes the sum of b and the checksum
// zero (mod 256).
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum -= v
	}
	return sum
}

// Valid reports whether the byte sum of pkt is zero (mod 256).
func Valid(pkt []byte) bool {
	var sum byte
	for _, v := range pkt {
		sum += v
	}
	return sum == 0
}

// Seal fills the length byte and the trailing checksum byte of a packet
// whose tag and body are already in place.
func Seal(pkt []byte) []byte {
	n := len(pkt)
	pkt[1] = byte(n)
	pkt[n-1] = Checksum(pkt[:n-1])
	return pkt
}

// NewPacket builds a complete packet from tag and body parts.
func NewPacket(tag byte, body ...[]byte) []byte {
	n := HeaderSize + 1
	for _, b := range body {
		n += len(b)
	}
	pkt := make([]byte, HeaderSize, n)
	pkt[0] = tag
	for _, b := range body {
		pkt = append(pkt, b...)
	}
	return Seal(append(pkt, 0))
}

// Command builds a command packet.
func Command(cmd byte, payload ...byte) []byte {
	return NewPacket(TagCommand, []byte{cmd}, payload)
}

// Body returns the bytes between the header and the checksum.
func Body(pkt []byte) []byte {
	if len(pkt) < HeaderSize+1 {
		return nil
	}
	return pkt[HeaderSize : len(pkt)-1]
}
