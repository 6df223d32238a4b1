package comm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	require.Equal(t, []byte{0xff, 0x04, 0x00, 0xfd}, Command(CmdIDTarget))
	for _, pkt := range [][]byte{
		Command(CmdIDTarget),
		Command(CmdSetParamValue, 0x04, 0x0a),
		NewPacket(TagStatus, []byte{CmdGetParams}, []byte{0x00, 0x01, 0x02}),
		NewPacket(TagData, make([]byte, 200)),
		NewPacket(TagData),
	} {
		require.True(t, Valid(pkt), "% x", pkt)
		require.EqualValues(t, len(pkt), pkt[1])
	}
	require.False(t, Valid([]byte{0xff, 0x04, 0x00, 0xfe}))
}

func TestBody(t *testing.T) {
	require.Equal(t, []byte{0x13, 0x04, 0x0a}, Body(Command(CmdSetParamValue, 0x04, 0x0a)))
	require.Nil(t, Body([]byte{0xff, 0x02}))
}
