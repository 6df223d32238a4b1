package drive

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/drivelink/pkg/client"
)

func TestParseID(t *testing.T) {
	id, err := ParseID("0x2c")
	require.NoError(t, err)
	require.EqualValues(t, 0x2c, id)
	id, err = ParseID("5")
	require.NoError(t, err)
	require.EqualValues(t, 5, id)
	_, err = ParseID("256")
	require.Error(t, err)
}

func TestValues(t *testing.T) {
	unsigned := client.ParamDesc{ID: 1, Size: 2, Min: 1, Max: 1000, Step: 1}
	require.Equal(t, "300 (0x012c)", FormatValue(unsigned, []byte{0x2c, 0x01}))
	raw, err := ParseValue(unsigned, "0x12c")
	require.NoError(t, err)
	require.Equal(t, []byte{0x2c, 0x01}, raw)

	signed := client.ParamDesc{ID: 0x1a, Size: 4, Min: 0x80000000, Max: 0x7fffffff, Step: 1}
	require.True(t, Signed(signed))
	raw, err = ParseValue(signed, "-2")
	require.NoError(t, err)
	require.Equal(t, []byte{0xfe, 0xff, 0xff, 0xff}, raw)
	require.Equal(t, "-2", FormatValue(signed, raw))
	raw, err = ParseValue(signed, "0xffffffff")
	require.NoError(t, err)
	require.Equal(t, "-1", FormatValue(signed, raw))

	blob := client.ParamDesc{ID: 0x0e, Size: 6}
	raw, err = ParseValue(blob, "0a0b0c0d0e0f")
	require.NoError(t, err)
	require.Equal(t, []byte{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}, raw)
	require.Equal(t, "0a0b0c0d0e0f", FormatValue(blob, raw))
	_, err = ParseValue(blob, "0a0b")
	require.Error(t, err)
	_, err = ParseValue(unsigned, "x")
	require.Error(t, err)
}
