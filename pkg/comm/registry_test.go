package comm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWord(t *testing.T) {
	w := NewWord(2, 0x12345)
	require.EqualValues(t, 0x2345, w.Get())
	w.SetInt(-2)
	require.EqualValues(t, 0xfffe, w.Get())
	require.EqualValues(t, -2, w.Int())

	b := make([]byte, 2)
	w.Load(b)
	require.Equal(t, []byte{0xfe, 0xff}, b)
	w.Store([]byte{0x0a})
	require.EqualValues(t, 0x0a, w.Get())

	require.EqualValues(t, -1, NewWord(1, 0xff).Int())
	require.Panics(t, func() { NewWord(5, 0) })
}

func TestBlob(t *testing.T) {
	b := NewBlob([]byte{1, 2, 3, 4, 5, 6})
	require.Equal(t, 6, b.Size())
	b.Store([]byte{9, 8})
	require.Equal(t, []byte{9, 8, 0, 0, 0, 0}, b.Bytes())
}

func TestLegacyRange(t *testing.T) {
	require.Equal(t, NoRange, LegacyRange(0, 0))
	require.Equal(t, Unsigned(1, 10), LegacyRange(1, 10))
	require.Equal(t, Signed(-100, 100), LegacyRange(0xffffff9c, 100))
}

func TestRangeCheck(t *testing.T) {
	cases := []struct {
		name   string
		param  *Parameter
		expect uint32
	}{
		{"unsigned-above", &Parameter{Range: Unsigned(10, 1000), Value: NewWord(2, 5000)}, 1000},
		{"unsigned-below", &Parameter{Range: Unsigned(10, 1000), Value: NewWord(2, 3)}, 10},
		{"unsigned-inside", &Parameter{Range: Unsigned(10, 1000), Value: NewWord(2, 300)}, 300},
		{"signed-below", &Parameter{Range: Signed(-100, 100), Value: NewWord(2, 0xff38)}, 0xff9c},
		{"signed-above", &Parameter{Range: Signed(-100, 100), Value: NewWord(2, 0x7fff)}, 100},
		{"signed-inside", &Parameter{Range: Signed(-100, 100), Value: NewWord(2, 0xffd8)}, 0xffd8},
		{"signed-byte", &Parameter{Range: Signed(-8, 8), Value: NewWord(1, 0x80)}, 0xf8},
		{"signed-word", &Parameter{Range: Signed(-70000, 70000), Value: NewWord(4, 0x80000000)}, 0xfffeee90},
		{"unchecked", &Parameter{Range: NoRange, Value: NewWord(4, 0xdeadbeef)}, 0xdeadbeef},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := c.param.Value.(*Word)
			c.param.RangeCheck()
			require.Equal(t, c.expect, w.Get())
			c.param.RangeCheck()
			require.Equal(t, c.expect, w.Get())
		})
	}

	blob := NewBlob([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	(&Parameter{Range: Unsigned(0, 1), Value: blob}).RangeCheck()
	require.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, blob.Bytes())
}

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(TargetACIM, []*Parameter{
		{ID: 0x00, Value: NewWord(2, 0)},
		{ID: 0x04, Range: Unsigned(0, 100), Step: 1, Value: NewWord(2, 0)},
	}, []*DataItem{
		{ID: 0x05, Value: NewWord(4, 0)},
		{ID: 0x01, Value: NewWord(2, 0)},
	})
	require.NoError(t, err)
	require.Equal(t, 6, reg.DataItemLimit())
	idx, ok := reg.FindParameter(0x04)
	require.True(t, ok)
	require.Equal(t, 1, idx)
	_, ok = reg.FindParameter(0x33)
	require.False(t, ok)
	require.Nil(t, reg.Parameter(0x33))

	bad := map[string]func() error{
		"duplicated-parameter": func() error {
			_, err := NewRegistry(0, []*Parameter{{ID: 1, Value: NewWord(1, 0)}, {ID: 1, Value: NewWord(1, 0)}}, nil)
			return err
		},
		"missing-value": func() error {
			_, err := NewRegistry(0, []*Parameter{{ID: 1}}, nil)
			return err
		},
		"empty-range": func() error {
			_, err := NewRegistry(0, []*Parameter{{ID: 1, Range: Signed(10, -10), Value: NewWord(1, 0)}}, nil)
			return err
		},
		"large-data-item": func() error {
			_, err := NewRegistry(0, nil, []*DataItem{{ID: 1, Value: NewBlob(make([]byte, 8))}})
			return err
		},
		"duplicated-data-item": func() error {
			_, err := NewRegistry(0, nil, []*DataItem{{ID: 1, Value: NewWord(1, 0)}, {ID: 1, Value: NewWord(2, 0)}})
			return err
		},
	}
	for name, fn := range bad {
		t.Run(name, func(t *testing.T) {
			var regErr *RegistryError
			require.ErrorAs(t, fn(), &regErr)
		})
	}
}

func TestWordAdd(t *testing.T) {
	w := NewWord(1, 0xfe)
	require.EqualValues(t, 0xff, w.Add(1))
	require.EqualValues(t, 0x01, w.Add(2))
	require.EqualValues(t, 0, NewWord(4, 0xffffffff).Add(1))
}
