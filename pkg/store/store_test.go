package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/drivelink/pkg/comm"
)

func newRegistry(speed, gain, status *comm.Word) *comm.Registry {
	return comm.MustNewRegistry(comm.TargetACIM, []*comm.Parameter{
		{ID: 0x00, Value: comm.NewWord(2, 0x0100)},
		{ID: 0x04, Range: comm.Unsigned(0, 1000), Step: 1, Value: speed},
		{ID: 0x1a, Range: comm.Signed(-50, 50), Step: 1, Value: gain},
		{ID: 0x2d, Value: status},
	}, nil)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.db")
	s, err := Open(Config{Path: path})
	require.NoError(t, err)

	speed, gain, status := comm.NewWord(2, 750), comm.NewWord(2, 0), comm.NewWord(1, 3)
	gain.SetInt(-20)
	require.NoError(t, s.Save("d1", newRegistry(speed, gain, status)))
	speed.Set(800)
	require.NoError(t, s.Save("d1", newRegistry(speed, gain, status)))
	require.NoError(t, s.Close())

	s, err = Open(Config{Path: path})
	require.NoError(t, err)
	defer s.Close()

	speed2, gain2, status2 := comm.NewWord(2, 0), comm.NewWord(2, 0), comm.NewWord(1, 0)
	reg := newRegistry(speed2, gain2, status2)
	updates := 0
	reg.Parameter(0x04).OnUpdate = func() { updates++ }
	n, err := s.Load("d1", reg)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.EqualValues(t, 800, speed2.Get())
	require.EqualValues(t, -20, gain2.Int())
	require.Zero(t, status2.Get())
	require.Equal(t, 1, updates)

	n, err = s.Load("other", reg)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestLoadSkipsMismatchedSize(t *testing.T) {
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "params.db")})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.db.Create(&ParameterValue{Drive: "d1", ParamID: 0x04, Value: []byte{1, 2, 3, 4}}).Error)
	speed := comm.NewWord(2, 5)
	n, err := s.Load("d1", newRegistry(speed, comm.NewWord(2, 0), comm.NewWord(1, 0)))
	require.NoError(t, err)
	require.Zero(t, n)
	require.EqualValues(t, 5, speed.Get())
}
