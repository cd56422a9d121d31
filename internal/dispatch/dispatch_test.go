package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSubsystem struct {
	gotGet []uint32
}

func (f *fakeSubsystem) GetParam(paramID uint32, buf []byte) (int, error) {
	f.gotGet = append(f.gotGet, paramID)
	return 0, nil
}

func (f *fakeSubsystem) SetParam(paramID uint32, buf []byte) error { return nil }

func TestValidateLevel_RegistrationOnlySelf(t *testing.T) {
	h := &Handle{Type: HandleRegistration}
	require.NoError(t, ValidateLevel(h, LevelRegistration))
	require.Error(t, ValidateLevel(h, LevelConnection))
}

func TestValidateLevel_StreamReachesAllAncestors(t *testing.T) {
	h := &Handle{Type: HandleStream}
	require.NoError(t, ValidateLevel(h, LevelStream))
	require.NoError(t, ValidateLevel(h, LevelConnection))
	require.NoError(t, ValidateLevel(h, LevelConfiguration))
	require.NoError(t, ValidateLevel(h, LevelRegistration))
	require.Error(t, ValidateLevel(h, LevelListener))
}

func TestValidateLevel_TLSRequiresConnectionAndEngine(t *testing.T) {
	conn := &Handle{Type: HandleConnection}
	require.Error(t, ValidateLevel(conn, LevelTLS))

	conn.TLSEngineCreated = true
	require.NoError(t, ValidateLevel(conn, LevelTLS))

	stream := &Handle{Type: HandleStream, TLSEngineCreated: true}
	require.Error(t, ValidateLevel(stream, LevelTLS))
}

func TestGetParam_DelegatesToSubsystem(t *testing.T) {
	sub := &fakeSubsystem{}
	h := &Handle{Type: HandleConnection, Subsystems: map[Level]Subsystem{LevelConnection: sub}}

	_, err := GetParam(h, LevelConnection, 42, nil)
	require.NoError(t, err)
	require.Equal(t, []uint32{42}, sub.gotGet)
}

func TestGetParam_AbsentAncestorIsInvalidParameter(t *testing.T) {
	h := &Handle{Type: HandleConnection, Subsystems: map[Level]Subsystem{}}

	_, err := GetParam(h, LevelConfiguration, 1, nil)
	require.Error(t, err)
}
