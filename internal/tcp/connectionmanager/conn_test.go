package connectionmanager

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/opensubmit.net/internal/adapter/logging"
	"gitlab.com/opensubmit.net/internal/tcp/defs"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SendMessage(&buf, defs.MsgFetch, []byte(`{"fingerprint":"fp"}`)))
	require.NoError(t, SendMessage(&buf, defs.MsgNoJob, nil))

	raw := buf.Bytes()
	assert.Equal(t, uint16(0xCAFE), binary.BigEndian.Uint16(raw[0:2]))
	assert.Equal(t, defs.MsgFetch, raw[2])
	assert.Equal(t, byte(0), raw[3])
	assert.Equal(t, uint32(20), binary.BigEndian.Uint32(raw[4:8]))

	msgType, payload, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, defs.MsgFetch, msgType)
	assert.JSONEq(t, `{"fingerprint":"fp"}`, string(payload))

	msgType, payload, err = ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, defs.MsgNoJob, msgType)
	assert.Empty(t, payload)
}

func TestReadMessageRejectsBadFrames(t *testing.T) {
	_, _, err := ReadMessage(bytes.NewReader([]byte{0xBE, 0xEF, 0x01, 0x00, 0, 0, 0, 0}))
	assert.ErrorContains(t, err, "invalid magic number")

	header := make([]byte, defs.HeaderSize)
	binary.BigEndian.PutUint16(header[0:2], defs.MagicNumber)
	binary.BigEndian.PutUint32(header[4:8], defs.MaxPayloadSize+1)
	_, _, err = ReadMessage(bytes.NewReader(header))
	assert.ErrorContains(t, err, "exceeds limit")
}

func TestRegisterMachineReplacesConnection(t *testing.T) {
	cm := NewConnectionManager(logging.NewNopLogger())
	first, firstPeer := net.Pipe()
	second, secondPeer := net.Pipe()
	defer firstPeer.Close()
	defer secondPeer.Close()
	defer second.Close()

	cm.RegisterMachine("m1", first)
	cm.RegisterMachine("m1", second)
	assert.Equal(t, 1, cm.Count())

	// the replaced connection is closed
	_, err := first.Write([]byte{1})
	assert.Error(t, err)

	// removing a stale connection keeps the current one
	cm.RemoveMachine("m1", first)
	conn, ok := cm.GetConnection("m1")
	require.True(t, ok)
	assert.Equal(t, second, conn)

	cm.RemoveMachine("m1", second)
	assert.Equal(t, 0, cm.Count())
}
