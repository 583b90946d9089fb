package udpconn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type pingMsg struct {
	Ping string `json:"ping"`
}

func TestSendRecvRoundTrip(t *testing.T) {
	server, err := Bind("127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	client, err := Bind("127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, Send(client, server.LocalAddr().String(), pingMsg{Ping: "hello"}))

	raw, addr, err := Recv(server)
	require.NoError(t, err)
	require.NotNil(t, addr)
	require.JSONEq(t, `{"ping":"hello"}`, string(raw))
}

func TestBindRejectsUnresolvableAddress(t *testing.T) {
	_, err := Bind("not-a-valid-host:notaport")
	require.Error(t, err)
}

func TestSendRejectsUnresolvableAddress(t *testing.T) {
	conn, err := Bind("127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	err = Send(conn, "not-a-valid-host:notaport", pingMsg{Ping: "x"})
	require.Error(t, err)
}
