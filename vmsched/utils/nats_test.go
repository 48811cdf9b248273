package utils

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestNATSServer(t *testing.T) *server.Server {
	t.Helper()

	opts := &server.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := server.NewServer(opts)
	require.NoError(t, err)

	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second), "NATS server failed to start")

	t.Cleanup(func() { ns.Shutdown() })
	return ns
}

func TestConnectNATS_Success(t *testing.T) {
	ns := startTestNATSServer(t)

	nc, err := ConnectNATS(ns.ClientURL(), "")
	require.NoError(t, err)
	defer nc.Close()

	assert.True(t, nc.IsConnected())
}

func TestConnectNATS_WithToken(t *testing.T) {
	opts := &server.Options{
		Host:          "127.0.0.1",
		Port:          -1,
		NoLog:         true,
		NoSigs:        true,
		Authorization: "test-token-123",
	}

	ns, err := server.NewServer(opts)
	require.NoError(t, err)
	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second))
	t.Cleanup(func() { ns.Shutdown() })

	_, err = ConnectNATS(ns.ClientURL(), "wrong-token")
	assert.Error(t, err)

	nc, err := ConnectNATS(ns.ClientURL(), "test-token-123")
	require.NoError(t, err)
	defer nc.Close()
	assert.True(t, nc.IsConnected())
}

func TestConnectNATS_BadAddress(t *testing.T) {
	_, err := ConnectNATS("nats://127.0.0.1:1", "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "NATS connect failed")
}

func TestNATSRequest_Success(t *testing.T) {
	ns := startTestNATSServer(t)

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	type Req struct {
		Zone string `json:"zone"`
	}
	type Resp struct {
		Matched int `json:"matched"`
	}

	_, err = nc.Subscribe("test.invoke", func(msg *nats.Msg) {
		var req Req
		json.Unmarshal(msg.Data, &req)
		matched := 0
		if req.Zone == "us-central1-a" {
			matched = 2
		}
		RespondJSON(msg, Resp{Matched: matched})
	})
	require.NoError(t, err)

	result, err := NATSRequest[Resp](nc, "test.invoke", Req{Zone: "us-central1-a"}, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Matched)
}

func TestNATSRequest_ErrorResponse(t *testing.T) {
	ns := startTestNATSServer(t)

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	_, err = nc.Subscribe("test.fail", func(msg *nats.Msg) {
		msg.Respond(GenerateErrorPayload("ServiceUnavailable"))
	})
	require.NoError(t, err)

	type Resp struct{}
	_, err = NATSRequest[Resp](nc, "test.fail", struct{}{}, 2*time.Second)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ServiceUnavailable")
}

func TestNATSRequest_NoResponders(t *testing.T) {
	ns := startTestNATSServer(t)

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	type Resp struct{}
	_, err = NATSRequest[Resp](nc, "test.nobody", struct{}{}, 500*time.Millisecond)
	assert.Error(t, err)
}

func TestNATSRequest_Timeout(t *testing.T) {
	ns := startTestNATSServer(t)

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	_, err = nc.QueueSubscribe("test.slow", "q", func(msg *nats.Msg) {
		time.Sleep(time.Second)
	})
	require.NoError(t, err)

	type Resp struct{}
	_, err = NATSRequest[Resp](nc, "test.slow", struct{}{}, 100*time.Millisecond)
	assert.Error(t, err)
}

func TestNATSRequest_InvalidUnmarshal(t *testing.T) {
	ns := startTestNATSServer(t)

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	_, err = nc.Subscribe("test.badjson", func(msg *nats.Msg) {
		msg.Respond([]byte(`not-json`))
	})
	require.NoError(t, err)

	type Resp struct {
		Value int `json:"value"`
	}
	_, err = NATSRequest[Resp](nc, "test.badjson", struct{}{}, 2*time.Second)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestRespondJSON_NoReplySubject(t *testing.T) {
	assert.NotPanics(t, func() {
		RespondJSON(&nats.Msg{Subject: "test.noreply"}, map[string]string{"ok": "yes"})
	})
}

func TestValidateErrorPayload(t *testing.T) {
	respErr, err := ValidateErrorPayload(GenerateErrorPayload("ServiceUnavailable"))
	require.Error(t, err)
	assert.Equal(t, "ServiceUnavailable", *respErr.Code)

	_, err = ValidateErrorPayload([]byte(`{"invocation_id":"abc","matched":1}`))
	assert.NoError(t, err)

	_, err = ValidateErrorPayload([]byte(`{}`))
	assert.NoError(t, err)
}
