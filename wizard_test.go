package schoolwizard

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-schoolwizard/pkg/orchestrator"
	"github.com/goliatone/go-schoolwizard/pkg/remote/httprpc"
	"github.com/goliatone/go-schoolwizard/pkg/remote/natsrpc"
	"github.com/goliatone/go-schoolwizard/pkg/schoolwizards"
	"github.com/goliatone/go-schoolwizard/pkg/testsupport"
)

func TestDialHTTPOpensWizard(t *testing.T) {
	backend := testsupport.NewBackend()
	srv := httptest.NewServer(httprpc.Handler(backend.Handler()))
	defer srv.Close()

	channel, closeFn, err := Dial(context.Background(), TransportOptions{
		Transport: TransportHTTP,
		Endpoint:  srv.URL,
		Timeout:   time.Second,
	})
	require.NoError(t, err)
	defer closeFn()

	o := NewOrchestrator(orchestrator.WithChannel(channel))
	session, err := o.Open(context.Background(), Request{Wizard: "computer"})
	require.NoError(t, err)
	defer session.Close()

	assert.Equal(t, "demo", session.Values().String("school"))
	assert.Len(t, session.Choices("type"), len(testsupport.ComputerTypes))
}

func TestDialNATS(t *testing.T) {
	ns, err := natsrpc.StartServer(&server.Options{Host: "127.0.0.1", Port: server.RANDOM_PORT, NoLog: true, NoSigs: true}, 4*time.Second)
	require.NoError(t, err)
	conn, err := natsrpc.ConnectInProcess(ns)
	require.NoError(t, err)
	defer natsrpc.Shutdown(conn, ns)

	backend := testsupport.NewBackend()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err = natsrpc.Serve(ctx, conn, backend.Handler(), natsrpc.WithPrefix("test"))
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	channel, closeFn, err := Dial(context.Background(), TransportOptions{
		NATSURL:       ns.ClientURL(),
		SubjectPrefix: "test",
		Timeout:       time.Second,
	})
	require.NoError(t, err)
	defer closeFn()

	resp, err := channel.Invoke(context.Background(), schoolwizards.CommandSchools, map[string]any{})
	require.NoError(t, err)
	assert.Empty(t, resp.Error)
	assert.Contains(t, string(resp.Result), `"demo"`)
}

func TestDialRejectsBadTransport(t *testing.T) {
	_, _, err := Dial(context.Background(), TransportOptions{Transport: "smoke"})
	assert.True(t, errors.Is(err, ErrUnknownTransport))

	_, _, err = Dial(context.Background(), TransportOptions{Transport: TransportHTTP})
	assert.Error(t, err)
}
