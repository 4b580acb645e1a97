package natsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-schoolwizard/pkg/remote"
)

func TestSubjectRoundTrip(t *testing.T) {
	subject := Subject("school", "schoolwizards/computers/add")
	assert.Equal(t, "school.schoolwizards.computers.add", subject)

	command, ok := Command("school", subject)
	require.True(t, ok)
	assert.Equal(t, "schoolwizards/computers/add", command)

	_, ok = Command("school", "other.ucr.get")
	assert.False(t, ok)
}

func TestClientInvokesServedHandler(t *testing.T) {
	ns, err := StartEmbedded(0)
	require.NoError(t, err)
	conn, err := ConnectInProcess(ns)
	require.NoError(t, err)
	t.Cleanup(func() { Shutdown(conn, ns) })

	mux := remote.NewMux()
	mux.RegisterFunc("schoolwizards/classes", func(_ context.Context, payload json.RawMessage) (remote.Response, error) {
		var req map[string]string
		if err := json.Unmarshal(payload, &req); err != nil {
			return remote.Response{}, err
		}
		return remote.OK([]map[string]string{{"id": req["school"] + "-1a", "label": "1a"}}), nil
	})
	mux.RegisterFunc("schoolwizards/computers/add", func(context.Context, json.RawMessage) (remote.Response, error) {
		return remote.Warn("IP address already in use"), nil
	})

	sub, err := Serve(context.Background(), conn, mux, WithPrefix("test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	client := NewClient(conn, WithPrefix("test"), WithTimeout(2*time.Second))

	resp, err := client.Invoke(context.Background(), "schoolwizards/classes", map[string]string{"school": "demo"})
	require.NoError(t, err)
	var items []map[string]string
	require.NoError(t, resp.Decode(&items))
	assert.Equal(t, []map[string]string{{"id": "demo-1a", "label": "1a"}}, items)

	resp, err = client.Invoke(context.Background(), "schoolwizards/computers/add", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "IP address already in use", resp.Warning)
	assert.Empty(t, resp.Error)
}

func TestClientReportsHandlerFailure(t *testing.T) {
	ns, err := StartEmbedded(0)
	require.NoError(t, err)
	conn, err := ConnectInProcess(ns)
	require.NoError(t, err)
	t.Cleanup(func() { Shutdown(conn, ns) })

	sub, err := Serve(context.Background(), conn, remote.NewMux())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })

	_, err = NewClient(conn).Invoke(context.Background(), "unknown/command", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHandlerFailed))
}

func TestClientTimesOutWithoutResponder(t *testing.T) {
	ns, err := StartEmbedded(0)
	require.NoError(t, err)
	conn, err := ConnectInProcess(ns)
	require.NoError(t, err)
	t.Cleanup(func() { Shutdown(conn, ns) })

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = NewClient(conn).Invoke(ctx, "ucr/get", map[string]any{"keys": []string{"x"}})
	require.Error(t, err)
}
