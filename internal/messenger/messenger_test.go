package messenger

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/ctxbridge/internal/testutil"
)

func replying(reply *Reply) Transport {
	return TransportFunc(func(context.Context, any) (*Reply, error) {
		return reply, nil
	})
}

func TestSend_ResolvesWithData(t *testing.T) {
	m := New(replying(&Reply{Data: 5}))

	data, err := m.Send(context.Background(), Message{Cmd: "Get"})

	require.NoError(t, err)
	assert.Equal(t, 5, data)
}

func TestSend_RejectsWithRemoteError(t *testing.T) {
	m := New(replying(&Reply{Error: "E"}))

	data, err := m.Send(context.Background(), Message{Cmd: "Get"})

	require.Error(t, err)
	assert.Nil(t, data)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "E", remote.Value)
	assert.Equal(t, "E", err.Error())
	assert.NotErrorIs(t, err, ErrDelivery)
}

func TestSend_FalsyErrorIsIgnored(t *testing.T) {
	for name, value := range map[string]any{
		"nil":          nil,
		"false":        false,
		"empty string": "",
		"zero":         0,
		"zero float":   0.0,
		"NaN":          math.NaN(),
	} {
		t.Run(name, func(t *testing.T) {
			m := New(replying(&Reply{Data: "ok", Error: value}))

			data, err := m.Send(context.Background(), nil)

			require.NoError(t, err)
			assert.Equal(t, "ok", data)
		})
	}
}

func TestSend_EmptyReplyResolvesNil(t *testing.T) {
	for name, reply := range map[string]*Reply{
		"nil reply":   nil,
		"empty reply": {},
	} {
		t.Run(name, func(t *testing.T) {
			data, err := New(replying(reply)).Send(context.Background(), "x")

			require.NoError(t, err)
			assert.Nil(t, data)
		})
	}
}

func TestSend_DeliveryFailure(t *testing.T) {
	cause := errors.New("no receiving end")
	m := New(TransportFunc(func(context.Context, any) (*Reply, error) {
		return nil, cause
	}))

	_, err := m.Send(context.Background(), Message{Cmd: "Get"})

	require.ErrorIs(t, err, ErrDelivery)
	require.ErrorIs(t, err, cause)
}

func TestSend_ContextCancelled(t *testing.T) {
	m := New(TransportFunc(func(ctx context.Context, _ any) (*Reply, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Send(ctx, Message{Cmd: "Get"})

	require.ErrorIs(t, err, ErrDelivery)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSend_DebugLogsRejections(t *testing.T) {
	logger, buf := testutil.NewLogger(t)
	m := New(replying(&Reply{Error: "E"}), WithDebug(true), WithLogger(logger))

	_, err := m.Send(context.Background(), Message{Cmd: "SetOptions"})

	require.Error(t, err, "logging must not swallow the rejection")
	out := buf.String()
	assert.Contains(t, out, "Message rejected")
	assert.Contains(t, out, "cmd=SetOptions")
	assert.Contains(t, out, "error=E")
}

func TestSend_NoLogsWithoutDebug(t *testing.T) {
	logger, buf := testutil.NewLogger(t)
	m := New(replying(&Reply{Error: "E"}), WithLogger(logger))

	_, err := m.Send(context.Background(), Message{Cmd: "SetOptions"})

	require.Error(t, err)
	assert.Empty(t, buf.String())
}

func TestSend_Observer(t *testing.T) {
	var cmds []string
	var errs []error
	obs := WithObserver(func(cmd string, err error) {
		cmds = append(cmds, cmd)
		errs = append(errs, err)
	})

	_, _ = New(replying(&Reply{Data: 1}), obs).Send(context.Background(), map[string]any{"cmd": "A"})
	_, _ = New(replying(&Reply{Error: "bad"}), obs).Send(context.Background(), &Message{Cmd: "B"})

	assert.Equal(t, []string{"A", "B"}, cmds)
	require.Len(t, errs, 2)
	assert.NoError(t, errs[0])
	assert.Error(t, errs[1])
}

func TestRemoteError_Rendering(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "string", value: "denied", want: "denied"},
		{name: "map with message", value: map[string]any{"message": "boom", "code": 3}, want: "boom"},
		{name: "number", value: 42, want: "42"},
		{name: "error", value: errors.New("wrapped"), want: "wrapped"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, (&RemoteError{Value: tt.value}).Error())
		})
	}
}

func TestTruthy(t *testing.T) {
	var nilMap map[string]any
	var nilPtr *Reply

	assert.True(t, truthy("E"))
	assert.True(t, truthy(1))
	assert.True(t, truthy(true))
	assert.True(t, truthy(map[string]any{}), "empty objects are truthy")
	assert.True(t, truthy(struct{}{}))
	assert.False(t, truthy(nilMap))
	assert.False(t, truthy(nilPtr))
	assert.False(t, truthy(uint(0)))
}

func TestReplyFrom(t *testing.T) {
	assert.Equal(t, &Reply{Data: 1.0, Error: "x"}, replyFrom(map[string]any{"data": 1.0, "error": "x"}))
	assert.Equal(t, &Reply{}, replyFrom(nil))
	assert.Equal(t, &Reply{}, replyFrom(7.0), "non-objects read as empty replies")
	assert.Equal(t, &Reply{Data: "d"}, replyFrom(Reply{Data: "d"}))
}

func TestReply_Map(t *testing.T) {
	assert.Equal(t, map[string]any{}, (&Reply{}).Map())
	assert.Equal(t, map[string]any{"data": 1}, (&Reply{Data: 1}).Map())
	assert.Equal(t, map[string]any{"error": "e"}, (&Reply{Error: "e"}).Map())
	assert.Equal(t, map[string]any{}, (*Reply)(nil).Map())
}
