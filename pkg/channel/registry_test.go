package channel

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCall(channel, method string) *Call {
	return &Call{ID: json.RawMessage(`"1"`), Channel: channel, Method: method}
}

func TestDispatch_Success(t *testing.T) {
	registry := NewRegistry()
	registry.Register("test/echo", MethodCallHandlerFunc(func(ctx context.Context, call *Call, result Result) {
		result.Success(map[string]string{"method": call.Method})
	}))

	resp := registry.Dispatch(context.Background(), newCall("test/echo", "ping"))
	require.Nil(t, resp.Error)
	assert.False(t, resp.NotImplemented)
	assert.Equal(t, json.RawMessage(`"1"`), resp.ID)
	assert.JSONEq(t, `{"method":"ping"}`, string(resp.Result))
	assert.Equal(t, KindSuccess, resp.Kind())
}

func TestDispatch_NilSuccessEncodesNull(t *testing.T) {
	registry := NewRegistry()
	registry.Register("test/nil", MethodCallHandlerFunc(func(ctx context.Context, call *Call, result Result) {
		result.Success(nil)
	}))

	resp := registry.Dispatch(context.Background(), newCall("test/nil", "anything"))
	require.Nil(t, resp.Error)

	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","result":null}`, string(b))
}

func TestDispatch_Error(t *testing.T) {
	registry := NewRegistry()
	registry.Register("test/fail", MethodCallHandlerFunc(func(ctx context.Context, call *Call, result Result) {
		result.Error(CodeUnavailable, "nope", nil)
	}))

	resp := registry.Dispatch(context.Background(), newCall("test/fail", "x"))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeUnavailable, resp.Error.Code)
	assert.Equal(t, "nope", resp.Error.Message)
	assert.Nil(t, resp.Result)

	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","error":{"code":"UNAVAILABLE","message":"nope","details":null}}`, string(b))
}

func TestDispatch_UnknownChannelIsNotImplemented(t *testing.T) {
	registry := NewRegistry()

	resp := registry.Dispatch(context.Background(), newCall("missing", "x"))
	assert.True(t, resp.NotImplemented)
	assert.Nil(t, resp.Error)
	assert.Nil(t, resp.Result)
	assert.Equal(t, KindNotImplemented, resp.Kind())
}

func TestDispatch_FirstReplyWins(t *testing.T) {
	registry := NewRegistry()
	registry.Register("test/twice", MethodCallHandlerFunc(func(ctx context.Context, call *Call, result Result) {
		result.Success(nil)
		result.Error(CodeInternal, "late", nil)
		result.NotImplemented()
	}))

	resp := registry.Dispatch(context.Background(), newCall("test/twice", "x"))
	assert.Equal(t, KindSuccess, resp.Kind())
	assert.Equal(t, "null", string(resp.Result))
}

func TestDispatch_SilentHandlerGetsInternalError(t *testing.T) {
	registry := NewRegistry()
	registry.Register("test/silent", MethodCallHandlerFunc(func(ctx context.Context, call *Call, result Result) {}))

	resp := registry.Dispatch(context.Background(), newCall("test/silent", "x"))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInternal, resp.Error.Code)
	assert.Equal(t, json.RawMessage(`"1"`), resp.ID)
}

func TestDispatch_PanicIsRecovered(t *testing.T) {
	registry := NewRegistry()
	registry.Register("test/panic", MethodCallHandlerFunc(func(ctx context.Context, call *Call, result Result) {
		panic("boom")
	}))

	var resp *Response
	require.NotPanics(t, func() {
		resp = registry.Dispatch(context.Background(), newCall("test/panic", "x"))
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInternal, resp.Error.Code)
	assert.Equal(t, "Handler panicked.", resp.Error.Message)
}

func TestDispatch_PanicAfterReplyKeepsReply(t *testing.T) {
	registry := NewRegistry()
	registry.Register("test/late-panic", MethodCallHandlerFunc(func(ctx context.Context, call *Call, result Result) {
		result.Success(nil)
		panic("after reply")
	}))

	resp := registry.Dispatch(context.Background(), newCall("test/late-panic", "x"))
	assert.Equal(t, KindSuccess, resp.Kind())
}

func TestDispatch_ObserversSeeEveryCall(t *testing.T) {
	registry := NewRegistry()
	registry.Register("test/ok", MethodCallHandlerFunc(func(ctx context.Context, call *Call, result Result) {
		result.Success(nil)
	}))

	var kinds []string
	registry.Observe(func(call *Call, resp *Response, elapsed time.Duration) {
		kinds = append(kinds, resp.Kind())
		assert.GreaterOrEqual(t, elapsed, time.Duration(0))
	})

	registry.Dispatch(context.Background(), newCall("test/ok", "x"))
	registry.Dispatch(context.Background(), newCall("missing", "x"))
	assert.Equal(t, []string{KindSuccess, KindNotImplemented}, kinds)
}

func TestRegistry_ChannelsSortedAndUnregister(t *testing.T) {
	registry := NewRegistry()
	noop := MethodCallHandlerFunc(func(ctx context.Context, call *Call, result Result) { result.Success(nil) })
	registry.Register("b", noop)
	registry.Register("a", noop)
	assert.Equal(t, []string{"a", "b"}, registry.Channels())

	assert.True(t, registry.Has("a"))

	registry.Unregister("a")
	assert.False(t, registry.Has("a"))
	assert.Equal(t, []string{"b"}, registry.Channels())
	assert.True(t, registry.Dispatch(context.Background(), newCall("a", "x")).NotImplemented)
}
