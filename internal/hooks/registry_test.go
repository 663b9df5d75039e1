package hooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/ctxbridge/internal/testutil"
)

func TestFire_RegistrationOrder(t *testing.T) {
	r := New[int]("order")
	var got []string

	r.Hook(func(n int) { got = append(got, "a") })
	r.Hook(func(n int) { got = append(got, "b") })
	r.Hook(func(n int) { got = append(got, "c") })

	r.Fire(1)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestFire_PassesData(t *testing.T) {
	r := New[map[string]any]("data")
	var got map[string]any
	r.Hook(func(m map[string]any) { got = m })

	r.Fire(map[string]any{"theme": "dark"})
	assert.Equal(t, map[string]any{"theme": "dark"}, got)
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	r := New[int]("idempotent")
	calls := 0
	off := r.Hook(func(int) { calls++ })
	r.Hook(func(int) {})

	off()
	off()
	assert.Equal(t, 1, r.Len())

	r.Fire(0)
	assert.Zero(t, calls)
}

func TestUnsubscribe_SameFuncTwice(t *testing.T) {
	r := New[int]("dup")
	calls := 0
	fn := func(int) { calls++ }

	off1 := r.Hook(fn)
	r.Hook(fn)
	off1()

	r.Fire(0)
	assert.Equal(t, 1, calls, "only the first registration is removed")
}

func TestFire_SnapshotIgnoresRemovalDuringFire(t *testing.T) {
	r := New[int]("snapshot-remove")
	var got []string
	var offB Unsubscribe

	r.Hook(func(int) {
		got = append(got, "a")
		offB()
	})
	offB = r.Hook(func(int) { got = append(got, "b") })

	r.Fire(1)
	assert.Equal(t, []string{"a", "b"}, got, "b was registered when the fire started")

	got = nil
	r.Fire(2)
	assert.Equal(t, []string{"a"}, got)
}

func TestFire_SnapshotIgnoresAdditionDuringFire(t *testing.T) {
	r := New[int]("snapshot-add")
	var got []string
	added := false

	r.Hook(func(int) {
		got = append(got, "a")
		if !added {
			added = true
			r.Hook(func(int) { got = append(got, "late") })
		}
	})

	r.Fire(1)
	assert.Equal(t, []string{"a"}, got)

	got = nil
	r.Fire(2)
	assert.Equal(t, []string{"a", "late"}, got)
}

func TestFire_SelfUnsubscribe(t *testing.T) {
	r := New[int]("once")
	calls := 0
	var off Unsubscribe
	off = r.Hook(func(int) {
		calls++
		off()
	})

	r.Fire(1)
	r.Fire(2)
	assert.Equal(t, 1, calls)
	assert.Zero(t, r.Len())
}

func TestFire_PanickingSubscriberIsIsolated(t *testing.T) {
	logger, logs := testutil.NewLogger(t)
	var delivered, failed int
	r := New[int]("isolate",
		WithLogger(logger),
		WithFireObserver(func(name string, d, f int) {
			assert.Equal(t, "isolate", name)
			delivered, failed = d, f
		}),
	)
	var got []string

	r.Hook(func(int) { got = append(got, "before") })
	r.Hook(func(int) { panic("boom") })
	r.Hook(func(int) { got = append(got, "after") })

	require.NotPanics(t, func() { r.Fire(1) })
	assert.Equal(t, []string{"before", "after"}, got)
	assert.Equal(t, 2, delivered)
	assert.Equal(t, 1, failed)
	assert.Contains(t, logs.String(), "Hook subscriber panicked")
	assert.Contains(t, logs.String(), "hook=isolate")
}

func TestHook_NilPanics(t *testing.T) {
	r := New[int]("nil")
	assert.Panics(t, func() { r.Hook(nil) })
}

func TestFire_NoSubscribers(t *testing.T) {
	r := New[string]("empty")
	assert.NotPanics(t, func() { r.Fire("x") })
	assert.Equal(t, "empty", r.Name())
}
