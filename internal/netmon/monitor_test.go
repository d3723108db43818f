package netmon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("immediate check on activation", func(t *testing.T) {
		assert.True(t, New(Always(true)).Online())
		assert.False(t, New(Always(false)).Online())
	})

	t.Run("nil check defaults to online", func(t *testing.T) {
		assert.True(t, New(nil).Online())
	})
}

func TestReport(t *testing.T) {
	t.Run("transition is surfaced immediately", func(t *testing.T) {
		m := New(Always(true))
		ch, cancel := m.Subscribe()
		defer cancel()

		m.Report(false)

		assert.False(t, m.Online())
		select {
		case online := <-ch:
			assert.False(t, online)
		case <-time.After(time.Second):
			t.Fatal("no transition delivered")
		}
	})

	t.Run("duplicate report has no observable effect", func(t *testing.T) {
		m := New(Always(true))
		ch, cancel := m.Subscribe()
		defer cancel()

		m.Report(true)

		assert.True(t, m.Online())
		select {
		case <-ch:
			t.Fatal("duplicate state should not notify")
		default:
		}
	})

	t.Run("every transition is delivered in order", func(t *testing.T) {
		m := New(Always(true))
		ch, cancel := m.Subscribe()
		defer cancel()

		m.Report(false)
		m.Report(true)
		m.Report(false)

		want := []bool{false, true, false}
		for _, expected := range want {
			select {
			case online := <-ch:
				assert.Equal(t, expected, online)
			case <-time.After(time.Second):
				t.Fatal("missing transition")
			}
		}
	})
}

func TestSubscribe(t *testing.T) {
	t.Run("cancel is idempotent", func(t *testing.T) {
		m := New(nil)
		_, cancel := m.Subscribe()
		cancel()
		cancel()

		require.NotPanics(t, func() { m.Report(false) })
	})

	t.Run("cancelled subscriber receives nothing", func(t *testing.T) {
		m := New(nil)
		ch, cancel := m.Subscribe()
		cancel()

		m.Report(false)

		select {
		case <-ch:
			t.Fatal("cancelled subscriber notified")
		default:
		}
	})

	t.Run("multiple subscribers", func(t *testing.T) {
		m := New(nil)
		a, cancelA := m.Subscribe()
		defer cancelA()
		b, cancelB := m.Subscribe()
		defer cancelB()

		m.Report(false)

		for _, ch := range []<-chan bool{a, b} {
			select {
			case online := <-ch:
				assert.False(t, online)
			case <-time.After(time.Second):
				t.Fatal("subscriber missed transition")
			}
		}
	})
}
