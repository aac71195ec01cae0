package completion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneshot_SendAndReceive(t *testing.T) {
	tx, rx := NewOneshot[int]()

	ok := tx.Send(42)
	assert.True(t, ok)

	v, open := <-rx.C()
	require.True(t, open)
	assert.Equal(t, 42, v)

	// The channel is closed after the single value is delivered
	_, open = <-rx.C()
	assert.False(t, open)
}

func TestOneshot_SecondSendIsRejected(t *testing.T) {
	tx, rx := NewOneshot[string]()

	assert.True(t, tx.Send("first"))
	assert.False(t, tx.Send("second"))

	v, open := <-rx.C()
	require.True(t, open)
	assert.Equal(t, "first", v)

	// Exactly one value ever travels through the cell
	_, open = <-rx.C()
	assert.False(t, open)
}

func TestOneshot_SendAfterAbandonFails(t *testing.T) {
	tx, rx := NewOneshot[int]()

	rx.Abandon()

	assert.False(t, tx.Send(1))
}

func TestOneshot_AbandonAfterSendIsHarmless(t *testing.T) {
	tx, rx := NewOneshot[int]()

	require.True(t, tx.Send(7))
	rx.Abandon()

	v, open := <-rx.C()
	require.True(t, open)
	assert.Equal(t, 7, v)
}

func TestOneshot_SendNeverBlocks(t *testing.T) {
	// No receiver is draining the channel; Send must still return immediately.
	tx, _ := NewOneshot[int]()

	done := make(chan struct{})
	go func() {
		tx.Send(1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked with no active receiver")
	}
}
