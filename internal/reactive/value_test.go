package reactive_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jixoai/openspecui-kernel/internal/reactive"
)

func TestValueNotifiesOnlyOnChange(t *testing.T) {
	v := reactive.NewValue(1, func(a, b int) bool { return a == b })
	var seen []int
	v.OnChange(func(n int) { seen = append(seen, n) })

	v.Set(1) // equal, no notification
	v.Set(2)
	v.Set(2) // equal again
	v.Set(3)

	assert.Equal(t, []int{2, 3}, seen)
	assert.Equal(t, 3, v.Get())
}

func TestValueNilEqualsAlwaysNotifies(t *testing.T) {
	v := reactive.NewValue("x", nil)
	count := 0
	v.OnChange(func(string) { count++ })
	v.Set("x")
	v.Set("x")
	assert.Equal(t, 2, count)
}

func TestValueUnsubscribe(t *testing.T) {
	v := reactive.NewValue(0, nil)
	count := 0
	unsub := v.OnChange(func(int) { count++ })
	v.Set(1)
	unsub()
	v.Set(2)
	assert.Equal(t, 1, count)
}

func TestValueLateSubscriberMissesInFlightEvent(t *testing.T) {
	v := reactive.NewValue(0, nil)
	var secondSawFirst bool
	v.OnChange(func(n int) {
		// Subscribing here must not make this new listener observe the
		// event currently being delivered.
		v.OnChange(func(int) { secondSawFirst = true })
	})
	v.Set(1)
	assert.False(t, secondSawFirst)
}
