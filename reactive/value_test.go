package reactive

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestValueWatchersSeeEverySet(t *testing.T) {
	v := NewValue(1)
	var seen []int
	cancel := v.Watch(func(n int) { seen = append(seen, n) })

	v.Set(2)
	v.Set(3)
	cancel()
	v.Set(4)

	assert.Equal(t, seen, []int{2, 3})
	assert.Equal(t, v.Get(), 4)
	assert.Equal(t, v.Version(), uint64(3))
}

func TestComputedRecomputesOnlyWhenDepsMove(t *testing.T) {
	a := NewValue(2)
	b := NewValue(3)
	calls := 0
	sum := NewComputed(func() int {
		calls++
		return a.Get() + b.Get()
	}, a, b)

	assert.Equal(t, sum.Get(), 5)
	assert.Equal(t, sum.Get(), 5)
	assert.Equal(t, calls, 1)

	b.Set(10)
	assert.Equal(t, sum.Get(), 12)
	assert.Equal(t, calls, 2)

	v := sum.Version()
	assert.Equal(t, sum.Version(), v)
	a.Set(0)
	assert.NotEqual(t, sum.Version(), v)
}

func TestComputedWatch(t *testing.T) {
	a := NewValue("x")
	upper := NewComputed(func() string { return a.Get() + "!" }, a)

	var got []string
	cancel := upper.Watch(func(s string) { got = append(got, s) })
	defer cancel()

	a.Set("y")
	assert.Equal(t, got, []string{"y!"})
}
