package history

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing_RecentBeforeFull(t *testing.T) {
	r := New[int](4)
	r.Append(1)
	r.Append(2)

	assert.Equal(t, []int{1, 2}, r.Recent(0))
	assert.Equal(t, []int{2}, r.Recent(1))
	assert.Equal(t, []int{1, 2}, r.Recent(10))
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 4, r.Cap())
}

func TestRing_EvictsOldest(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 7; i++ {
		r.Append(i)
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, uint64(7), r.Total())
	assert.Equal(t, []int{5, 6, 7}, r.Recent(0))
	assert.Equal(t, []int{6, 7}, r.Recent(2))
}

func TestRing_RecentIsACopy(t *testing.T) {
	r := New[int](2)
	r.Append(1)
	got := r.Recent(0)
	got[0] = 99

	assert.Equal(t, []int{1}, r.Recent(0))
}

func TestRing_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New[string](0).Cap())
}

func TestRing_ConcurrentReadersDuringWrites(t *testing.T) {
	r := New[int](64)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			r.Append(i)
		}
	}()

	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				snap := r.Recent(16)
				for j := 1; j < len(snap); j++ {
					if snap[j] != snap[j-1]+1 {
						t.Errorf("snapshot not contiguous: %v", snap)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, []int{998, 999}, r.Recent(2))
}
