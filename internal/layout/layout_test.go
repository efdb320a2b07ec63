package layout_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinebook/internal/layout"
)

func TestGenerateTiersAndAisles(t *testing.T) {
	l, err := layout.Generate("Screen 1", 6, 8, []int{4})
	require.NoError(t, err)

	// 6 rows of 8 columns minus one aisle column.
	assert.Len(t, l.Seats, 6*7)

	for key, want := range map[string]string{
		"A1": layout.TierPremium,
		"B8": layout.TierPremium,
		"C3": layout.TierStandard,
		"D7": layout.TierStandard,
		"E1": layout.TierEconomy,
		"F8": layout.TierEconomy,
	} {
		tier, ok := l.TierOf(key)
		require.True(t, ok, "seat %s should exist", key)
		assert.Equal(t, want, tier, "seat %s", key)
	}

	_, ok := l.TierOf("A4")
	assert.False(t, ok, "aisle column is not a seat")
	_, ok = l.TierOf("Z1")
	assert.False(t, ok)
	_, ok = l.TierOf("A9")
	assert.False(t, ok)
}

func TestGenerateBounds(t *testing.T) {
	_, err := layout.Generate("bad", 0, 8, nil)
	assert.Error(t, err)
	_, err = layout.Generate("bad", 27, 8, nil)
	assert.Error(t, err, "row letters run out past Z")
	_, err = layout.Generate("bad", 6, 0, nil)
	assert.Error(t, err)
}

func TestSmallRoomIsAllPremiumAndEconomy(t *testing.T) {
	l, err := layout.Generate("Studio", 3, 4, nil)
	require.NoError(t, err)

	tier, _ := l.TierOf("A1")
	assert.Equal(t, layout.TierPremium, tier)
	tier, _ = l.TierOf("B1")
	assert.Equal(t, layout.TierPremium, tier, "front rows win the overlap")
	tier, _ = l.TierOf("C1")
	assert.Equal(t, layout.TierEconomy, tier)
}

func TestRegistryAssignment(t *testing.T) {
	r := layout.NewRegistry()
	l, err := layout.Generate("Screen 1", 6, 8, nil)
	require.NoError(t, err)

	err = r.AssignShow("show-1", "Screen 1")
	assert.Error(t, err, "cannot assign to an unregistered screen")

	r.RegisterScreen("Screen 1", l)
	require.NoError(t, r.AssignShow("show-1", "Screen 1"))

	got, err := r.LayoutForShow("show-1")
	require.NoError(t, err)
	assert.Same(t, l, got)

	_, err = r.LayoutForShow("show-2")
	assert.Error(t, err)
}

func TestTierOfConcurrentFirstLookup(t *testing.T) {
	// A layout decoded from JSON has no index yet; the first lookups may
	// arrive from many request goroutines at once.
	l := &layout.Layout{
		Name: "Screen 9",
		Rows: 2,
		Cols: 2,
		Seats: []layout.Seat{
			{Row: "A", Number: 1, SeatKey: "A1", Tier: layout.TierPremium},
			{Row: "B", Number: 2, SeatKey: "B2", Tier: layout.TierPremium},
		},
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tier, ok := l.TierOf("A1")
			assert.True(t, ok)
			assert.Equal(t, layout.TierPremium, tier)
			_, ok = l.TierOf("A2")
			assert.False(t, ok)
		}()
	}
	wg.Wait()
}
