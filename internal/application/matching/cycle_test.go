package matching

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

func edge(from, to uuid.UUID) Edge {
	return Edge{From: from, To: to, TradeID: uuid.New()}
}

func TestFindCycles(t *testing.T) {
	t.Run("empty graph has no cycles", func(t *testing.T) {
		assert.Empty(t, FindCycles(nil, 6))
	})

	t.Run("chain without closure has no cycles", func(t *testing.T) {
		u := ids(3)
		edges := []Edge{edge(u[0], u[1]), edge(u[1], u[2])}
		assert.Empty(t, FindCycles(edges, 6))
	})

	t.Run("two-party swap", func(t *testing.T) {
		u := ids(2)
		edges := []Edge{edge(u[0], u[1]), edge(u[1], u[0])}
		cycles := FindCycles(edges, 6)
		require.Len(t, cycles, 1)
		assert.Equal(t, 2, cycles[0].Length)
		assert.Len(t, cycles[0].TradeIDs, 2)
	})

	t.Run("triangle reported exactly once", func(t *testing.T) {
		u := ids(3)
		edges := []Edge{edge(u[0], u[1]), edge(u[1], u[2]), edge(u[2], u[0])}
		cycles := FindCycles(edges, 6)
		require.Len(t, cycles, 1)
		assert.Equal(t, 3, cycles[0].Length)
		assert.ElementsMatch(t, u, cycles[0].Participants)
	})

	t.Run("triangle plus embedded swap", func(t *testing.T) {
		u := ids(3)
		edges := []Edge{
			edge(u[0], u[1]), edge(u[1], u[2]), edge(u[2], u[0]),
			edge(u[1], u[0]), // closes a 2-cycle with u0->u1
		}
		cycles := FindCycles(edges, 6)
		require.Len(t, cycles, 2)
		lengths := []int{cycles[0].Length, cycles[1].Length}
		assert.ElementsMatch(t, []int{2, 3}, lengths)
	})

	t.Run("depth bound prunes long cycles", func(t *testing.T) {
		u := ids(5)
		edges := []Edge{
			edge(u[0], u[1]), edge(u[1], u[2]), edge(u[2], u[3]),
			edge(u[3], u[4]), edge(u[4], u[0]),
		}
		assert.Empty(t, FindCycles(edges, 4))

		cycles := FindCycles(edges, 5)
		require.Len(t, cycles, 1)
		assert.Equal(t, 5, cycles[0].Length)
	})

	t.Run("self edge ignored", func(t *testing.T) {
		u := ids(1)
		assert.Empty(t, FindCycles([]Edge{edge(u[0], u[0])}, 6))
	})

	t.Run("cycle trade ids follow the path", func(t *testing.T) {
		u := ids(3)
		e1 := edge(u[0], u[1])
		e2 := edge(u[1], u[2])
		e3 := edge(u[2], u[0])
		cycles := FindCycles([]Edge{e1, e2, e3}, 6)
		require.Len(t, cycles, 1)
		assert.ElementsMatch(t, []uuid.UUID{e1.TradeID, e2.TradeID, e3.TradeID}, cycles[0].TradeIDs)
	})
}
