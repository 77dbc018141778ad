package matching

import (
	"bytes"
	"context"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/barterhub/barterhub/internal/domain/trade"
	"github.com/barterhub/barterhub/internal/infrastructure/metrics"
)

// Edge is one pending proposal: the buyer wants something the seller owns.
type Edge struct {
	From    uuid.UUID `json:"from"`
	To      uuid.UUID `json:"to"`
	TradeID uuid.UUID `json:"tradeId"`
}

// Cycle is a closed chain of pending proposals. Completing every trade in it
// gives each participant something they asked for.
type Cycle struct {
	Participants []uuid.UUID `json:"participants"`
	TradeIDs     []uuid.UUID `json:"tradeIds"`
	Length       int         `json:"length"`
}

// Service detects barter cycles over the open proposal graph.
type Service struct {
	tradeRepo trade.Repository
	maxDepth  int
	logger    zerolog.Logger
}

// NewService creates a matching service. maxDepth caps cycle length; values
// below 2 fall back to the default of 6 participants.
func NewService(tradeRepo trade.Repository, maxDepth int, logger zerolog.Logger) *Service {
	if maxDepth < 2 {
		maxDepth = 6
	}
	return &Service{
		tradeRepo: tradeRepo,
		maxDepth:  maxDepth,
		logger:    logger.With().Str("service", "matching").Logger(),
	}
}

// DetectCycles rebuilds the proposal graph from a snapshot of pending trades
// and returns every simple cycle up to the depth bound.
func (s *Service) DetectCycles(ctx context.Context) ([]Cycle, error) {
	timer := prometheus.NewTimer(metrics.CycleDetectionDuration)
	defer timer.ObserveDuration()

	var edges []Edge
	const page = 500
	for offset := 0; ; offset += page {
		trades, err := s.tradeRepo.ListByStatus(ctx, trade.StatusPending, page, offset)
		if err != nil {
			return nil, err
		}
		for _, t := range trades {
			edges = append(edges, Edge{From: t.BuyerID, To: t.SellerID, TradeID: t.TradeID})
		}
		if len(trades) < page {
			break
		}
	}

	cycles := FindCycles(edges, s.maxDepth)
	for _, c := range cycles {
		metrics.CyclesFoundTotal.WithLabelValues(strconv.Itoa(c.Length)).Inc()
	}
	s.logger.Info().
		Int("edges", len(edges)).
		Int("cycles", len(cycles)).
		Msg("cycle detection pass finished")
	return cycles, nil
}

// FindCycles enumerates every simple cycle of length 2..maxDepth in the
// proposal graph. Each cycle is reported exactly once: the search from a
// start node only walks through nodes ordered after it, so a cycle is owned
// by its smallest participant and never re-discovered from the others.
func FindCycles(edges []Edge, maxDepth int) []Cycle {
	adj := make(map[uuid.UUID][]Edge)
	nodes := make([]uuid.UUID, 0)
	seen := make(map[uuid.UUID]bool)
	for _, e := range edges {
		if e.From == e.To {
			continue
		}
		adj[e.From] = append(adj[e.From], e)
		for _, n := range []uuid.UUID{e.From, e.To} {
			if !seen[n] {
				seen[n] = true
				nodes = append(nodes, n)
			}
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return less(nodes[i], nodes[j]) })

	var cycles []Cycle
	for _, start := range nodes {
		w := walker{
			adj:      adj,
			start:    start,
			maxDepth: maxDepth,
			onPath:   map[uuid.UUID]bool{start: true},
		}
		w.path = append(w.path, start)
		w.walk(start)
		cycles = append(cycles, w.found...)
	}
	return cycles
}

type walker struct {
	adj      map[uuid.UUID][]Edge
	start    uuid.UUID
	maxDepth int
	path     []uuid.UUID
	trades   []uuid.UUID
	onPath   map[uuid.UUID]bool
	found    []Cycle
}

func (w *walker) walk(node uuid.UUID) {
	for _, e := range w.adj[node] {
		if e.To == w.start {
			if len(w.path) >= 2 {
				w.found = append(w.found, Cycle{
					Participants: append([]uuid.UUID(nil), w.path...),
					TradeIDs:     append(append([]uuid.UUID(nil), w.trades...), e.TradeID),
					Length:       len(w.path),
				})
			}
			continue
		}
		// Nodes ordered before the start belong to cycles owned by a
		// smaller start; path nodes would make the cycle non-simple.
		if less(e.To, w.start) || w.onPath[e.To] {
			continue
		}
		if len(w.path) >= w.maxDepth {
			continue
		}
		w.onPath[e.To] = true
		w.path = append(w.path, e.To)
		w.trades = append(w.trades, e.TradeID)
		w.walk(e.To)
		w.trades = w.trades[:len(w.trades)-1]
		w.path = w.path[:len(w.path)-1]
		delete(w.onPath, e.To)
	}
}

func less(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}
