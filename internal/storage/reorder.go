package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rzpsarthak13/cardtable/internal/core"
	"go.uber.org/zap"
)

var (
	// ErrUnknownProduct is returned when a reorder names a product that is
	// not in the replica.
	ErrUnknownProduct = errors.New("unknown product")

	// ErrReorderFailed is returned when no position write succeeded.
	ErrReorderFailed = errors.New("reorder failed")
)

// PositionWrite is the outcome of writing one product position.
type PositionWrite struct {
	ProductID string `json:"product_id"`
	Position  int    `json:"position"`
	Error     string `json:"error,omitempty"`
	Queued    bool   `json:"queued,omitempty"`
}

// ReorderReport lists the position writes of a reorder.
type ReorderReport struct {
	Succeeded []PositionWrite `json:"succeeded"`
	Failed    []PositionWrite `json:"failed"`
}

// Complete reports whether every position was written.
func (r ReorderReport) Complete() bool { return len(r.Failed) == 0 }

// ReorderProducts applies orderedIDs to the replica, renumbers ordem from 0
// and then writes each position to the remote store one at a time.
//
// Products missing from orderedIDs keep their relative order after the
// listed ones. Position writes are independent: failures are reported,
// enqueued on the retry queue when one is set, and do not stop the
// remaining writes. The replica keeps the full new order either way.
func (m *Manager) ReorderProducts(ctx context.Context, orderedIDs []string) (res core.Result[ReorderReport]) {
	defer recoverInto(m.logger, "reorder products", &res)
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	reordered, err := applyOrder(m.products, orderedIDs)
	if err != nil {
		m.mu.Unlock()
		return core.Failure[ReorderReport](err)
	}
	m.products = reordered
	gen := time.Now().UnixNano()
	if gen <= m.orderGen {
		gen = m.orderGen + 1
	}
	m.orderGen = gen
	positions := make([]PositionWrite, len(reordered))
	for i, p := range reordered {
		positions[i] = PositionWrite{ProductID: p.ID, Position: p.Order}
	}
	m.mu.Unlock()

	report := m.writePositions(ctx, positions, gen)
	m.syncCache(ctx)

	if len(report.Succeeded) == 0 && len(report.Failed) > 0 {
		return core.Failure[ReorderReport](fmt.Errorf("%w: %d positions not written: %s",
			ErrReorderFailed, len(report.Failed), report.Failed[0].Error))
	}
	return core.Success(report)
}

// MoveProduct moves draggedID to the index targetID held before the move
// and persists the resulting order.
func (m *Manager) MoveProduct(ctx context.Context, draggedID, targetID string) core.Result[ReorderReport] {
	if draggedID == targetID {
		return core.Success(ReorderReport{})
	}

	ids := make([]string, 0)
	for _, p := range m.Products() {
		ids = append(ids, p.ID)
	}
	moved, err := moveID(ids, draggedID, targetID)
	if err != nil {
		return core.Failure[ReorderReport](err)
	}
	return m.ReorderProducts(ctx, moved)
}

// OrderGeneration returns the generation of the latest reorder, or 0.
func (m *Manager) OrderGeneration() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orderGen
}

// Supersedes reports whether a reorder newer than the one that queued w has
// run on this card. Such a write must not be replayed.
func (m *Manager) Supersedes(w *core.OrderWrite) bool {
	if w == nil || w.CardID != m.cardID {
		return false
	}
	return w.Generation < m.OrderGeneration()
}

func (m *Manager) writePositions(ctx context.Context, positions []PositionWrite, gen int64) ReorderReport {
	report := ReorderReport{Succeeded: []PositionWrite{}, Failed: []PositionWrite{}}
	for _, pw := range positions {
		err := m.remote.SetProductOrder(ctx, m.cardID, pw.ProductID, pw.Position)
		if err == nil {
			report.Succeeded = append(report.Succeeded, pw)
			continue
		}

		m.logger.Warn("position write failed",
			zap.String("product_id", pw.ProductID), zap.Int("position", pw.Position), zap.Error(err))
		pw.Error = err.Error()
		pw.Queued = m.enqueueRetry(ctx, pw, gen)
		report.Failed = append(report.Failed, pw)
	}
	m.logger.Debug("reorder written",
		zap.Int("succeeded", len(report.Succeeded)), zap.Int("failed", len(report.Failed)))
	return report
}

func (m *Manager) enqueueRetry(ctx context.Context, pw PositionWrite, gen int64) bool {
	if m.queue == nil {
		return false
	}
	write := &core.OrderWrite{
		CardID:     m.cardID,
		ProductID:  pw.ProductID,
		Position:   pw.Position,
		Generation: gen,
		Timestamp:  time.Now(),
		LastError:  pw.Error,
	}
	if err := m.queue.Enqueue(ctx, write); err != nil {
		m.logger.Error("failed to enqueue order write", zap.String("product_id", pw.ProductID), zap.Error(err))
		return false
	}
	m.logger.Debug("order write queued", zap.String("product_id", pw.ProductID), zap.Int("queue_size", m.queue.Size()))
	return true
}

// applyOrder returns a renumbered copy of products in the order of ids.
func applyOrder(products []core.Product, ids []string) ([]core.Product, error) {
	byID := make(map[string]core.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	out := make([]core.Product, 0, len(products))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, p)
	}

	rest := make([]core.Product, 0)
	for _, p := range products {
		if !seen[p.ID] {
			rest = append(rest, p)
		}
	}
	sortByOrder(rest)
	out = append(out, rest...)

	for i := range out {
		out[i].Order = i
	}
	return out, nil
}

// moveID removes dragged from ids and inserts it at target's original index.
func moveID(ids []string, dragged, target string) ([]string, error) {
	from, to := -1, -1
	for i, id := range ids {
		switch id {
		case dragged:
			from = i
		case target:
			to = i
		}
	}
	if from < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, dragged)
	}
	if to < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, target)
	}

	out := make([]string, 0, len(ids))
	out = append(out, ids[:from]...)
	out = append(out, ids[from+1:]...)
	if to > len(out) {
		to = len(out)
	}
	out = append(out[:to], append([]string{dragged}, out[to:]...)...)
	return out, nil
}
