package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/xid"
	"github.com/soyeahso/mercora/internal/domain"
	"github.com/soyeahso/mercora/internal/mcp"
)

// OrderStore records placed orders and their status history.
type OrderStore struct {
	db *DB
}

// NewOrderStore creates an order store.
func NewOrderStore(db *DB) *OrderStore {
	return &OrderStore{db: db}
}

// Place stores a priced order, takes its units out of stock and, when the
// order came from a session, empties that session's cart. All of it happens
// in one transaction: if any line lacks stock nothing is written.
func (s *OrderStore) Place(ctx context.Context, o domain.Order) (*domain.Order, error) {
	if len(o.Lines) == 0 {
		return nil, mcp.Validation("items", "must contain at least one item")
	}

	now := s.db.Now()
	o.ID = "ord_" + xid.New().String()
	o.Status = domain.OrderPending
	o.CreatedAt = now
	o.UpdatedAt = now
	o.History = []domain.StatusChange{{Status: domain.OrderPending, At: now, Note: "order placed"}}

	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return nil, mcp.NewError(mcp.CodeInternal, "encoding order lines").WithCause(err)
	}
	addrJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return nil, mcp.NewError(mcp.CodeInternal, "encoding address").WithCause(err)
	}

	err = s.db.withTx(ctx, func(tx *sql.Tx) error {
		for _, l := range o.Lines {
			res, err := tx.ExecContext(ctx,
				`UPDATE products SET stock = stock - ? WHERE id = ? AND stock >= ?`,
				l.Quantity, l.ProductID, l.Quantity)
			if err != nil {
				return mcp.Database("reserving stock", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				e := mcp.Errorf(mcp.CodeInsufficientStock, "not enough stock for %s", l.ProductID)
				e.Field = "items"
				return e
			}
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO orders (id, agent_id, session_id, lines, subtotal_cents, shipping_cents, tax_cents,
			                     total_cents, currency, shipping_method, shipping_address, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, o.AgentID, o.SessionID, string(linesJSON), o.SubtotalCents, o.ShippingCents, o.TaxCents,
			o.TotalCents, o.Currency, o.ShippingMethod, string(addrJSON), string(o.Status),
			formatTime(now), formatTime(now),
		)
		if err != nil {
			return mcp.Database("inserting order", err)
		}

		if err := insertHistory(ctx, tx, o.ID, o.History[0]); err != nil {
			return err
		}

		if o.SessionID != "" {
			_, err := tx.ExecContext(ctx,
				`UPDATE agent_sessions SET cart = '[]', last_activity = ? WHERE id = ?`,
				formatTime(now), o.SessionID)
			if err != nil {
				return mcp.Database("clearing cart", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.db.log.Info().Str("order", o.ID).Str("agent", o.AgentID).Int64("total_cents", o.TotalCents).Msg("order placed")
	return &o, nil
}

const orderColumns = `id, agent_id, session_id, lines, subtotal_cents, shipping_cents, tax_cents, total_cents,
	currency, shipping_method, shipping_address, status, created_at, updated_at`

// Get returns an order with its history, or nil, nil.
func (s *OrderStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.sql.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mcp.Database("loading order", err)
	}

	o.History, err = s.history(ctx, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateStatus moves an order to next if the lifecycle allows it. A
// cancellation returns the order's units to stock.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, next domain.OrderStatus, note string) (*domain.Order, error) {
	if !next.Valid() {
		return nil, mcp.Validation("status", fmt.Sprintf("unknown status %q", next))
	}

	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
		o, err := scanOrder(row)
		if errors.Is(err, sql.ErrNoRows) {
			return mcp.NotFound("order", id)
		}
		if err != nil {
			return mcp.Database("loading order", err)
		}
		if !o.Status.CanTransitionTo(next) {
			return mcp.Validation("status", fmt.Sprintf("cannot move from %s to %s", o.Status, next))
		}

		now := s.db.Now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
			string(next), formatTime(now), id); err != nil {
			return mcp.Database("updating order", err)
		}
		if next == domain.OrderCancelled {
			for _, l := range o.Lines {
				if _, err := tx.ExecContext(ctx,
					`UPDATE products SET stock = stock + ? WHERE id = ?`, l.Quantity, l.ProductID); err != nil {
					return mcp.Database("restocking", err)
				}
			}
		}
		return insertHistory(ctx, tx, id, domain.StatusChange{Status: next, At: now, Note: note})
	})
	if err != nil {
		return nil, err
	}

	s.db.log.Info().Str("order", id).Str("status", string(next)).Msg("order status changed")
	return s.Get(ctx, id)
}

// ListByAgent returns the agent's most recent orders without history.
func (s *OrderStore) ListByAgent(ctx context.Context, agentID string, limit int) ([]domain.Order, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE agent_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		agentID, limit)
	if err != nil {
		return nil, mcp.Database("listing orders", err)
	}
	defer rows.Close()

	out := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, mcp.Database("scanning order", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, mcp.Database("listing orders", err)
	}
	return out, nil
}

func (s *OrderStore) history(ctx context.Context, orderID string) ([]domain.StatusChange, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT status, at, note FROM order_history WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, mcp.Database("loading order history", err)
	}
	defer rows.Close()

	var out []domain.StatusChange
	for rows.Next() {
		var c domain.StatusChange
		var status, at string
		if err := rows.Scan(&status, &at, &c.Note); err != nil {
			return nil, mcp.Database("scanning order history", err)
		}
		c.Status = domain.OrderStatus(status)
		c.At = parseTime(at)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mcp.Database("loading order history", err)
	}
	return out, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, orderID string, c domain.StatusChange) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_history (order_id, status, at, note) VALUES (?, ?, ?, ?)`,
		orderID, string(c.Status), formatTime(c.At), c.Note)
	if err != nil {
		return mcp.Database("recording order history", err)
	}
	return nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o                   domain.Order
		lines, addr, status string
		created, updated    string
	)
	err := row.Scan(&o.ID, &o.AgentID, &o.SessionID, &lines, &o.SubtotalCents, &o.ShippingCents,
		&o.TaxCents, &o.TotalCents, &o.Currency, &o.ShippingMethod, &addr, &status, &created, &updated)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(lines), &o.Lines); err != nil {
		return nil, fmt.Errorf("decoding order lines: %w", err)
	}
	if err := json.Unmarshal([]byte(addr), &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decoding address: %w", err)
	}
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = parseTime(created)
	o.UpdatedAt = parseTime(updated)
	return &o, nil
}
