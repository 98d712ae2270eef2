package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound reports a lookup for a client id with no stored row.
var ErrNotFound = errors.New("order not found")

// Order represents an order record row keyed by client id.
type Order struct {
	ClientID        string
	Symbol          string
	Side            string
	Type            string
	Qty             float64
	Price           float64
	StopPrice       float64
	CallbackRate    float64
	ActivationPrice float64
	Status          string
	DirectionEffect string
	Failed          bool
	AvgFillPrice    float64
	ExecutedQty     float64
	SubmittedAt     time.Time
}

const orderColumns = `client_id, symbol, side, order_type, qty, price, stop_price,
       COALESCE(callback_rate, 0), COALESCE(activation_price, 0),
       status, direction_effect, failed, avg_fill_price, executed_qty, submitted_at`

// CreateOrder inserts a new order row.
func (d *Database) CreateOrder(ctx context.Context, o Order) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (
			client_id, symbol, side, order_type, qty, price, stop_price,
			callback_rate, activation_price, status, direction_effect,
			failed, avg_fill_price, executed_qty, submitted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`,
		o.ClientID, o.Symbol, o.Side, o.Type, o.Qty, o.Price, o.StopPrice,
		o.CallbackRate, o.ActivationPrice, o.Status, o.DirectionEffect,
		o.Failed, o.AvgFillPrice, o.ExecutedQty, o.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ClientID, err)
	}
	return nil
}

// UpdateOrderExecution records a fill or rejection reported by the exchange.
func (d *Database) UpdateOrderExecution(ctx context.Context, clientID, status string, avgFillPrice, executedQty float64) error {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE orders SET status = ?, avg_fill_price = ?, executed_qty = ?
		WHERE client_id = ?
	`, status, avgFillPrice, executedQty, clientID)
	if err != nil {
		return fmt.Errorf("update order %s: %w", clientID, err)
	}
	return affectedOrNotFound(res)
}

// MarkOrderFailed flags an order whose dispatch itself errored.
func (d *Database) MarkOrderFailed(ctx context.Context, clientID string) error {
	res, err := d.DB.ExecContext(ctx, `UPDATE orders SET failed = 1 WHERE client_id = ?`, clientID)
	if err != nil {
		return fmt.Errorf("mark order %s failed: %w", clientID, err)
	}
	return affectedOrNotFound(res)
}

// DeleteOrder removes an order row; used for CANCELED/EXPIRED hard deletes.
func (d *Database) DeleteOrder(ctx context.Context, clientID string) error {
	res, err := d.DB.ExecContext(ctx, `DELETE FROM orders WHERE client_id = ?`, clientID)
	if err != nil {
		return fmt.Errorf("delete order %s: %w", clientID, err)
	}
	return affectedOrNotFound(res)
}

// GetOrder fetches one order row by client id.
func (d *Database) GetOrder(ctx context.Context, clientID string) (Order, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE client_id = ?`, clientID)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

// ListOrders returns every stored order row.
func (d *Database) ListOrders(ctx context.Context) ([]Order, error) {
	rows, err := d.DB.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (Order, error) {
	var o Order
	err := s.Scan(
		&o.ClientID, &o.Symbol, &o.Side, &o.Type, &o.Qty, &o.Price, &o.StopPrice,
		&o.CallbackRate, &o.ActivationPrice, &o.Status, &o.DirectionEffect,
		&o.Failed, &o.AvgFillPrice, &o.ExecutedQty, &o.SubmittedAt,
	)
	return o, err
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
