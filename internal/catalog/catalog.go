// Package catalog is the read-only menu and pricing source. It is queried
// exactly once per order, at creation time; after the item snapshot is
// persisted the catalog is never consulted for that order again.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNotFound covers unknown branches, items and modifiers.
var ErrNotFound = errors.New("catalog: not found")

// Branch carries what order creation needs to know about a location.
type Branch struct {
	ID             int64
	Name           string
	City           string
	IsOpen         bool
	Lat            float64
	Lon            float64
	DeliveryPrice  decimal.Decimal
	CommissionRate decimal.Decimal
	ContactEmail   string
}

// ItemPricing is one menu item priced for a specific branch: the branch
// override when present, the base price otherwise.
type ItemPricing struct {
	ItemID      int64
	CategoryID  int64
	Name        string
	Price       decimal.Decimal
	IsAvailable bool
}

// Modifier is a chosen addon or variant with its price delta.
type Modifier struct {
	ID    int64
	Kind  string
	Name  string
	Delta decimal.Decimal
}

// Source reads the menu tables.
type Source struct {
	db *sql.DB
}

func NewSource(db *sql.DB) *Source {
	return &Source{db: db}
}

// BranchInfo loads a branch.
func (s *Source) BranchInfo(ctx context.Context, branchID int64) (Branch, error) {
	var b Branch
	err := s.db.QueryRowContext(ctx, `SELECT id, name, city, is_open, lat, lon, delivery_price, commission_rate, contact_email FROM branches WHERE id = ?`, branchID).
		Scan(&b.ID, &b.Name, &b.City, &b.IsOpen, &b.Lat, &b.Lon, &b.DeliveryPrice, &b.CommissionRate, &b.ContactEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return Branch{}, ErrNotFound
	}
	if err != nil {
		return Branch{}, err
	}
	return b, nil
}

// ItemPricing resolves an item's price for the branch, preferring the
// branch_menu_prices override over the base menu price.
func (s *Source) ItemPricing(ctx context.Context, branchID, itemID int64) (ItemPricing, error) {
	var p ItemPricing
	err := s.db.QueryRowContext(ctx, `
		SELECT m.id, m.category_id, m.name,
		       COALESCE(bp.price, m.base_price), m.is_available
		FROM menu_items m
		LEFT JOIN branch_menu_prices bp ON bp.menu_item_id = m.id AND bp.branch_id = ?
		WHERE m.id = ?`, branchID, itemID).
		Scan(&p.ItemID, &p.CategoryID, &p.Name, &p.Price, &p.IsAvailable)
	if errors.Is(err, sql.ErrNoRows) {
		return ItemPricing{}, ErrNotFound
	}
	if err != nil {
		return ItemPricing{}, err
	}
	return p, nil
}

// Modifiers loads the chosen addon/variant rows for an item and verifies
// each one actually belongs to it.
func (s *Source) Modifiers(ctx context.Context, itemID int64, modifierIDs []int64) ([]Modifier, error) {
	if len(modifierIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(modifierIDs))
	args := make([]any, 0, len(modifierIDs)+1)
	args = append(args, itemID)
	for i, id := range modifierIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, name, price_delta FROM menu_modifiers WHERE menu_item_id = ? AND id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Modifier
	for rows.Next() {
		var m Modifier
		if err := rows.Scan(&m.ID, &m.Kind, &m.Name, &m.Delta); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) != len(modifierIDs) {
		return nil, fmt.Errorf("%w: modifier does not belong to item %d", ErrNotFound, itemID)
	}
	return out, nil
}
