package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/rand"
)

// Coupon types.
const (
	CouponDeliveryWaiver   = "flat_delivery_waiver"
	CouponItemDiscount     = "item_discount"
	CouponCategoryDiscount = "category_discount"
	CouponBuyXGetY         = "bxgy"
)

// Coupon scopes and discount kinds.
const (
	ScopePlatform = "platform"
	ScopeBranch   = "branch"

	KindPercent = "percent"
	KindFixed   = "fixed"
)

// Coupon describes one promotion. TargetID points at the item or category
// for scoped discounts; the Buy*/Get* fields only apply to bxgy coupons.
type Coupon struct {
	ID            int64
	Code          string
	Type          string
	Scope         string
	BranchID      sql.NullInt64
	DiscountKind  string
	DiscountValue decimal.Decimal
	MaxUses       sql.NullInt64
	UsesCount     int64
	ValidFrom     time.Time
	ValidUntil    sql.NullTime
	IsActive      bool
	TargetID      sql.NullInt64
	BuyQty        int
	GetQty        int
	BuyItemID     sql.NullInt64
	GetItemID     sql.NullInt64
	CreatedAt     time.Time
}

const couponColumns = `id, code, type, scope, branch_id, discount_kind, discount_value,
	max_uses, uses_count, valid_from, valid_until, is_active,
	target_id, buy_qty, get_qty, buy_item_id, get_item_id, created_at`

// CouponsRepo persists promotions. Consumption always runs inside the order
// transaction that applies the discount, through consumeCoupon.
type CouponsRepo struct {
	db *sql.DB

	// codeAttempts caps unique-code generation retries before giving up
	// with ErrCodeSpaceExhausted.
	codeAttempts int
}

func NewCouponsRepo(db *sql.DB, codeAttempts int) *CouponsRepo {
	if codeAttempts <= 0 {
		codeAttempts = 5
	}
	rand.Seed(uint64(time.Now().UnixNano()))
	return &CouponsRepo{db: db, codeAttempts: codeAttempts}
}

// GetByCode loads a coupon for eligibility evaluation.
func (r *CouponsRepo) GetByCode(ctx context.Context, code string) (Coupon, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = ?`, code)
	return scanCoupon(row)
}

// Get loads a coupon by id.
func (r *CouponsRepo) Get(ctx context.Context, id int64) (Coupon, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = ?`, id)
	return scanCoupon(row)
}

// Create inserts a coupon, generating a unique code when none is given.
func (r *CouponsRepo) Create(ctx context.Context, c Coupon) (int64, error) {
	var err error
	if c.Code == "" {
		c.Code, err = r.generateCode(ctx)
		if err != nil {
			return 0, err
		}
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO coupons (code, type, scope, branch_id, discount_kind, discount_value, max_uses, uses_count, valid_from, valid_until, is_active, target_id, buy_qty, get_qty, buy_item_id, get_item_id) VALUES (?,?,?,?,?,?,?,0,?,?,?,?,?,?,?,?)`,
		c.Code, c.Type, c.Scope, c.BranchID, c.DiscountKind, c.DiscountValue, c.MaxUses,
		c.ValidFrom, c.ValidUntil, c.IsActive, c.TargetID, c.BuyQty, c.GetQty, c.BuyItemID, c.GetItemID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Deactivate switches a coupon off without deleting it.
func (r *CouponsRepo) Deactivate(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE coupons SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generateCode retries short random codes against the unique index a capped
// number of times.
func (r *CouponsRepo) generateCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < r.codeAttempts; attempt++ {
		buf := make([]byte, 8)
		for i := range buf {
			buf[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
		}
		code := string(buf)

		var exists int
		err := r.db.QueryRowContext(ctx, `SELECT 1 FROM coupons WHERE code = ?`, code).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", ErrCodeSpaceExhausted
}

// consumeCoupon increments uses_count with a single conditional update. Zero
// rows affected means the cap was hit by a concurrent consumer or the coupon
// went inactive; the caller must not apply the discount.
func consumeCoupon(ctx context.Context, tx *sql.Tx, couponID int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE coupons SET uses_count = uses_count + 1 WHERE id = ? AND is_active = 1 AND (max_uses IS NULL OR uses_count < max_uses)`, couponID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrCouponExhausted
	}
	return nil
}

func scanCoupon(row rowScanner) (Coupon, error) {
	var c Coupon
	err := row.Scan(&c.ID, &c.Code, &c.Type, &c.Scope, &c.BranchID, &c.DiscountKind, &c.DiscountValue,
		&c.MaxUses, &c.UsesCount, &c.ValidFrom, &c.ValidUntil, &c.IsActive,
		&c.TargetID, &c.BuyQty, &c.GetQty, &c.BuyItemID, &c.GetItemID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Coupon{}, ErrNotFound
	}
	if err != nil {
		return Coupon{}, err
	}
	return c, nil
}
