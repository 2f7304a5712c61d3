package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// MovementType enumerates ledger entry kinds.
type MovementType string

const (
	MovementIn         MovementType = "IN"
	MovementOut        MovementType = "OUT"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementTransfer   MovementType = "TRANSFER"
	MovementIssue      MovementType = "ISSUE"
	MovementReturn     MovementType = "RETURN"
	MovementOpening    MovementType = "OPENING"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment, MovementTransfer, MovementIssue, MovementReturn, MovementOpening:
		return true
	}
	return false
}

// Key identifies one stock row.
type Key struct {
	ItemCode  string
	Warehouse string
}

func (k Key) String() string { return k.ItemCode + "@" + k.Warehouse }

// Less orders keys for deterministic lock acquisition.
func (k Key) Less(other Key) bool {
	if k.ItemCode != other.ItemCode {
		return k.ItemCode < other.ItemCode
	}
	return k.Warehouse < other.Warehouse
}

// Stock is the current balance of an item in a warehouse.
type Stock struct {
	ItemCode       string          `json:"item_code" db:"item_code"`
	ItemName       string          `json:"item_name,omitempty" db:"item_name"`
	Warehouse      string          `json:"warehouse" db:"warehouse"`
	UOM            string          `json:"uom,omitempty" db:"uom"`
	Opening        shared.Quantity `json:"opening" db:"opening"`
	Current        shared.Quantity `json:"current" db:"current_qty"`
	Reserved       shared.Quantity `json:"reserved" db:"reserved"`
	Available      shared.Quantity `json:"available" db:"available"`
	UnitCost       decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	TotalValue     shared.Money    `json:"total_value" db:"total_value"`
	Seq            int64           `json:"seq" db:"seq"`
	LastMovementAt *time.Time      `json:"last_movement_at,omitempty" db:"last_movement_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// Key returns the stock identity.
func (s Stock) Key() Key { return Key{ItemCode: s.ItemCode, Warehouse: s.Warehouse} }

func (s *Stock) recompute() {
	s.Available = s.Current.Sub(s.Reserved)
	s.TotalValue = shared.RoundMoney(s.Current.Mul(s.UnitCost))
}

// Movement is an immutable ledger entry.
type Movement struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	Seq           int64           `json:"seq" db:"seq"`
	ItemCode      string          `json:"item_code" db:"item_code"`
	ItemName      string          `json:"item_name,omitempty" db:"item_name"`
	Warehouse     string          `json:"warehouse" db:"warehouse"`
	Type          MovementType    `json:"movement_type" db:"movement_type"`
	Quantity      shared.Quantity `json:"quantity" db:"quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	BalanceBefore shared.Quantity `json:"balance_before" db:"balance_before"`
	BalanceAfter  shared.Quantity `json:"balance_after" db:"balance_after"`
	ReferenceKind string          `json:"reference_kind,omitempty" db:"reference_kind"`
	ReferenceCode string          `json:"reference_code,omitempty" db:"reference_code"`
	Remarks       string          `json:"remarks,omitempty" db:"remarks"`
	CreatedBy     string          `json:"created_by" db:"created_by"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Signed returns the quantity with the sign of its effect on current stock.
func (m Movement) Signed() decimal.Decimal {
	return m.BalanceAfter.Sub(m.BalanceBefore)
}

// Reference points a movement at the document that caused it.
type Reference struct {
	Kind string
	Code string
}

// Op selects the ledger operation of a Mutation.
type Op int

const (
	OpAdd Op = iota + 1
	OpRemove
	OpAdjust
	OpReserve
	OpRelease
)

// Mutation is one request against the ledger.
type Mutation struct {
	Op        Op
	Type      MovementType
	ItemCode  string
	ItemName  string
	Warehouse string
	UOM       string
	// Quantity is the delta for add/remove/reserve/release and the target
	// balance for adjust.
	Quantity shared.Quantity
	UnitCost decimal.Decimal
	Ref      Reference
	Remarks  string
	Actor    string
}

// Result is the state after a mutation. Movement is nil for reservations.
type Result struct {
	Stock    Stock     `json:"stock"`
	Movement *Movement `json:"movement,omitempty"`
}

// StockFilter narrows stock listings.
type StockFilter struct {
	ItemCode  string
	Warehouse string
	OnlyShort bool
	Page      int
	PerPage   int
}

// MovementFilter narrows history queries.
type MovementFilter struct {
	ItemCode      string
	Warehouse     string
	Type          MovementType
	ReferenceKind string
	ReferenceCode string
	From          time.Time
	To            time.Time
	Limit         int
}

// ErrStockNotFound is returned by repositories for a missing stock row.
var ErrStockNotFound = errors.New("inventory: stock not found")
