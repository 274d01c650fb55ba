package models

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Order struct {
	ID             string          `gorm:"size:36;primary_key" json:"id"` // uuid
	OrganizationId string          `gorm:"size:36;index;not null" json:"organization_id"`
	TradingPointId string          `gorm:"size:36;index;not null" json:"trading_point_id"`
	Number         int             `gorm:"not null;index" json:"number"`
	Status         OrderStatus     `gorm:"type:enum('new','confirmed','in_assembly','assembled','on_delivery','delivered','completed','cancelled');default:'new';index" json:"status"`
	CustomerId     *string         `gorm:"size:36;index" json:"customer_id"`
	Total          decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total"`
	DeliveryDate   *time.Time      `json:"delivery_date"`
	Items          []OrderItem     `gorm:"foreignKey:OrderId" json:"items"`
	CreatedBy      string          `gorm:"size:255" json:"created_by"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrderItem struct {
	ID             string          `gorm:"size:36;primary_key" json:"id"` // uuid
	OrderId        string          `gorm:"size:36;index;not null" json:"order_id"`
	NomenclatureId string          `gorm:"size:36;index;not null" json:"nomenclature_id"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	Discount       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"discount"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// OrderStatusHistory is the append-only transition log. Never updated.
type OrderStatusHistory struct {
	ID        string      `gorm:"size:36;primary_key" json:"id"` // uuid
	OrderId   string      `gorm:"size:36;index;not null" json:"order_id"`
	OldStatus OrderStatus `gorm:"size:20;not null" json:"old_status"`
	NewStatus OrderStatus `gorm:"size:20;not null" json:"new_status"`
	Actor     string      `gorm:"size:255" json:"actor"`
	Comment   string      `gorm:"type:text" json:"comment"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

// allowedTransitions is the fixed adjacency table of the order workflow.
// completed and cancelled are terminal; cancelled is reachable from every
// non-terminal state.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusNew:        {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusInAssembly, OrderStatusCancelled},
	OrderStatusInAssembly: {OrderStatusAssembled, OrderStatusCancelled},
	OrderStatusAssembled:  {OrderStatusOnDelivery, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusOnDelivery: {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:  {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted:  {},
	OrderStatusCancelled:  {},
}

type InvalidTransitionError struct {
	From    OrderStatus
	To      OrderStatus
	Allowed []OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, 0, len(e.Allowed))
	for _, s := range e.Allowed {
		allowed = append(allowed, string(s))
	}
	sort.Strings(allowed)
	return fmt.Sprintf("cannot transition order from %s to %s (allowed: %s)",
		e.From, e.To, strings.Join(allowed, ", "))
}

// AllowedTransitionsFrom returns the outgoing edges of a status.
func AllowedTransitionsFrom(from OrderStatus) []OrderStatus {
	return allowedTransitions[from]
}

// CanTransition is a pure lookup against the adjacency table.
func CanTransition(from OrderStatus, to OrderStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionTo moves the order to a new status and appends one history row,
// both under the caller's transaction. Fails with InvalidTransitionError when
// the edge does not exist.
func (o *Order) TransitionTo(tx *gorm.DB, ctx context.Context, to OrderStatus, actor string, comment string) error {
	if !CanTransition(o.Status, to) {
		return &InvalidTransitionError{
			From:    o.Status,
			To:      to,
			Allowed: allowedTransitions[o.Status],
		}
	}

	oldStatus := o.Status
	err := tx.WithContext(ctx).Model(&Order{}).
		Where("id = ?", o.ID).
		Update("status", to).Error
	if err != nil {
		return err
	}
	o.Status = to

	history := OrderStatusHistory{
		ID:        uuid.NewString(),
		OrderId:   o.ID,
		OldStatus: oldStatus,
		NewStatus: to,
		Actor:     actor,
		Comment:   comment,
	}
	return tx.WithContext(ctx).Create(&history).Error
}

// GenerateOrderNumber issues the next order number for the organization
// under the organization row lock, same scheme as sale numbering.
func GenerateOrderNumber(tx *gorm.DB, ctx context.Context, organizationId string) (int, error) {
	if err := LockOrganizationRow(tx, ctx, organizationId); err != nil {
		return 0, err
	}
	var maxNumber int
	err := tx.WithContext(ctx).Model(&Order{}).
		Where("organization_id = ?", organizationId).
		Select("COALESCE(MAX(number), 0)").
		Scan(&maxNumber).Error
	if err != nil {
		return 0, err
	}
	return maxNumber + 1, nil
}
