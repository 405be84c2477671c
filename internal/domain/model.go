package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending         Status = "pending"
	StatusProcessing      Status = "processing"
	StatusPaymentSuccess  Status = "payment_success"
	StatusPaymentDeclined Status = "payment_declined"
	StatusPaymentFailure  Status = "payment_failure"
	StatusPaymentTimeout  Status = "payment_timeout"
	StatusWaiting         Status = "waiting"
	StatusPreparing       Status = "preparing"
	StatusReady           Status = "ready"
	StatusDelivered       Status = "delivered"
	StatusDone            Status = "done"
)

var statuses = map[Status]struct{}{
	StatusPending:         {},
	StatusProcessing:      {},
	StatusPaymentSuccess:  {},
	StatusPaymentDeclined: {},
	StatusPaymentFailure:  {},
	StatusPaymentTimeout:  {},
	StatusWaiting:         {},
	StatusPreparing:       {},
	StatusReady:           {},
	StatusDelivered:       {},
	StatusDone:            {},
}

// Valid reports whether s belongs to the closed status enumeration.
func (s Status) Valid() bool {
	_, ok := statuses[s]
	return ok
}

// Settling reports whether an order in status s may still be (re)entered into settlement.
func (s Status) Settling() bool {
	return s == StatusPending || s == StatusProcessing || s == StatusPaymentFailure
}

type Order struct {
	RestaurantID string          `json:"restaurantID"`
	OrderID      string          `json:"orderID"`
	OrderNumber  int64           `json:"orderNumber"`
	MenuID       string          `json:"menuID"`
	OrderItems   []OrderItem     `json:"orderItems"`
	Total        decimal.Decimal `json:"total"`
	Status       Status          `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// MarshalJSON writes the total as a JSON number.
func (o Order) MarshalJSON() ([]byte, error) {
	type plain Order
	return json.Marshal(struct {
		plain
		Total json.Number `json:"total"`
	}{plain(o), json.Number(o.Total.String())})
}

type OrderItem struct {
	ProductID string          `json:"productID"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitValue decimal.Decimal `json:"value"`
}

// MarshalJSON writes the unit price as a JSON number, the form clients send.
func (i OrderItem) MarshalJSON() ([]byte, error) {
	type plain OrderItem
	return json.Marshal(struct {
		plain
		UnitValue json.Number `json:"value"`
	}{plain(i), json.Number(i.UnitValue.String())})
}

// UnmarshalJSON accepts both "value" (wire name) and "unitValue" for the unit price.
func (i *OrderItem) UnmarshalJSON(b []byte) error {
	var raw struct {
		ProductID string           `json:"productID"`
		Name      string           `json:"name"`
		Quantity  int              `json:"quantity"`
		Value     *decimal.Decimal `json:"value"`
		UnitValue *decimal.Decimal `json:"unitValue"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	i.ProductID, i.Name, i.Quantity = raw.ProductID, raw.Name, raw.Quantity
	switch {
	case raw.Value != nil:
		i.UnitValue = *raw.Value
	case raw.UnitValue != nil:
		i.UnitValue = *raw.UnitValue
	default:
		i.UnitValue = decimal.Zero
	}
	return nil
}

// ItemsTotal is Σ quantity × unitValue.
func ItemsTotal(items []OrderItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.UnitValue.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// Clone returns a deep copy so callers can't alias stored item slices.
func (o Order) Clone() Order {
	c := o
	if o.OrderItems != nil {
		c.OrderItems = make([]OrderItem, len(o.OrderItems))
		copy(c.OrderItems, o.OrderItems)
	}
	return c
}

// StatusChange is one row of an order's status history.
type StatusChange struct {
	Status    Status    `json:"status"`
	ChangedBy string    `json:"changedBy"`
	ChangedAt time.Time `json:"changedAt"`
}
