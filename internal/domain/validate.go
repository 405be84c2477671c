package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ValidateNew checks an order payload at admission. pathRestaurantID is the tenant
// from the request route; the body must name the same tenant.
func ValidateNew(pathRestaurantID string, o Order) error {
	if strings.TrimSpace(pathRestaurantID) == "" {
		return Validationf("you are missing the restaurantID")
	}
	if o.RestaurantID == "" || o.RestaurantID != pathRestaurantID {
		return Validationf("incorrect restaurantID")
	}
	if o.MenuID == "" {
		return Validationf("you are missing the menuID")
	}
	return validateItems(o)
}

// ValidateReplace checks a full update. Identity fields must be present;
// the total is re-validated against the items.
func ValidateReplace(pathRestaurantID string, o Order) error {
	if err := ValidateNew(pathRestaurantID, o); err != nil {
		return err
	}
	if o.OrderID == "" {
		return Validationf("you are missing the orderID")
	}
	if o.Status == "" {
		return Validationf("you are missing the status")
	}
	if !o.Status.Valid() {
		return Conflictf("status %q does not exist", o.Status)
	}
	return nil
}

// StatusPatch is the body of a status-only update.
type StatusPatch struct {
	RestaurantID string `json:"restaurantID"`
	MenuID       string `json:"menuID"`
	OrderID      string `json:"orderID"`
	Status       Status `json:"status"`
}

func (p StatusPatch) Validate(pathRestaurantID string) error {
	if pathRestaurantID == "" {
		return Validationf("you are missing the restaurantID")
	}
	if p.RestaurantID == "" || p.RestaurantID != pathRestaurantID {
		return Validationf("incorrect restaurantID")
	}
	if p.MenuID == "" {
		return Validationf("you are missing the menuID")
	}
	if p.OrderID == "" {
		return Validationf("you are missing the orderID")
	}
	if p.Status == "" {
		return Validationf("you are missing the status")
	}
	return nil
}

// MoneyPlaces is the scale the store keeps for amounts.
const MoneyPlaces = 2

func cents(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyPlaces))
}

func validateItems(o Order) error {
	if len(o.OrderItems) == 0 {
		return Validationf("you are missing the order items")
	}
	for i, it := range o.OrderItems {
		if it.ProductID == "" {
			return Validationf("order item %d is missing the productID", i)
		}
		if it.Quantity <= 0 {
			return Validationf("invalid quantity for item %s", it.ProductID)
		}
		if it.UnitValue.IsNegative() {
			return Validationf("invalid value for item %s", it.ProductID)
		}
		if !cents(it.UnitValue) {
			return Validationf("value for item %s has more than %d decimal places", it.ProductID, MoneyPlaces)
		}
	}
	if o.Total.IsZero() {
		return Validationf("you are missing the order total")
	}
	if !cents(o.Total) {
		return Validationf("order total has more than %d decimal places", MoneyPlaces)
	}
	if !o.Total.Equal(ItemsTotal(o.OrderItems)) {
		return Validationf("order total doesn't match")
	}
	return nil
}
