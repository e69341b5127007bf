package order

import (
	"fmt"
	"regexp"
	"strings"

	"orderflow/pkg/models"
)

// Simplified RFC 5322: local@domain.tld is enough for this pipeline.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

type CreateOrderRequest struct {
	CustomerID      string             `json:"customerId"`
	CustomerEmail   string             `json:"customerEmail"`
	Items           []models.OrderItem `json:"items"`
	Currency        string             `json:"currency"`
	ShippingAddress models.Address     `json:"shippingAddress"`
}

type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports every violation at once; no side effects occur
// before validation passes.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return "invalid order request: " + strings.Join(msgs, "; ")
}

func (r CreateOrderRequest) Validate() error {
	var violations []Violation

	if strings.TrimSpace(r.CustomerID) == "" {
		violations = append(violations, Violation{Field: "customerId", Message: "customer id is required"})
	}

	if !emailPattern.MatchString(r.CustomerEmail) {
		violations = append(violations, Violation{Field: "customerEmail", Message: "email address is invalid"})
	}

	if len(r.Items) == 0 {
		violations = append(violations, Violation{Field: "items", Message: "at least one item is required"})
	}
	for i, item := range r.Items {
		if item.Quantity <= 0 {
			violations = append(violations, Violation{
				Field:   fmt.Sprintf("items[%d].quantity", i),
				Message: "quantity must be positive",
			})
		}
		if item.UnitPrice <= 0 {
			violations = append(violations, Violation{
				Field:   fmt.Sprintf("items[%d].unitPrice", i),
				Message: "unit price must be positive",
			})
		}
	}

	if strings.TrimSpace(r.ShippingAddress.Street) == "" {
		violations = append(violations, Violation{Field: "shippingAddress.street", Message: "street is required"})
	}
	if strings.TrimSpace(r.ShippingAddress.City) == "" {
		violations = append(violations, Violation{Field: "shippingAddress.city", Message: "city is required"})
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}
