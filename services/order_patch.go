package services

import (
	"strings"
	"time"

	"github.com/opsdash/commesse-api/models"
)

// OrderPatch carries the editable order fields. Nil fields are left untouched.
type OrderPatch struct {
	Title             *string           `json:"title"`
	Article           *string           `json:"article"`
	Notes             *string           `json:"notes"`
	Description       *string           `json:"description"`
	Type              *models.OrderType `json:"type" binding:"omitempty,ordertype"`
	DeliveryMode      *string           `json:"delivery_mode"`
	InterventionType  *string           `json:"intervention_type"`
	Diameter          *string           `json:"diameter"`
	SmokeInlet        *string           `json:"smoke_inlet"`
	Deadline          *time.Time        `json:"deadline"`
	ClearDeadline     bool              `json:"clear_deadline"`
	PaymentOnDelivery *bool             `json:"payment_on_delivery"`
	PaymentAmount     *float64          `json:"payment_amount"`
	Warranty          *bool             `json:"warranty"`
	Archived          *bool             `json:"archived"`
	ShippingAddress   *string           `json:"shipping_address"`
	ShippingCity      *string           `json:"shipping_city"`
	ShippingZip       *string           `json:"shipping_zip"`
	ShippingProvince  *string           `json:"shipping_province"`
}

// Validate rejects values outside the order vocabulary
func (p OrderPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return newValidationError(KindInvalidField, "title cannot be empty")
	}
	if p.Type != nil && !p.Type.IsValid() {
		return newValidationError(KindInvalidField, "order type %q is not valid", *p.Type)
	}
	if p.PaymentAmount != nil && *p.PaymentAmount < 0 {
		return newValidationError(KindInvalidField, "payment amount cannot be negative")
	}
	if p.Deadline != nil && p.ClearDeadline {
		return newValidationError(KindInvalidField, "deadline and clear_deadline are mutually exclusive")
	}
	return nil
}

// Fields returns the column updates described by the patch
func (p OrderPatch) Fields() map[string]interface{} {
	fields := map[string]interface{}{}
	setString := func(column string, v *string) {
		if v != nil {
			fields[column] = *v
		}
	}
	setString("title", p.Title)
	setString("article", p.Article)
	setString("notes", p.Notes)
	setString("description", p.Description)
	setString("delivery_mode", p.DeliveryMode)
	setString("intervention_type", p.InterventionType)
	setString("diameter", p.Diameter)
	setString("smoke_inlet", p.SmokeInlet)
	setString("shipping_address", p.ShippingAddress)
	setString("shipping_city", p.ShippingCity)
	setString("shipping_zip", p.ShippingZip)
	setString("shipping_province", p.ShippingProvince)

	if p.Type != nil {
		fields["type"] = *p.Type
	}
	if p.Deadline != nil {
		fields["deadline"] = *p.Deadline
	} else if p.ClearDeadline {
		fields["deadline"] = nil
	}
	if p.PaymentOnDelivery != nil {
		fields["payment_on_delivery"] = *p.PaymentOnDelivery
	}
	if p.PaymentAmount != nil {
		fields["payment_amount"] = *p.PaymentAmount
	}
	if p.Warranty != nil {
		fields["warranty"] = *p.Warranty
	}
	if p.Archived != nil {
		fields["archived"] = *p.Archived
	}
	return fields
}

// applyOrderFields mirrors a column update map onto an order value
func applyOrderFields(o models.Order, fields map[string]interface{}) models.Order {
	for column, value := range fields {
		switch column {
		case "priority":
			o.Priority = value.(models.Priority)
		case "type":
			o.Type = value.(models.OrderType)
		case "title":
			o.Title = value.(string)
		case "article":
			o.Article = value.(string)
		case "notes":
			o.Notes = value.(string)
		case "description":
			o.Description = value.(string)
		case "delivery_mode":
			o.DeliveryMode = value.(string)
		case "intervention_type":
			o.InterventionType = value.(string)
		case "diameter":
			o.Diameter = value.(string)
		case "smoke_inlet":
			o.SmokeInlet = value.(string)
		case "shipping_address":
			o.ShippingAddress = value.(string)
		case "shipping_city":
			o.ShippingCity = value.(string)
		case "shipping_zip":
			o.ShippingZip = value.(string)
		case "shipping_province":
			o.ShippingProvince = value.(string)
		case "deadline":
			if d, ok := value.(time.Time); ok {
				o.Deadline = &d
			} else {
				o.Deadline = nil
			}
		case "payment_on_delivery":
			o.PaymentOnDelivery = value.(bool)
		case "payment_amount":
			amount := value.(float64)
			o.PaymentAmount = &amount
		case "warranty":
			o.Warranty = value.(bool)
		case "archived":
			o.Archived = value.(bool)
		}
	}
	return o
}
