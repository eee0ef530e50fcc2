package checkout

import (
	"fmt"
	"strings"

	"agri-storefront/internal/cart"
	"agri-storefront/internal/models"
)

// ValidationError lists every field that blocked payload construction
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("checkout validation failed: %s", strings.Join(e.Fields, ", "))
}

// Field names reported in ValidationError
const (
	FieldCart          = "cart"
	FieldName          = "name"
	FieldPhone         = "phone"
	FieldAddress       = "address"
	FieldPaymentMethod = "payment_method"
)

// PaymentTerm maps a payment method to the backend payment term
func PaymentTerm(method models.PaymentMethod) string {
	if method.ForOnline {
		return models.PaymentTermPrepaid
	}
	return models.PaymentTermCOD
}

// Build turns a cart snapshot, delivery form and payment method into an
// order-creation request. Tax and discount fields are always zero.
func Build(snap cart.Snapshot, form models.CheckoutForm, method *models.PaymentMethod) (*models.CreateOrderRequest, error) {
	name := strings.TrimSpace(form.Name)
	phone := strings.TrimSpace(form.Phone)
	address := strings.TrimSpace(form.Address)

	var missing []string
	if snap.IsEmpty() {
		missing = append(missing, FieldCart)
	}
	if name == "" {
		missing = append(missing, FieldName)
	}
	if phone == "" {
		missing = append(missing, FieldPhone)
	}
	if address == "" {
		missing = append(missing, FieldAddress)
	}
	if method == nil || !method.IsActive {
		missing = append(missing, FieldPaymentMethod)
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Fields: missing}
	}

	items := make([]models.OrderItemPayload, 0, len(snap.Lines))
	var total int64
	for _, line := range snap.Lines {
		items = append(items, models.OrderItemPayload{
			ProductID: line.Product.ID,
			Quantity:  line.Quantity,
			Price:     line.Product.Price,
		})
		total += int64(line.Quantity) * line.Product.Price
	}

	return &models.CreateOrderRequest{
		DeliveryName:    name,
		DeliveryPhone:   phone,
		DeliveryAddress: address,
		Notes:           strings.TrimSpace(form.Notes),
		PaymentMethodID: method.ID,
		PaymentTerm:     PaymentTerm(*method),
		IsOnline:        method.ForOnline,
		TotalAmount:     total,
		Items:           items,
	}, nil
}

// FormFromProfile fills blank delivery fields of form from the user's profile
func FormFromProfile(form models.CheckoutForm, profile *models.UserProfile) models.CheckoutForm {
	if profile == nil {
		return form
	}
	if strings.TrimSpace(form.Name) == "" {
		form.Name = profile.FullName
	}
	if strings.TrimSpace(form.Phone) == "" {
		form.Phone = profile.Phone
	}
	if strings.TrimSpace(form.Address) == "" {
		form.Address = profile.Address
	}
	return form
}

// FindPaymentMethod returns the active method with the given id
func FindPaymentMethod(methods []models.PaymentMethod, id int64) *models.PaymentMethod {
	for i := range methods {
		if methods[i].ID == id && methods[i].IsActive {
			return &methods[i]
		}
	}
	return nil
}
