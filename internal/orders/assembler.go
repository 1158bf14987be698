package orders

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/01moynul/bookmarket-golang/internal/apperr"
	"github.com/01moynul/bookmarket-golang/internal/models"
)

// DeliveryRequest is what the caller sent about delivery.
type DeliveryRequest struct {
	Info              *models.DeliveryInfo
	UseDefaultAddress bool
}

// Validate checks explicit delivery info. It needs no store access, so it
// runs before a transaction is opened.
func (r DeliveryRequest) Validate() error {
	if r.UseDefaultAddress {
		return nil
	}
	if r.Info == nil || !r.Info.Complete() {
		return apperr.BadRequest("delivery_info with recipient, address and phone is required unless use_default_address is true")
	}
	return nil
}

// ResolveDelivery returns the delivery info to freeze into the order: the
// caller's own, or the owner's profile when the default address was requested.
func ResolveDelivery(ctx context.Context, q Querier, ownerID int64, req DeliveryRequest) (models.DeliveryInfo, error) {
	if !req.UseDefaultAddress {
		if err := req.Validate(); err != nil {
			return models.DeliveryInfo{}, err
		}
		return *req.Info, nil
	}

	var (
		name    string
		address sql.NullString
		phone   sql.NullString
	)
	err := q.QueryRowContext(ctx,
		"SELECT name, address, phone_number FROM users WHERE id = ? AND deleted_at IS NULL",
		ownerID,
	).Scan(&name, &address, &phone)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DeliveryInfo{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return models.DeliveryInfo{}, apperr.Internalf(err, "select default address of user %d", ownerID)
	}
	if !address.Valid || address.String == "" {
		return models.DeliveryInfo{}, apperr.NotFound("no default address is registered for this user")
	}

	return models.DeliveryInfo{
		Recipient: name,
		Address:   address.String,
		Phone:     phone.String,
	}, nil
}

// Assemble builds the order header and its lines. Each line keeps the cart
// line's price and the total is their exact sum.
func Assemble(ownerID int64, delivery models.DeliveryInfo, lines []models.CartLine) (models.Order, []models.OrderLine) {
	total := decimal.Zero
	orderLines := make([]models.OrderLine, 0, len(lines))
	for _, l := range lines {
		ol := models.OrderLine{
			BookID:   l.BookID,
			Quantity: l.Quantity,
			Price:    l.Price,
		}
		total = total.Add(ol.Subtotal())
		orderLines = append(orderLines, ol)
	}

	order := models.Order{
		UserID:       ownerID,
		DeliveryInfo: delivery,
		TotalPrice:   total,
		Status:       models.OrderStatusPendingPayment,
	}
	return order, orderLines
}
