package orders_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/01moynul/bookmarket-golang/internal/apperr"
	"github.com/01moynul/bookmarket-golang/internal/database/dbtest"
	"github.com/01moynul/bookmarket-golang/internal/models"
	"github.com/01moynul/bookmarket-golang/internal/orders"
)

type fixture struct {
	db     *sql.DB
	svc    *orders.Service
	userID int64
	line7  int64
	line8  int64
	book3  int64
}

// setup seeds user 42's cart from the checkout example: two lines priced
// 15000 x 2 and 9000 x 1.
func setup(t *testing.T, address *string) fixture {
	db := dbtest.StartMySQL(t)
	cat := dbtest.CreateCategory(t, db, "fiction", nil)
	bookA := dbtest.CreateBook(t, db, cat, "Book A", "15000")
	bookB := dbtest.CreateBook(t, db, cat, "Book B", "9000")
	user := dbtest.CreateUser(t, db, "buyer@example.com", address)

	return fixture{
		db:     db,
		svc:    orders.New(db),
		userID: user,
		line7:  dbtest.AddCartLine(t, db, user, bookA, 2),
		line8:  dbtest.AddCartLine(t, db, user, bookB, 1),
		book3:  bookA,
	}
}

func (f fixture) place(ctx context.Context) (int64, error) {
	return f.svc.PlaceOrder(ctx, orders.PlaceOrderInput{
		UserID:      f.userID,
		CartItemIDs: []int64{f.line7, f.line8},
		Delivery:    orders.DeliveryRequest{UseDefaultAddress: true},
	})
}

func TestIntegration_CheckoutExample(t *testing.T) {
	f := setup(t, dbtest.Ptr("Seoul"))
	ctx := context.Background()

	orderID, err := f.place(ctx)
	require.NoError(t, err)

	detail, err := f.svc.GetOrderDetail(ctx, orderID, orders.Requester{ID: f.userID, Role: models.RoleUser})
	require.NoError(t, err)
	assert.Equal(t, "39000.00", detail.TotalPrice.StringFixed(2))
	assert.Equal(t, "Seoul", detail.DeliveryInfo.Address)
	assert.Equal(t, models.OrderStatusPendingPayment, detail.Status)
	assert.Len(t, detail.Books, 2)

	assert.Zero(t, dbtest.Count(t, f.db, "SELECT COUNT(*) FROM carts WHERE user_id = ?", f.userID))

	// Lines sum to the frozen total.
	var sum decimal.Decimal
	require.NoError(t, f.db.QueryRow(
		"SELECT SUM(quantity * price) FROM order_details WHERE order_id = ?", orderID).Scan(&sum))
	assert.True(t, sum.Equal(detail.TotalPrice))

	list, err := f.svc.ListOrders(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, orderID, list[0].OrderID)
}

func TestIntegration_MissingDefaultAddress(t *testing.T) {
	f := setup(t, nil)

	_, err := f.place(context.Background())

	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Zero(t, dbtest.Count(t, f.db, "SELECT COUNT(*) FROM orders"))
	assert.Equal(t, 2, dbtest.Count(t, f.db, "SELECT COUNT(*) FROM carts WHERE user_id = ?", f.userID))
}

func TestIntegration_AtomicWhenCartDeleteFails(t *testing.T) {
	f := setup(t, dbtest.Ptr("Seoul"))

	// A row referencing the cart line makes the DELETE fail after the header
	// and lines have been inserted.
	_, err := f.db.Exec(`CREATE TABLE cart_holds (
		cart_id BIGINT NOT NULL,
		CONSTRAINT fk_cart_holds_cart FOREIGN KEY (cart_id) REFERENCES carts (id)
	) ENGINE=InnoDB`)
	require.NoError(t, err)
	_, err = f.db.Exec("INSERT INTO cart_holds (cart_id) VALUES (?)", f.line8)
	require.NoError(t, err)

	_, err = f.place(context.Background())

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInternal))
	assert.Zero(t, dbtest.Count(t, f.db, "SELECT COUNT(*) FROM orders"))
	assert.Zero(t, dbtest.Count(t, f.db, "SELECT COUNT(*) FROM order_details"))
	assert.Equal(t, 2, dbtest.Count(t, f.db, "SELECT COUNT(*) FROM carts WHERE user_id = ?", f.userID))
}

func TestIntegration_NoDoubleConsumption(t *testing.T) {
	f := setup(t, dbtest.Ptr("Seoul"))
	ctx := context.Background()

	const attempts = 4
	var (
		wg   sync.WaitGroup
		errs = make([]error, attempts)
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.place(ctx)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperr.Is(err, apperr.KindNotFound), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, dbtest.Count(t, f.db, "SELECT COUNT(*) FROM orders"))
	assert.Equal(t, 3, dbtest.Count(t, f.db, "SELECT COALESCE(SUM(quantity), 0) FROM order_details"))
}

func TestIntegration_PriceFrozenAtCheckout(t *testing.T) {
	f := setup(t, dbtest.Ptr("Seoul"))
	ctx := context.Background()

	orderID, err := f.place(ctx)
	require.NoError(t, err)

	_, err = f.db.Exec("UPDATE books SET price = 99999 WHERE id = ?", f.book3)
	require.NoError(t, err)

	detail, err := f.svc.GetOrderDetail(ctx, orderID, orders.Requester{ID: f.userID})
	require.NoError(t, err)
	for _, line := range detail.Books {
		if line.BookID == f.book3 {
			assert.Equal(t, "15000.00", line.Price.StringFixed(2))
		}
	}
	assert.Equal(t, "39000.00", detail.TotalPrice.StringFixed(2))
}

func TestIntegration_SoftDeletedBookBlocksCheckout(t *testing.T) {
	f := setup(t, dbtest.Ptr("Seoul"))

	_, err := f.db.Exec("UPDATE books SET deleted_at = NOW() WHERE id = ?", f.book3)
	require.NoError(t, err)

	_, err = f.place(context.Background())

	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Zero(t, dbtest.Count(t, f.db, "SELECT COUNT(*) FROM orders"))
}

func TestIntegration_ForeignCartLine(t *testing.T) {
	f := setup(t, dbtest.Ptr("Seoul"))
	other := dbtest.CreateUser(t, f.db, "other@example.com", dbtest.Ptr("Busan"))

	_, err := f.svc.PlaceOrder(context.Background(), orders.PlaceOrderInput{
		UserID:      other,
		CartItemIDs: []int64{f.line7},
		Delivery:    orders.DeliveryRequest{UseDefaultAddress: true},
	})

	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, 2, dbtest.Count(t, f.db, "SELECT COUNT(*) FROM carts WHERE user_id = ?", f.userID))
}

func TestIntegration_OwnershipOnDetail(t *testing.T) {
	f := setup(t, dbtest.Ptr("Seoul"))
	ctx := context.Background()
	other := dbtest.CreateUser(t, f.db, "other@example.com", nil)

	orderID, err := f.place(ctx)
	require.NoError(t, err)

	_, err = f.svc.GetOrderDetail(ctx, orderID, orders.Requester{ID: other, Role: models.RoleUser})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	detail, err := f.svc.GetOrderDetail(ctx, orderID, orders.Requester{ID: f.userID, Role: models.RoleUser})
	require.NoError(t, err)
	assert.Equal(t, orderID, detail.ID)
}
