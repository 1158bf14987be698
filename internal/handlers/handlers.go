package handlers

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/01moynul/bookmarket-golang/internal/ai"
	"github.com/01moynul/bookmarket-golang/internal/apperr"
	"github.com/01moynul/bookmarket-golang/internal/carts"
	"github.com/01moynul/bookmarket-golang/internal/middleware"
	"github.com/01moynul/bookmarket-golang/internal/models"
	"github.com/01moynul/bookmarket-golang/internal/orders"
	"github.com/01moynul/bookmarket-golang/internal/reviews"
	"github.com/01moynul/bookmarket-golang/internal/users"
)

// OrderService is implemented by *orders.Service.
type OrderService interface {
	PlaceOrder(ctx context.Context, in orders.PlaceOrderInput) (int64, error)
	ListOrders(ctx context.Context, ownerID int64) ([]models.OrderSummary, error)
	GetOrderDetail(ctx context.Context, orderID int64, who orders.Requester) (*models.OrderDetail, error)
	UpdateStatus(ctx context.Context, orderID int64, next models.OrderStatus) error
	Stats(ctx context.Context) (*models.OrderStats, error)
}

// CartService is implemented by *carts.Service.
type CartService interface {
	AddItem(ctx context.Context, userID, bookID int64, quantity int) error
	List(ctx context.Context, userID int64) (*carts.Cart, error)
	UpdateQuantity(ctx context.Context, userID, cartItemID int64, quantity int) error
	Remove(ctx context.Context, userID, cartItemID int64) error
}

// CatalogService is implemented by *catalog.Service.
type CatalogService interface {
	SearchBooks(ctx context.Context, f models.BookFilter) (*models.BookPage, error)
	GetBook(ctx context.Context, bookID, userID int64) (*models.BookDetail, error)
	ToggleLike(ctx context.Context, userID, bookID int64) (bool, error)
	Categories(ctx context.Context) ([]*models.Category, error)
	CreateCategory(ctx context.Context, name string, parentID *int64) (*models.Category, error)
}

// ReviewService is implemented by *reviews.Service.
type ReviewService interface {
	ListByBook(ctx context.Context, bookID int64) ([]models.Review, error)
	Create(ctx context.Context, userID, bookID int64, in reviews.Input) (int64, error)
	Update(ctx context.Context, reviewID, userID int64, in reviews.Input) error
	Delete(ctx context.Context, reviewID, userID int64, role string) error
	ToggleLike(ctx context.Context, reviewID, userID int64) (bool, error)
}

// UserService is implemented by *users.Service.
type UserService interface {
	Register(ctx context.Context, in users.RegisterInput) (int64, error)
	Login(ctx context.Context, email, password string) (*users.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*users.Session, error)
	Logout(ctx context.Context, refreshToken string) error
	Get(ctx context.Context, actor users.Actor, id int64) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Update(ctx context.Context, actor users.Actor, id int64, in users.UpdateInput) (*models.User, error)
	Delete(ctx context.Context, actor users.Actor, id int64) error
	UpdateRole(ctx context.Context, actor users.Actor, id int64, role string) error
}

// Assistant is implemented by *ai.Assistant.
type Assistant interface {
	Ask(ctx context.Context, userID int64, role, question string) (ai.Reply, error)
}

// Handlers struct holds all dependencies for our handlers.
type Handlers struct {
	Orders    OrderService
	Carts     CartService
	Catalog   CatalogService
	Reviews   ReviewService
	Users     UserService
	Assistant Assistant // nil when no Gemini key is configured

	// SecureCookies marks the refresh token cookie Secure; on in production.
	SecureCookies bool
}

// bindJSON binds and validates the body, reporting failures as BadRequest.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperr.BadRequest(validationMessage(err))
	}
	return nil
}

// validationMessage turns validator errors into messages naming the JSON field.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request body"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fieldName(fe)))
		case "email":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid email", fieldName(fe)))
		case "min", "gte", "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", fieldName(fe), fe.Param()))
		case "max", "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", fieldName(fe), fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fieldName(fe), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fieldName(fe)))
		}
	}
	return strings.Join(msgs, "; ")
}

func fieldName(fe validator.FieldError) string {
	if f := fe.Field(); f != "" {
		return f
	}
	return "value"
}

// Validation messages name fields by their JSON keys.
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// idParam parses a positive integer path parameter.
func idParam(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.BadRequest(fmt.Sprintf("invalid %s", name))
	}
	return id, nil
}

// caller returns the authenticated user. Routes using it sit behind
// AuthMiddleware, so a missing caller is an auth failure.
func caller(c *gin.Context) (int64, string, error) {
	userID, role, ok := middleware.CurrentUser(c)
	if !ok {
		return 0, "", apperr.Unauthorized("Unauthorized")
	}
	return userID, role, nil
}
