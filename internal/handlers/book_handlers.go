package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/bookmarket-golang/internal/apperr"
	"github.com/01moynul/bookmarket-golang/internal/middleware"
	"github.com/01moynul/bookmarket-golang/internal/models"
)

//
// --- Catalog Handlers (public, likes need a login) ---
//

// ListBooks is the handler for GET /v1/books.
// Query: category_id, keyword, new=true, page, limit.
func (h *Handlers) ListBooks(c *gin.Context) {
	var f models.BookFilter
	if v := c.Query("category_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			_ = c.Error(apperr.BadRequest("invalid category_id"))
			return
		}
		f.CategoryID = &id
	}
	f.Keyword = c.Query("keyword")
	f.NewOnly = c.Query("new") == "true"

	var err error
	if f.Page, err = intQuery(c, "page"); err != nil {
		_ = c.Error(err)
		return
	}
	if f.Limit, err = intQuery(c, "limit"); err != nil {
		_ = c.Error(err)
		return
	}

	page, err := h.Catalog.SearchBooks(c.Request.Context(), f)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// intQuery reads an optional non-negative integer query parameter; zero
// means "use the default".
func intQuery(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.BadRequest("invalid " + name)
	}
	return n, nil
}

// GetBook is the handler for GET /v1/books/:bookId. A logged-in caller also
// learns whether they like the book.
func (h *Handlers) GetBook(c *gin.Context) {
	bookID, err := idParam(c, "bookId")
	if err != nil {
		_ = c.Error(err)
		return
	}
	userID, _, _ := middleware.CurrentUser(c)

	book, err := h.Catalog.GetBook(c.Request.Context(), bookID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, book)
}

// ToggleBookLike is the handler for POST /v1/books/:bookId/like.
func (h *Handlers) ToggleBookLike(c *gin.Context) {
	userID, _, err := caller(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	bookID, err := idParam(c, "bookId")
	if err != nil {
		_ = c.Error(err)
		return
	}

	liked, err := h.Catalog.ToggleLike(c.Request.Context(), userID, bookID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"book_id": bookID, "liked": liked})
}

// GetCategories is the handler for GET /v1/categories.
func (h *Handlers) GetCategories(c *gin.Context) {
	tree, err := h.Catalog.Categories(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

// CreateCategoryInput defines the JSON for POST /v1/admin/categories.
type CreateCategoryInput struct {
	Name     string `json:"name" binding:"required,max=100"`
	ParentID *int64 `json:"parent_id" binding:"omitempty,gt=0"`
}

// CreateCategory is the handler for POST /v1/admin/categories.
func (h *Handlers) CreateCategory(c *gin.Context) {
	var input CreateCategoryInput
	if err := bindJSON(c, &input); err != nil {
		_ = c.Error(err)
		return
	}

	cat, err := h.Catalog.CreateCategory(c.Request.Context(), input.Name, input.ParentID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}
