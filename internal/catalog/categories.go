package catalog

import (
	"context"
	"strings"

	"github.com/gosimple/slug"

	"github.com/01moynul/bookmarket-golang/internal/apperr"
	"github.com/01moynul/bookmarket-golang/internal/database"
	"github.com/01moynul/bookmarket-golang/internal/models"
)

// Categories returns the category forest: top-level categories with their
// descendants nested under Children.
func (s *Service) Categories(ctx context.Context) ([]*models.Category, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, slug, parent_id, created_at FROM categories ORDER BY id")
	if err != nil {
		return nil, apperr.Internalf(err, "list categories")
	}
	defer rows.Close()

	var all []*models.Category
	for rows.Next() {
		var cat models.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Slug, &cat.ParentID, &cat.CreatedAt); err != nil {
			return nil, apperr.Internalf(err, "scan category")
		}
		all = append(all, &cat)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internalf(err, "iterate categories")
	}
	return buildTree(all), nil
}

func buildTree(all []*models.Category) []*models.Category {
	byID := make(map[int64]*models.Category, len(all))
	for _, cat := range all {
		byID[cat.ID] = cat
	}

	roots := []*models.Category{}
	for _, cat := range all {
		if cat.ParentID == nil {
			roots = append(roots, cat)
			continue
		}
		parent, ok := byID[*cat.ParentID]
		if !ok {
			roots = append(roots, cat)
			continue
		}
		parent.Children = append(parent.Children, cat)
	}
	return roots
}

// CreateCategory adds a category. The slug is derived from the name.
func (s *Service) CreateCategory(ctx context.Context, name string, parentID *int64) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.BadRequest("name is required")
	}
	cat := &models.Category{Name: name, Slug: slug.Make(name), ParentID: parentID}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO categories (name, slug, parent_id) VALUES (?, ?, ?)",
		cat.Name, cat.Slug, cat.ParentID)
	switch {
	case database.IsDuplicateKey(err):
		return nil, apperr.Conflict("a category with this name already exists")
	case database.IsForeignKeyViolation(err):
		return nil, apperr.NotFound("parent category not found")
	case err != nil:
		return nil, apperr.Internalf(err, "insert category")
	}

	if cat.ID, err = res.LastInsertId(); err != nil {
		return nil, apperr.Internalf(err, "category id")
	}
	return cat, nil
}
