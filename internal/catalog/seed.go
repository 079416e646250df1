package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/bullion/internal/coordinator"
	"github.com/roach88/bullion/internal/ir"
	"github.com/roach88/bullion/internal/store"
)

// Store is the subset of the hierarchy store the seeder writes to.
type Store interface {
	FindCategoryByName(ctx context.Context, scope ir.Scope, name string) (ir.Category, error)
	FindSubCategoryByName(ctx context.Context, scope ir.Scope, categoryID, name string) (ir.SubCategory, error)
	CreateCategory(ctx context.Context, c ir.Category) error
	CreateSubCategory(ctx context.Context, sc ir.SubCategory) error
}

// SeedReport counts what a Seed call created and what already existed.
type SeedReport struct {
	CategoriesCreated     int `json:"categories_created"`
	CategoriesExisting    int `json:"categories_existing"`
	SubCategoriesCreated  int `json:"subcategories_created"`
	SubCategoriesExisting int `json:"subcategories_existing"`
}

// Seeder creates missing catalog rows. Existing rows are matched by
// normalized name and left untouched, so seeding twice is a no-op.
type Seeder struct {
	store  Store
	ids    coordinator.IDGenerator
	clock  coordinator.Clock
	logger *slog.Logger
}

// SeedOption configures a Seeder.
type SeedOption func(*Seeder)

// WithIDGenerator sets the id source for new rows. Default: UUIDv7.
func WithIDGenerator(g coordinator.IDGenerator) SeedOption {
	return func(s *Seeder) { s.ids = g }
}

// WithClock sets the creation timestamp source.
func WithClock(c coordinator.Clock) SeedOption {
	return func(s *Seeder) { s.clock = c }
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) SeedOption {
	return func(s *Seeder) { s.logger = l }
}

// NewSeeder returns a Seeder writing to st.
func NewSeeder(st Store, opts ...SeedOption) *Seeder {
	s := &Seeder{
		store:  st,
		ids:    coordinator.UUIDv7Generator{},
		clock:  coordinator.SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed writes every category and subcategory of cat missing from scope.
// New rows start with zero totals.
func (s *Seeder) Seed(ctx context.Context, scope ir.Scope, cat *Catalog) (SeedReport, error) {
	var rep SeedReport
	if !scope.Valid() {
		return rep, fmt.Errorf("seed: invalid scope %q", scope.String())
	}

	for _, cs := range cat.Categories {
		c, created, err := s.ensureCategory(ctx, scope, cs.Name)
		if err != nil {
			return rep, err
		}
		if created {
			rep.CategoriesCreated++
		} else {
			rep.CategoriesExisting++
		}

		for _, name := range cs.SubCategories {
			created, err := s.ensureSubCategory(ctx, scope, c.ID, name)
			if err != nil {
				return rep, err
			}
			if created {
				rep.SubCategoriesCreated++
			} else {
				rep.SubCategoriesExisting++
			}
		}
	}

	s.logger.Info("catalog seeded",
		"scope", scope.String(),
		"categories_created", rep.CategoriesCreated,
		"subcategories_created", rep.SubCategoriesCreated,
	)
	return rep, nil
}

func (s *Seeder) ensureCategory(ctx context.Context, scope ir.Scope, name string) (ir.Category, bool, error) {
	c, err := s.store.FindCategoryByName(ctx, scope, name)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return ir.Category{}, false, fmt.Errorf("seed category %q: %w", name, err)
	}

	c = ir.Category{ID: s.ids.Generate(), Scope: scope, Name: name, CreatedAt: s.clock.Now()}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return ir.Category{}, false, fmt.Errorf("seed category %q: %w", name, err)
	}
	s.logger.Debug("category created", "id", c.ID, "name", name)
	return c, true, nil
}

func (s *Seeder) ensureSubCategory(ctx context.Context, scope ir.Scope, categoryID, name string) (bool, error) {
	_, err := s.store.FindSubCategoryByName(ctx, scope, categoryID, name)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("seed subcategory %q: %w", name, err)
	}

	sc := ir.SubCategory{ID: s.ids.Generate(), CategoryID: categoryID, Scope: scope, Name: name, CreatedAt: s.clock.Now()}
	if err := s.store.CreateSubCategory(ctx, sc); err != nil {
		return false, fmt.Errorf("seed subcategory %q: %w", name, err)
	}
	s.logger.Debug("subcategory created", "id", sc.ID, "category_id", categoryID, "name", name)
	return true, nil
}
