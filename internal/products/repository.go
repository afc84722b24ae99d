package products

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = `
	id, name, brand, description, price, category,
	sizes, colors, image_url, stock, rating, is_featured, created_at
`

type ListFilter struct {
	Category string
	Search   string
	Sort     string
	Limit    int
	Offset   int
}

func (r *ProductRepository) List(ctx context.Context, filter ListFilter) ([]domain.Product, error) {
	where := ""
	var args []any

	if filter.Category != "" {
		args = append(args, filter.Category)
		where = fmt.Sprintf("WHERE category = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		clause := fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d OR brand ILIKE $%d)", len(args), len(args), len(args))
		if where == "" {
			where = "WHERE " + clause
		} else {
			where += " AND " + clause
		}
	}

	order := "ORDER BY created_at DESC"
	switch filter.Sort {
	case "price_asc":
		order = "ORDER BY price ASC"
	case "price_desc":
		order = "ORDER BY price DESC"
	case "rating":
		order = "ORDER BY rating DESC"
	case "newest", "":
	default:
		return nil, fmt.Errorf("%w: unknown sort %q", domain.ErrInvalidInput, filter.Sort)
	}

	paging := ""
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		paging = fmt.Sprintf(" LIMIT $%d", len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			paging += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products `+where+` `+order+paging, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}

	return products, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	product := &domain.Product{}
	err := row.Scan(
		&product.ID, &product.Name, &product.Brand, &product.Description,
		&product.Price, &product.Category,
		pq.Array(&product.Sizes), pq.Array(&product.Colors),
		&product.ImageURL, &product.Stock, &product.Rating, &product.IsFeatured,
		&product.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	return product, nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	return scanProduct(r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (r *ProductRepository) ListFeatured(ctx context.Context, limit int) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE is_featured ORDER BY rating DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}

	return products, rows.Err()
}

func (r *ProductRepository) Create(ctx context.Context, product *domain.Product) error {
	if product.Name == "" || product.Category == "" {
		return fmt.Errorf("%w: product name and category are required", domain.ErrInvalidInput)
	}
	if product.Price.IsNegative() {
		return fmt.Errorf("%w: product price must not be negative", domain.ErrInvalidInput)
	}

	product.ID = uuid.New().String()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, brand, description, price, category, sizes, colors, image_url, stock, rating, is_featured, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
	`, product.ID, product.Name, product.Brand, product.Description, product.Price,
		product.Category, pq.Array(product.Sizes), pq.Array(product.Colors),
		product.ImageURL, product.Stock, product.Rating, product.IsFeatured)
	return err
}

func (r *ProductRepository) Update(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, brand = $3, description = $4, price = $5, category = $6,
		    sizes = $7, colors = $8, image_url = $9, stock = $10, rating = $11, is_featured = $12
		WHERE id = $1
	`, product.ID, product.Name, product.Brand, product.Description, product.Price,
		product.Category, pq.Array(product.Sizes), pq.Array(product.Colors),
		product.ImageURL, product.Stock, product.Rating, product.IsFeatured)
	if err != nil {
		return nil, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, domain.ErrProductNotFound
	}

	return r.GetByID(ctx, product.ID)
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}

	return nil
}

func (r *ProductRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&count)
	return count, err
}
