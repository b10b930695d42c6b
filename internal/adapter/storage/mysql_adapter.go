package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rl1809/pantry/internal/core/domain"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS pantry_products (
		handle            VARCHAR(16)  NOT NULL PRIMARY KEY,
		id                CHAR(36)     NOT NULL,
		base_name         VARCHAR(255) NOT NULL,
		display_name      VARCHAR(255) NOT NULL,
		product_type      VARCHAR(255) NOT NULL,
		expiration_date   DATE         NOT NULL,
		note              TEXT         NOT NULL,
		disambiguation_id INT          NOT NULL,
		UNIQUE KEY uq_type_disambiguation (product_type, disambiguation_id)
	)`,
	`CREATE TABLE IF NOT EXISTS pantry_recipes (
		name_key     VARCHAR(255) NOT NULL PRIMARY KEY,
		name         VARCHAR(255) NOT NULL,
		ingredients  JSON         NOT NULL,
		instructions TEXT         NOT NULL
	)`,
}

// MySQLAdapter persists the pantry in two tables. The DSN must set
// parseTime=true so DATE columns scan into time.Time.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range mysqlSchema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) LoadProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT handle, id, base_name, display_name, product_type, expiration_date, note, disambiguation_id
		FROM pantry_products`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.Handle, &p.ID, &p.BaseName, &p.DisplayName, &p.Type,
			&p.ExpirationDate, &p.Note, &p.DisambiguationID); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.ExpirationDate = domain.DateOf(p.ExpirationDate)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func (m *MySQLAdapter) LoadRecipes(ctx context.Context) ([]domain.Recipe, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT name, ingredients, instructions FROM pantry_recipes`)
	if err != nil {
		return nil, fmt.Errorf("query recipes: %w", err)
	}
	defer rows.Close()

	var recipes []domain.Recipe
	for rows.Next() {
		var (
			r   domain.Recipe
			raw []byte
		)
		if err := rows.Scan(&r.Name, &raw, &r.Instructions); err != nil {
			return nil, fmt.Errorf("scan recipe: %w", err)
		}
		if err := json.Unmarshal(raw, &r.Ingredients); err != nil {
			return nil, fmt.Errorf("decode ingredients of %s: %w", r.Name, err)
		}
		recipes = append(recipes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipes: %w", err)
	}
	return recipes, nil
}

func (m *MySQLAdapter) SaveProducts(ctx context.Context, products []domain.Product) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pantry_products`); err != nil {
		return fmt.Errorf("clear products: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pantry_products
			(handle, id, base_name, display_name, product_type, expiration_date, note, disambiguation_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range products {
		_, err := stmt.ExecContext(ctx, p.Handle, p.ID, p.BaseName, p.DisplayName, p.Type,
			domain.DateOf(p.ExpirationDate), p.Note, p.DisambiguationID)
		if err != nil {
			return fmt.Errorf("insert product %s: %w", p.Handle, err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) SaveRecipes(ctx context.Context, recipes []domain.Recipe) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pantry_recipes`); err != nil {
		return fmt.Errorf("clear recipes: %w", err)
	}

	for _, r := range recipes {
		raw, err := json.Marshal(r.Ingredients)
		if err != nil {
			return fmt.Errorf("encode ingredients of %s: %w", r.Name, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO pantry_recipes (name_key, name, ingredients, instructions)
			VALUES (?, ?, ?, ?)`,
			r.Key(), r.Name, raw, r.Instructions,
		)
		if err != nil {
			return fmt.Errorf("insert recipe %s: %w", r.Name, err)
		}
	}

	return tx.Commit()
}
