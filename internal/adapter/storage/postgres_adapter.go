package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/rl1809/pantry/internal/core/domain"
)

type productRecord struct {
	Handle           string    `gorm:"primaryKey;size:16"`
	ProductID        string    `gorm:"size:36;not null"`
	BaseName         string    `gorm:"not null"`
	DisplayName      string    `gorm:"not null"`
	Type             string    `gorm:"column:product_type;not null;uniqueIndex:idx_type_disambiguation"`
	ExpirationDate   time.Time `gorm:"type:date;not null"`
	Note             string
	DisambiguationID int `gorm:"not null;uniqueIndex:idx_type_disambiguation"`
}

func (productRecord) TableName() string { return "pantry_products" }

type recipeRecord struct {
	NameKey      string         `gorm:"primaryKey"`
	Name         string         `gorm:"not null"`
	Ingredients  datatypes.JSON `gorm:"type:jsonb;not null"`
	Instructions string
}

func (recipeRecord) TableName() string { return "pantry_recipes" }

// PostgresAdapter persists the pantry through gorm.
type PostgresAdapter struct {
	db *gorm.DB
}

func NewPostgresAdapter(db *gorm.DB) *PostgresAdapter {
	return &PostgresAdapter{db: db}
}

func (a *PostgresAdapter) Migrate(ctx context.Context) error {
	if err := a.db.WithContext(ctx).AutoMigrate(&productRecord{}, &recipeRecord{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (a *PostgresAdapter) LoadProducts(ctx context.Context) ([]domain.Product, error) {
	var records []productRecord
	if err := a.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}

	products := make([]domain.Product, 0, len(records))
	for _, r := range records {
		products = append(products, domain.Product{
			ID:               r.ProductID,
			Handle:           r.Handle,
			BaseName:         r.BaseName,
			DisplayName:      r.DisplayName,
			Type:             r.Type,
			ExpirationDate:   domain.DateOf(r.ExpirationDate),
			Note:             r.Note,
			DisambiguationID: r.DisambiguationID,
		})
	}
	return products, nil
}

func (a *PostgresAdapter) LoadRecipes(ctx context.Context) ([]domain.Recipe, error) {
	var records []recipeRecord
	if err := a.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query recipes: %w", err)
	}

	recipes := make([]domain.Recipe, 0, len(records))
	for _, r := range records {
		recipe := domain.Recipe{Name: r.Name, Instructions: r.Instructions}
		if err := json.Unmarshal(r.Ingredients, &recipe.Ingredients); err != nil {
			return nil, fmt.Errorf("decode ingredients of %s: %w", r.Name, err)
		}
		recipes = append(recipes, recipe)
	}
	return recipes, nil
}

func (a *PostgresAdapter) SaveProducts(ctx context.Context, products []domain.Product) error {
	records := make([]productRecord, 0, len(products))
	for _, p := range products {
		records = append(records, productRecord{
			Handle:           p.Handle,
			ProductID:        p.ID,
			BaseName:         p.BaseName,
			DisplayName:      p.DisplayName,
			Type:             p.Type,
			ExpirationDate:   domain.DateOf(p.ExpirationDate),
			Note:             p.Note,
			DisambiguationID: p.DisambiguationID,
		})
	}

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&productRecord{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.CreateInBatches(records, 100).Error
	})
	if err != nil {
		return fmt.Errorf("save products: %w", err)
	}
	return nil
}

func (a *PostgresAdapter) SaveRecipes(ctx context.Context, recipes []domain.Recipe) error {
	records := make([]recipeRecord, 0, len(recipes))
	for _, r := range recipes {
		raw, err := json.Marshal(r.Ingredients)
		if err != nil {
			return fmt.Errorf("encode ingredients of %s: %w", r.Name, err)
		}
		records = append(records, recipeRecord{
			NameKey:      r.Key(),
			Name:         r.Name,
			Ingredients:  datatypes.JSON(raw),
			Instructions: r.Instructions,
		})
	}

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&recipeRecord{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.Create(&records).Error
	})
	if err != nil {
		return fmt.Errorf("save recipes: %w", err)
	}
	return nil
}
