package vector

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// EntityIDProperty holds the source entity id on every document.
const EntityIDProperty = "entityId"

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

func (c Collection) properties() []*models.Property {
	props := []*models.Property{{Name: EntityIDProperty, DataType: []string{"int"}}}
	for _, f := range c.Fields {
		props = append(props, property(f))
	}
	return props
}

func property(f Field) *models.Property {
	switch f.Kind {
	case KindKeyword:
		return &models.Property{Name: f.Name, DataType: []string{"text"}, Tokenization: "field"}
	case KindInt:
		return &models.Property{Name: f.Name, DataType: []string{"int"}}
	case KindNumber:
		return &models.Property{Name: f.Name, DataType: []string{"number"}}
	case KindDate:
		return &models.Property{Name: f.Name, DataType: []string{"date"}}
	default:
		return &models.Property{Name: f.Name, DataType: []string{"text"}}
	}
}

// Class builds the Weaviate class for c. Vectors are supplied by the caller.
func (c Collection) Class(dim int) *models.Class {
	return &models.Class{
		Class:             c.Name,
		Description:       fmt.Sprintf("%s (vector dimension %d)", c.Description, dim),
		Vectorizer:        "none",
		VectorIndexConfig: map[string]interface{}{"distance": "cosine"},
		Properties:        c.properties(),
	}
}

// EnsureCollection creates the class when absent, otherwise adds any properties it lacks.
func EnsureCollection(ctx context.Context, client SchemaClient, c Collection, dim int) error {
	exists, err := client.ClassExists(ctx, c.Name)
	if err != nil {
		return err
	}

	if !exists {
		return client.CreateClass(ctx, c.Class(dim))
	}

	class, err := client.GetClass(ctx, c.Name)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range c.properties() {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, c.Name, p); err != nil {
				return err
			}
		}
	}

	return nil
}
