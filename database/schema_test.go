package database_test

import (
	"context"
	"testing"

	"github.com/fabfab/nexo/database"
)

func TestEnsureGuidelineSchemaRejectsInvalidDimension(t *testing.T) {
	err := database.EnsureGuidelineSchema(context.Background(), nil, 0)
	if err == nil {
		t.Fatal("expected error when dimension is not positive")
	}
}

func TestEnsureCareSchemaRequiresPool(t *testing.T) {
	if err := database.EnsureCareSchema(context.Background(), nil); err == nil {
		t.Fatal("expected error when pool is nil")
	}
}
