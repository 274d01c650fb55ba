package utils

import (
	"context"

	"github.com/floradesk/flora_backend/config"
)

/* DB fetching */

// fetch model from db
// (organization_id is used in query's WHERE, may return RecordNotFound)
func FetchModel[T any](ctx context.Context, organizationId string, id string, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("organization_id = ?", organizationId)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, "id = ?", id).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}
