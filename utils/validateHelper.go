package utils

import (
	"context"

	"github.com/floradesk/flora_backend/config"
)

// check if id exists, using organization_id in WHERE, return RecordNotFound error
func ValidateResourceId[T any](ctx context.Context, organizationId string, id interface{}) error {

	count, err := ResourceCountWhere[T](ctx, organizationId, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}

	return nil
}

// check if ALL ids exist, using organization_id in WHERE, return RecordNotFound error
func ValidateResourcesId[M any, ID comparable](ctx context.Context, organizationId string, ids []ID) error {
	unqIds := UniqueSlice(ids)

	count, err := ResourceCountWhere[M](ctx, organizationId, "id IN ?", unqIds)
	if err != nil {
		return err
	}
	if count != int64(len(unqIds)) {
		return ErrorRecordNotFound
	}

	return nil
}

// count records, using WHERE organization_id = ? AND $condition
// organization_id can be blank for admin queries
func ResourceCountWhere[T any](ctx context.Context, organizationId string, condition string, value ...interface{}) (int64, error) {
	var model T

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&model)
	var count int64
	if organizationId != "" {
		dbCtx = dbCtx.Where("organization_id = ?", organizationId)
	}
	dbCtx = dbCtx.Where(condition, value...)
	if err := dbCtx.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
