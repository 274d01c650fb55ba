package utils

import (
	"context"

	"github.com/floradesk/flora_backend/appctx"
)

var (
	ContextKeyOrganizationId = appctx.ContextKeyOrganizationId
	ContextKeyUserId         = appctx.ContextKeyUserId
	ContextKeyUserName       = appctx.ContextKeyUserName
	ContextKeyTradingPointId = appctx.ContextKeyTradingPointId
	ContextKeyCorrelationId  = appctx.ContextKeyCorrelationId
)

func GetOrganizationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyOrganizationId)
}

func GetUserIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserId)
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserName)
}

func GetUserNameFromContextOrEmpty(ctx context.Context) string {
	name, _ := appctx.GetString(ctx, ContextKeyUserName)
	return name
}

func GetTradingPointIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyTradingPointId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetOrganizationIdInContext(ctx context.Context, organizationId string) context.Context {
	return appctx.Set(ctx, ContextKeyOrganizationId, organizationId)
}

func SetUserIdInContext(ctx context.Context, userId string) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetUserNameInContext(ctx context.Context, userName string) context.Context {
	return appctx.Set(ctx, ContextKeyUserName, userName)
}

func SetTradingPointIdInContext(ctx context.Context, tradingPointId string) context.Context {
	return appctx.Set(ctx, ContextKeyTradingPointId, tradingPointId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}
