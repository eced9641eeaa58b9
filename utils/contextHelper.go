package utils

import (
	"context"

	"bitbucket.org/milpaydata/lesaudit_backend/appctx"
)

var (
	ContextKeyToken         = appctx.ContextKeyToken
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyTier          = appctx.ContextKeyTier
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId

	ContextKeyIsStaff       = appctx.ContextKeyIsStaff
	ContextKeySkipUserScope = appctx.ContextKeySkipUserScope
)

func GetTokenFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyToken)
}

func GetUserIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserId)
}

func GetTierFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyTier)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.Set(ctx, ContextKeyToken, token)
}

func SetUserIdInContext(ctx context.Context, userId string) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetTierInContext(ctx context.Context, tier string) context.Context {
	return appctx.Set(ctx, ContextKeyTier, tier)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetIsStaffFromContext(ctx context.Context) (bool, bool) {
	return appctx.GetBool(ctx, ContextKeyIsStaff)
}

func SetIsStaffInContext(ctx context.Context, isStaff bool) context.Context {
	return appctx.Set(ctx, ContextKeyIsStaff, isStaff)
}

func GetSkipUserScopeFromContext(ctx context.Context) (bool, bool) {
	return appctx.GetBool(ctx, ContextKeySkipUserScope)
}

func SetSkipUserScopeInContext(ctx context.Context, skip bool) context.Context {
	return appctx.Set(ctx, ContextKeySkipUserScope, skip)
}
