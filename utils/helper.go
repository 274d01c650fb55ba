package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/floradesk/flora_backend/config"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var validate = validator.New()

// ValidateStruct runs validator tags on a request struct before it enters the
// engine. Returns the raw validator error so callers can map field errors.
func ValidateStruct(input interface{}) error {
	return validate.Struct(input)
}

func ProcessValidationErrors(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}

	errorResponse := make(map[string]string)
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func DereferencePtr[T any](ptr *T) T {
	var zero T
	if ptr == nil {
		return zero
	}
	return *ptr
}

func UniqueSlice[T comparable](values []T) []T {
	seen := make(map[T]struct{}, len(values))
	result := make([]T, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

// SafeDiv returns numerator/denominator, or zero when the denominator is zero.
// Division results keep 4 decimal places to match the decimal(20,4) columns.
func SafeDiv(numerator, denominator decimal.Decimal) decimal.Decimal {
	if denominator.IsZero() {
		return decimal.Zero
	}
	return numerator.DivRound(denominator, 4)
}

// ObtainRedisLock serializes an operation across instances via redislock.
// The returned release func is a no-op when redis is not configured (tests).
func ObtainRedisLock(ctx context.Context, logger *logrus.Logger, moduleName string, functionName string, lockType string, key string) (func(), error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}, nil
	}

	lockKey := fmt.Sprintf("%s:%s", lockType, key)
	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		config.LogError(logger, moduleName, functionName, "could not obtain lock", lockKey, err)
		return nil, errors.New("could not obtain lock: " + lockKey)
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "error obtaining lock", lockKey, err)
		return nil, err
	}
	return func() { _ = lock.Release(ctx) }, nil
}
