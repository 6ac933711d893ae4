package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/aidenhsy/cron-schedules/config"
)

const dateLayout = "2006-01-02"

// BusinessTimezone is where the shops operate. Stalled-order cutoffs and
// ad-hoc date filters are interpreted in this zone.
func BusinessTimezone() *time.Location {
	name := os.Getenv("BUSINESS_TIMEZONE")
	if name == "" {
		name = "Asia/Shanghai"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

// ValidateDateRange parses start/end as YYYY-MM-DD in the business timezone
// and rejects inverted ranges before any store I/O happens.
func ValidateDateRange(startDate, endDate string) (time.Time, time.Time, error) {
	loc := BusinessTimezone()

	start, err := time.ParseInLocation(dateLayout, strings.TrimSpace(startDate), loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start_date %q is not YYYY-MM-DD", ErrorValidation, startDate)
	}
	end, err := time.ParseInLocation(dateLayout, strings.TrimSpace(endDate), loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end_date %q is not YYYY-MM-DD", ErrorValidation, endDate)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start_date %s is after end_date %s", ErrorValidation, startDate, endDate)
	}
	// End of day inclusive.
	end = end.AddDate(0, 0, 1).Add(-time.Second)
	return start, end, nil
}

func ProcessValidationErrors(err error) map[string]string {
	validationErrors := err.(validator.ValidationErrors)

	errorResponse := make(map[string]string)

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

func ConvertToLocalTime(utcTime time.Time, timezone string) time.Time {
	loc, _ := time.LoadLocation(timezone)
	return utcTime.In(loc)
}

// returns slice removing duplicate elements
func UniqueSlice[T comparable](slice []T) []T {
	inResult := make(map[T]bool)
	var result []T
	for _, elm := range slice {
		if _, ok := inResult[elm]; !ok {
			inResult[elm] = true
			result = append(result, elm)
		}
	}
	return result
}

// safely dereference pointer of type T, nil pointer return zero value or optional default
func DereferencePtr[T any](ptr *T, defaults ...T) T {
	var defaultValue T
	if len(defaults) > 0 {
		defaultValue = defaults[0]
	}
	if ptr == nil {
		return defaultValue
	}
	return *ptr
}

// ParseDecimal converts a string to a decimal.Decimal value.
func ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}

	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}

	return dec, nil
}

// ObtainJobLock takes a single-flight redis lock for a background job and
// returns a release func. Lock loss mid-run is tolerated: every job body is
// idempotent, so overlap costs duplicate reads, not corruption.
func ObtainJobLock(ctx context.Context, jobName string, ttl time.Duration, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		// Avoid nil-pointer panics when Redis lock isn't initialized yet.
		config.LogError(logger, moduleName, functionName, "Redis lock not initialized", jobName, errors.New("redis lock is nil"))
		return nil, errors.New("service not ready (redis lock not initialized)")
	}
	lockKey := fmt.Sprintf("job:%s", jobName)
	lock, err := locker.Obtain(ctx, lockKey, ttl, nil)
	if err == redislock.ErrNotObtained {
		return nil, fmt.Errorf("job %s already running elsewhere", jobName)
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining job lock", jobName, err)
		return nil, err
	}
	release := func() {
		_ = lock.Release(context.Background())
	}
	return release, nil
}
