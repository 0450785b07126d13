package service

import (
	"errors"

	"gorm.io/gorm"

	"taskcal/internal/apperr"
)

// storeErr converts repository errors into application errors. Missing rows
// become NotFound; everything else stays opaque to callers.
func storeErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.New(apperr.NotFound, what+" not found")
	}
	return apperr.Wrap(apperr.Unknown, err, what+" storage failed")
}

func invalid(err error) error {
	return apperr.New(apperr.Validation, err.Error())
}
