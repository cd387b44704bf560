package game

import (
	"errors"

	"github.com/whodunit/platform/internal/domain"
)

// asAppError unwraps err into *domain.AppError when possible.
func asAppError(err error, target **domain.AppError) bool {
	return errors.As(err, target)
}
