package cognito

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"

	"github.com/jaekwang-park/todo-sync/internal/middleware"
)

// Sentinel errors for Cognito token checks.
var (
	ErrNotAuthorized    = errors.New("not authorized")
	ErrUserNotFound     = errors.New("user not found")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrTooManyRequests  = errors.New("too many requests")
)

// mapAWSError converts AWS SDK errors to sentinel errors. Rejected tokens
// additionally match middleware.ErrUnauthenticated; throttling and transport
// failures do not.
func mapAWSError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("cognito: %w", err)
	}

	switch apiErr.ErrorCode() {
	case "NotAuthorizedException":
		return fmt.Errorf("%s: %w: %w", apiErr.ErrorMessage(), ErrNotAuthorized, middleware.ErrUnauthenticated)
	case "UserNotFoundException":
		return fmt.Errorf("%s: %w: %w", apiErr.ErrorMessage(), ErrUserNotFound, middleware.ErrUnauthenticated)
	case "InvalidParameterException":
		return fmt.Errorf("%s: %w: %w", apiErr.ErrorMessage(), ErrInvalidParameter, middleware.ErrUnauthenticated)
	case "TooManyRequestsException", "LimitExceededException":
		return fmt.Errorf("%s: %w", apiErr.ErrorMessage(), ErrTooManyRequests)
	default:
		return fmt.Errorf("cognito %s: %w", apiErr.ErrorCode(), err)
	}
}
