package errors

import (
	"go.uber.org/zap"
)

// LogError logs err at error level. APIErrors are logged with their type,
// status and details; anything else is logged as unexpected.
func LogError(logger *zap.Logger, err error, requestID string) {
	if apiErr, ok := AsAPIError(err); ok {
		logger.Error("request error",
			zap.String("error_type", string(apiErr.Type)),
			zap.String("message", apiErr.Message),
			zap.Int("code", apiErr.Code),
			zap.String("request_id", requestID),
			zap.Any("details", apiErr.Details),
			zap.NamedError("cause", apiErr.Unwrap()),
		)
		return
	}
	logger.Error("unexpected error",
		zap.Error(err),
		zap.String("request_id", requestID),
	)
}
