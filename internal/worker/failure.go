package worker

import (
	"errors"
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"

	apperrors "github.com/estately/priceuq/internal/pkg/errors"
)

// permanent reports whether retrying err cannot succeed
func permanent(err error) bool {
	return apperrors.IsInvalidConfig(err) ||
		apperrors.IsSchemaMismatch(err) ||
		apperrors.IsNumericInstability(err) ||
		apperrors.IsNotFitted(err) ||
		apperrors.IsNotFound(err) ||
		apperrors.IsValidation(err) ||
		apperrors.IsConflict(err)
}

// taskError prepares a handler error for asynq. Permanent failures skip the
// remaining retries.
func taskError(err error) error {
	if err == nil {
		return nil
	}
	if permanent(err) && !errors.Is(err, asynq.SkipRetry) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

// captureFailure reports a failed task to Sentry
func captureFailure(task *asynq.Task, err error) {
	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("task_type", task.Type())
		scope.SetContext("task", map[string]interface{}{
			"payload_bytes": len(task.Payload()),
		})
		if ae := apperrors.GetAppError(err); ae != nil {
			scope.SetTag("error_code", ae.Code)
		}
		hub.CaptureException(err)
	})
}
