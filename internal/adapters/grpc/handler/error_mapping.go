package handler

import (
	"context"
	"errors"

	"github.com/ogurasousui/timesheet-sync/internal/core/blobstore"
	"github.com/ogurasousui/timesheet-sync/internal/core/table"
	"github.com/ogurasousui/timesheet-sync/internal/core/timesheet"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func toStatusError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, timesheet.ErrInvalidID),
		errors.Is(err, timesheet.ErrInvalidName),
		errors.Is(err, timesheet.ErrInvalidHourlyRate),
		errors.Is(err, timesheet.ErrInvalidTaskName),
		errors.Is(err, timesheet.ErrInvalidStatus),
		errors.Is(err, timesheet.ErrInvalidDateRange),
		errors.Is(err, timesheet.ErrInvalidTimeRange),
		errors.Is(err, timesheet.ErrInvalidTable),
		errors.Is(err, timesheet.ErrAmbiguousName):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, timesheet.ErrEmployeeNotFound),
		errors.Is(err, timesheet.ErrTaskTypeNotFound),
		errors.Is(err, timesheet.ErrTaskNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, timesheet.ErrAlreadyActive),
		errors.Is(err, timesheet.ErrAlreadyCompleted),
		errors.Is(err, timesheet.ErrActiveTaskGuard):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, timesheet.ErrUnavailable), errors.Is(err, blobstore.ErrTransport):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, table.ErrWriteFailed), errors.Is(err, blobstore.ErrConflict):
		return status.Error(codes.Aborted, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
