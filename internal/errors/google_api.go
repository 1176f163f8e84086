package errors

import (
	"context"
	stderrors "errors"

	"github.com/dl-alexandre/gdfetch/internal/logging"
	"github.com/dl-alexandre/gdfetch/internal/types"
	"github.com/dl-alexandre/gdfetch/internal/utils"
	"google.golang.org/api/googleapi"
)

// ClassifyGoogleAPIError converts a transport or API error into an *utils.AppError
// that still unwraps to err.
func ClassifyGoogleAPIError(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	var appErr *utils.AppError
	if stderrors.As(err, &appErr) {
		return err
	}

	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		code := utils.ErrCodeCancelled
		if stderrors.Is(err, context.DeadlineExceeded) {
			code = utils.ErrCodeTimeout
		}
		return utils.WrapAppError(utils.NewCLIError(code, err.Error()).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("service", service).
			Build(), err)
	}

	var apiErr *googleapi.Error
	if !stderrors.As(err, &apiErr) {
		logger.Error("Non-API error",
			logging.F("error", err.Error()),
			logging.F("traceId", reqCtx.TraceID),
		)
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeNetworkError, err.Error()).
			WithRetryable(true).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("service", service).
			Build(), err)
	}

	var code string
	var retryable bool

	switch apiErr.Code {
	case 400, 409, 416:
		code = utils.ErrCodeInvalidArgument
	case 401:
		code = utils.ErrCodeAuthExpired
	case 403:
		code = utils.ErrCodePermissionDenied
		for _, e := range apiErr.Errors {
			switch e.Reason {
			case "storageQuotaExceeded", "downloadQuotaExceeded":
				code = utils.ErrCodeQuotaExceeded
			case "sharingRateLimitExceeded", "userRateLimitExceeded", "rateLimitExceeded":
				code = utils.ErrCodeRateLimited
				retryable = true
			case "dailyLimitExceeded":
				code = utils.ErrCodeRateLimited
			}
		}
	case 404:
		code = utils.ErrCodeFileNotFound
	case 429:
		code = utils.ErrCodeRateLimited
		retryable = true
	case 500, 502, 503, 504:
		code = utils.ErrCodeNetworkError
		retryable = true
	default:
		code = utils.ErrCodeUnknown
		retryable = apiErr.Code >= 500
	}

	logger.Error("API error classified",
		logging.F("httpStatus", apiErr.Code),
		logging.F("errorCode", code),
		logging.F("retryable", retryable),
		logging.F("message", apiErr.Message),
		logging.F("traceId", reqCtx.TraceID),
		logging.F("service", service),
	)

	builder := utils.NewCLIError(code, apiErr.Message).
		WithHTTPStatus(apiErr.Code).
		WithRetryable(retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		WithContext("service", service)

	if len(apiErr.Errors) > 0 {
		builder.WithDriveReason(apiErr.Errors[0].Reason)
		switch apiErr.Errors[0].Reason {
		case "downloadQuotaExceeded":
			builder.WithContext("suggestedAction", "the file was downloaded too often; retry later or copy it")
		case "cannotDownloadAbusiveFile":
			builder.WithContext("suggestedAction", "the file was flagged by Drive and cannot be downloaded")
		case "appNotAuthorizedToFile", "insufficientFilePermissions":
			builder.WithContext("suggestedAction", "share the file with the service account email")
		}
	}

	switch code {
	case utils.ErrCodeAuthExpired:
		builder.WithContext("suggestedAction", "check the service account key file")
	case utils.ErrCodeFileNotFound:
		if len(reqCtx.InvolvedFileIDs) > 0 {
			builder.WithContext("fileId", reqCtx.InvolvedFileIDs[0])
		}
		builder.WithContext("suggestedAction", "verify the share link and that the file is shared with the service account")
	}

	if apiErr.Code >= 500 && apiErr.Code <= 504 {
		builder.WithContext("serverError", true)
	}

	return utils.WrapAppError(builder.Build(), err)
}
