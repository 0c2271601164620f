package types

// API error codes, grouped by bench domain. The numeric suffix mirrors
// the HTTP status the handler answers with.
const (
	CodeAuthBadRequest   = "AUTH_400"
	CodeAuthUnauthorized = "AUTH_401"

	CodeOperatorBadRequest = "OPERATOR_400"
	CodeOperatorInternal   = "OPERATOR_500"

	CodeImportBadRequest = "IMPORT_400"
	CodeImportRejected   = "IMPORT_422"

	CodeAllocationBadRequest = "ALLOC_400"
	CodeAllocationConflict   = "ALLOC_409"

	CodeBatchNotFound = "BATCH_404"
	CodeBatchConflict = "BATCH_409"
	CodeBatchInternal = "BATCH_500"

	CodeInstanceNotFound = "INSTANCE_404"
	CodeInstanceConflict = "INSTANCE_409"

	CodeChannelInternal = "CHANNEL_500"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
