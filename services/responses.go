package services

import (
	"github.com/caio-sobreiro/dicomarchive/types"
)

// ResponseBuilder creates responses to one request. MessageIDBeingRespondedTo
// and AffectedSOPClassUID come from the request.
type ResponseBuilder struct {
	request *types.Message
}

// NewResponseBuilder creates a new response builder for request.
func NewResponseBuilder(request *types.Message) *ResponseBuilder {
	return &ResponseBuilder{request: request}
}

// CEchoResponse creates a C-ECHO-RSP message.
func (b *ResponseBuilder) CEchoResponse(status uint16) *types.Message {
	return &types.Message{
		CommandField:              types.CEchoRSP,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       types.VerificationSOPClass,
		CommandDataSetType:        types.NoDataSet,
		Status:                    status,
	}
}

// CFindResponse creates a C-FIND-RSP message. Pending responses carry a
// match; the final one does not.
func (b *ResponseBuilder) CFindResponse(status uint16, hasDataset bool) *types.Message {
	datasetType := uint16(types.NoDataSet)
	if hasDataset {
		datasetType = types.DataSetPresent
	}

	return &types.Message{
		CommandField:              types.CFindRSP,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       b.request.AffectedSOPClassUID,
		CommandDataSetType:        datasetType,
		Status:                    status,
	}
}

// CStoreResponse creates a C-STORE-RSP message. An empty sopInstanceUID
// means the request's affected instance.
func (b *ResponseBuilder) CStoreResponse(status uint16, sopInstanceUID string) *types.Message {
	if sopInstanceUID == "" {
		sopInstanceUID = b.request.AffectedSOPInstanceUID
	}

	return &types.Message{
		CommandField:              types.CStoreRSP,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       b.request.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    sopInstanceUID,
		CommandDataSetType:        types.NoDataSet,
		Status:                    status,
	}
}

// NewCEchoResponse creates a C-ECHO-RSP message from a request.
func NewCEchoResponse(request *types.Message, status uint16) *types.Message {
	return NewResponseBuilder(request).CEchoResponse(status)
}

// NewCFindPendingResponse creates a pending C-FIND-RSP message (with dataset).
func NewCFindPendingResponse(request *types.Message) *types.Message {
	return NewResponseBuilder(request).CFindResponse(types.StatusPending, true)
}

// NewCFindSuccessResponse creates a final success C-FIND-RSP message (no dataset).
func NewCFindSuccessResponse(request *types.Message) *types.Message {
	return NewResponseBuilder(request).CFindResponse(types.StatusSuccess, false)
}

// NewCFindErrorResponse creates an error C-FIND-RSP message.
func NewCFindErrorResponse(request *types.Message, status uint16, comment string) *types.Message {
	resp := NewResponseBuilder(request).CFindResponse(status, false)
	resp.ErrorComment = comment
	return resp
}

// NewCStoreResponse creates a C-STORE-RSP message.
func NewCStoreResponse(request *types.Message, status uint16) *types.Message {
	return NewResponseBuilder(request).CStoreResponse(status, "")
}

// NewCStoreErrorResponse creates a failed C-STORE-RSP message.
func NewCStoreErrorResponse(request *types.Message, status uint16, comment string) *types.Message {
	resp := NewResponseBuilder(request).CStoreResponse(status, "")
	resp.ErrorComment = comment
	return resp
}
