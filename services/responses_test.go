package services

import (
	"testing"

	"github.com/caio-sobreiro/dicomarchive/types"
)

func TestResponseBuilder_CEchoResponse(t *testing.T) {
	response := NewCEchoResponse(&types.Message{CommandField: types.CEchoRQ, MessageID: 42}, types.StatusSuccess)

	if response.CommandField != types.CEchoRSP {
		t.Errorf("CommandField = 0x%04x, want 0x%04x", response.CommandField, types.CEchoRSP)
	}
	if response.MessageIDBeingRespondedTo != 42 {
		t.Errorf("MessageIDBeingRespondedTo = %d, want 42", response.MessageIDBeingRespondedTo)
	}
	if response.AffectedSOPClassUID != types.VerificationSOPClass {
		t.Errorf("AffectedSOPClassUID = %s, want Verification SOP Class", response.AffectedSOPClassUID)
	}
}

func TestResponseBuilder_CFindResponse(t *testing.T) {
	request := &types.Message{
		CommandField:        types.CFindRQ,
		MessageID:           10,
		AffectedSOPClassUID: types.StudyRootQueryRetrieveInformationModelFind,
	}

	tests := []struct {
		name        string
		response    *types.Message
		status      uint16
		datasetType uint16
	}{
		{"pending", NewCFindPendingResponse(request), types.StatusPending, types.DataSetPresent},
		{"success", NewCFindSuccessResponse(request), types.StatusSuccess, types.NoDataSet},
		{"error", NewCFindErrorResponse(request, types.StatusIdentifierDoesNotMatch, "bad level"), types.StatusIdentifierDoesNotMatch, types.NoDataSet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.response.CommandField != types.CFindRSP {
				t.Errorf("CommandField = 0x%04x, want 0x%04x", tt.response.CommandField, types.CFindRSP)
			}
			if tt.response.Status != tt.status {
				t.Errorf("Status = 0x%04x, want 0x%04x", tt.response.Status, tt.status)
			}
			if tt.response.CommandDataSetType != tt.datasetType {
				t.Errorf("CommandDataSetType = 0x%04x, want 0x%04x", tt.response.CommandDataSetType, tt.datasetType)
			}
			if tt.response.AffectedSOPClassUID != request.AffectedSOPClassUID {
				t.Errorf("AffectedSOPClassUID not preserved from request")
			}
		})
	}
}

func TestResponseBuilder_CStoreResponse(t *testing.T) {
	request := &types.Message{
		CommandField:           types.CStoreRQ,
		MessageID:              7,
		AffectedSOPClassUID:    types.CTImageStorage,
		AffectedSOPInstanceUID: "1.2.3.4",
	}

	response := NewCStoreResponse(request, types.StatusSuccess)
	if response.CommandField != types.CStoreRSP {
		t.Errorf("CommandField = 0x%04x, want 0x%04x", response.CommandField, types.CStoreRSP)
	}
	if response.AffectedSOPClassUID != types.CTImageStorage {
		t.Errorf("AffectedSOPClassUID = %s, want %s", response.AffectedSOPClassUID, types.CTImageStorage)
	}
	if response.AffectedSOPInstanceUID != "1.2.3.4" {
		t.Errorf("AffectedSOPInstanceUID = %s, want request's instance", response.AffectedSOPInstanceUID)
	}

	custom := NewResponseBuilder(request).CStoreResponse(types.StatusSuccess, "9.9")
	if custom.AffectedSOPInstanceUID != "9.9" {
		t.Errorf("AffectedSOPInstanceUID = %s, want 9.9", custom.AffectedSOPInstanceUID)
	}

	failed := NewCStoreErrorResponse(request, types.StatusOutOfResources, "disk full")
	if failed.Status != types.StatusOutOfResources || failed.ErrorComment != "disk full" {
		t.Errorf("error response = 0x%04x %q", failed.Status, failed.ErrorComment)
	}
}
