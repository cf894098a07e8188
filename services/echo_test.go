package services

import (
	"context"
	"testing"

	"github.com/caio-sobreiro/dicomarchive/types"
)

func TestEchoService_HandleDIMSE(t *testing.T) {
	service := NewEchoService()

	for _, id := range []uint16{1, 42} {
		msg := &types.Message{
			CommandField:        types.CEchoRQ,
			MessageID:           id,
			AffectedSOPClassUID: types.VerificationSOPClass,
			CommandDataSetType:  types.NoDataSet,
		}

		respMsg, respData, err := service.HandleDIMSE(context.Background(), msg, nil, testMeta())
		if err != nil {
			t.Fatalf("HandleDIMSE() error = %v", err)
		}
		if respMsg.CommandField != types.CEchoRSP {
			t.Errorf("CommandField = 0x%04x, want 0x%04x", respMsg.CommandField, types.CEchoRSP)
		}
		if respMsg.Status != types.StatusSuccess {
			t.Errorf("Status = 0x%04x, want success", respMsg.Status)
		}
		if respMsg.MessageIDBeingRespondedTo != id {
			t.Errorf("MessageIDBeingRespondedTo = %d, want %d", respMsg.MessageIDBeingRespondedTo, id)
		}
		if respMsg.AffectedSOPClassUID != types.VerificationSOPClass {
			t.Errorf("AffectedSOPClassUID = %s, want %s", respMsg.AffectedSOPClassUID, types.VerificationSOPClass)
		}
		if respMsg.CommandDataSetType != types.NoDataSet {
			t.Errorf("CommandDataSetType = 0x%04x, want 0x0101", respMsg.CommandDataSetType)
		}
		if respData != nil {
			t.Error("Expected nil response data for C-ECHO")
		}
	}
}

func TestEchoService_HealthCheck(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewEchoService().HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}
}
