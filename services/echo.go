// Package services implements the DIMSE services of the archive: C-ECHO
// verification, C-STORE into the ingestion pipeline and C-FIND over query
// sessions.
package services

import (
	"context"
	"log/slog"

	"github.com/caio-sobreiro/dicomarchive/dicom"
	"github.com/caio-sobreiro/dicomarchive/interfaces"
	"github.com/caio-sobreiro/dicomarchive/types"
)

// EchoService handles C-ECHO verification requests.
type EchoService struct {
	logger *slog.Logger
}

// NewEchoService creates a new C-ECHO service instance.
func NewEchoService() *EchoService {
	return &EchoService{logger: slog.Default()}
}

// HandleDIMSE answers every C-ECHO-RQ with success.
func (s *EchoService) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta interfaces.MessageContext) (*types.Message, *dicom.Dataset, error) {
	s.logger.DebugContext(ctx, "C-ECHO request",
		"message_id", msg.MessageID,
		"calling_aet", meta.CallingAETitle)

	return NewCEchoResponse(msg, types.StatusSuccess), nil, nil
}

// HealthCheck always succeeds; the service has no backend.
func (s *EchoService) HealthCheck(ctx context.Context) error {
	return nil
}
