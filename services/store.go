package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/caio-sobreiro/dicomarchive/dicom"
	archiveerrors "github.com/caio-sobreiro/dicomarchive/errors"
	"github.com/caio-sobreiro/dicomarchive/ingest"
	"github.com/caio-sobreiro/dicomarchive/interfaces"
	"github.com/caio-sobreiro/dicomarchive/types"
)

// StoreService handles C-STORE requests by filing the received object
// through an Ingester.
type StoreService struct {
	stager   interfaces.Stager
	ingester interfaces.Ingester
	logger   *slog.Logger
}

// StoreOption configures a StoreService.
type StoreOption func(*StoreService)

// WithStoreLogger overrides the service's logger.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *StoreService) {
		s.logger = logger
	}
}

// NewStoreService returns a C-STORE handler. stager places the received
// bytes where ingester can commit them from.
func NewStoreService(stager interfaces.Stager, ingester interfaces.Ingester, opts ...StoreOption) *StoreService {
	s := &StoreService{stager: stager, ingester: ingester, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleDIMSE stores one object and answers with the outcome status.
// Failures are reported in the response; the returned error is reserved
// for conditions the association cannot answer.
func (s *StoreService) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta interfaces.MessageContext) (*types.Message, *dicom.Dataset, error) {
	ts := meta.TransferSyntaxUID
	if ts == "" {
		ts = msg.TransferSyntaxUID
	}
	log := s.logger.With(
		"message_id", msg.MessageID,
		"sop_instance_uid", msg.AffectedSOPInstanceUID,
		"calling_aet", meta.CallingAETitle)

	if !types.IsStorageSOPClass(msg.AffectedSOPClassUID) {
		log.WarnContext(ctx, "Rejected C-STORE of unsupported SOP class", "sop_class_uid", msg.AffectedSOPClassUID)
		return NewCStoreErrorResponse(msg, types.StatusSOPClassNotSupported, "SOP class not supported"), nil, nil
	}
	if !types.IsStorable(ts) {
		log.WarnContext(ctx, "Rejected C-STORE in unsupported transfer syntax", "transfer_syntax", ts)
		return NewCStoreErrorResponse(msg, types.StatusCannotUnderstand, "transfer syntax not supported"), nil, nil
	}

	ds, err := dicom.ParseDatasetWithTransferSyntax(data, ts)
	if err != nil {
		log.WarnContext(ctx, "Failed to parse C-STORE dataset", "error", err)
		return NewCStoreErrorResponse(msg, types.StatusCannotUnderstand, err.Error()), nil, nil
	}
	if uid := ds.GetString(dicom.TagSOPInstanceUID); msg.AffectedSOPInstanceUID != "" && uid != msg.AffectedSOPInstanceUID {
		log.WarnContext(ctx, "C-STORE dataset does not match command", "dataset_sop_instance_uid", uid)
		return NewCStoreErrorResponse(msg, types.StatusIdentifierDoesNotMatch, "SOP instance UID differs from command"), nil, nil
	}

	header := dicom.Part10Header(msg.AffectedSOPClassUID, ds.GetString(dicom.TagSOPInstanceUID), ts)
	tmp, _, err := s.stager.StageTemp(io.MultiReader(bytes.NewReader(header), bytes.NewReader(data)))
	if err != nil {
		log.ErrorContext(ctx, "Failed to stage C-STORE data", "error", err)
		return NewCStoreErrorResponse(msg, statusForStoreError(err), err.Error()), nil, nil
	}

	result, err := s.ingester.Ingest(ctx, ingest.Request{
		Dataset:           ds,
		TempFile:          tmp,
		TransferSyntaxUID: ts,
		CallingAET:        meta.CallingAETitle,
		CalledAET:         meta.CalledAETitle,
	})
	if err != nil || result.Outcome == ingest.DuplicateIgnored {
		if rerr := os.Remove(tmp); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			log.WarnContext(ctx, "Failed to remove temp file", "path", tmp, "error", rerr)
		}
	}
	if err != nil {
		return NewCStoreErrorResponse(msg, statusForStoreError(err), err.Error()), nil, nil
	}

	log.DebugContext(ctx, "C-STORE complete", "outcome", result.Outcome.String())
	return NewCStoreResponse(msg, types.StatusSuccess), nil, nil
}

func statusForStoreError(err error) uint16 {
	switch {
	case archiveerrors.IsDuplicate(err):
		return types.StatusDuplicateSOPInstance
	case archiveerrors.IsMalformed(err):
		return types.StatusCannotUnderstand
	case archiveerrors.IsResource(err):
		return types.StatusOutOfResources
	}
	return types.StatusProcessingFailure
}
