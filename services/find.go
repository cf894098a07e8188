package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/caio-sobreiro/dicomarchive/dicom"
	archiveerrors "github.com/caio-sobreiro/dicomarchive/errors"
	"github.com/caio-sobreiro/dicomarchive/interfaces"
	"github.com/caio-sobreiro/dicomarchive/types"
)

// FindService handles C-FIND requests. Every match is sent as its own
// pending response, so the handler only works through
// HandleDIMSEStreaming.
type FindService struct {
	provider interfaces.QueryProvider
	logger   *slog.Logger
}

// FindOption configures a FindService.
type FindOption func(*FindService)

// WithFindLogger overrides the service's logger.
func WithFindLogger(logger *slog.Logger) FindOption {
	return func(s *FindService) {
		s.logger = logger
	}
}

// NewFindService returns a C-FIND handler answering from provider.
func NewFindService(provider interfaces.QueryProvider, opts ...FindOption) *FindService {
	s := &FindService{provider: provider, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleDIMSE fails: C-FIND needs a responder for its pending responses.
func (s *FindService) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta interfaces.MessageContext) (*types.Message, *dicom.Dataset, error) {
	return nil, nil, errors.New("C-FIND requires a streaming responder")
}

// HandleDIMSEStreaming runs the query of the identifier in data and sends
// one pending response per match followed by the final status. A cancelled
// ctx ends the stream with a Cancel status.
func (s *FindService) HandleDIMSEStreaming(ctx context.Context, msg *types.Message, data []byte, meta interfaces.MessageContext, responder interfaces.ResponseSender) error {
	ts := meta.TransferSyntaxUID
	if ts == "" {
		ts = msg.TransferSyntaxUID
	}
	log := s.logger.With(
		"message_id", msg.MessageID,
		"calling_aet", meta.CallingAETitle,
		"called_aet", meta.CalledAETitle)

	session, keys, err := s.open(ctx, msg, data, ts, meta)
	if cancelled(err) {
		return responder.SendResponse(NewResponseBuilder(msg).CFindResponse(types.StatusCancel, false), nil, ts)
	}
	if err != nil {
		var de *archiveerrors.DIMSEError
		if !errors.As(err, &de) {
			de = archiveerrors.NewDIMSEError("C-FIND", statusForFindError(err), err.Error())
		}
		log.WarnContext(ctx, "C-FIND failed", "status", fmt.Sprintf("0x%04X", de.Status), "error", err)
		return responder.SendResponse(NewCFindErrorResponse(msg, de.Status, de.Msg), nil, ts)
	}
	defer session.Close()

	pending := uint16(types.StatusPending)
	if session.OptionalKeyNotSupported() {
		pending = types.StatusPendingOptionalKeysNotSupported
	}

	matches := 0
	for {
		more, err := session.HasNext()
		if err == nil && more {
			var match *dicom.Dataset
			match, err = session.Next()
			if err == nil {
				matches++
				resp := NewResponseBuilder(msg).CFindResponse(pending, true)
				if err := responder.SendResponse(resp, match, ts); err != nil {
					return err
				}
				continue
			}
		}
		if cancelled(err) {
			log.InfoContext(ctx, "C-FIND cancelled", "matches", matches)
			return responder.SendResponse(NewResponseBuilder(msg).CFindResponse(types.StatusCancel, false), nil, ts)
		}
		if err != nil {
			log.WarnContext(ctx, "C-FIND failed while streaming", "matches", matches, "error", err)
			return responder.SendResponse(NewCFindErrorResponse(msg, statusForFindError(err), err.Error()), nil, ts)
		}
		break
	}

	log.DebugContext(ctx, "C-FIND complete", "level", keys.GetString(dicom.TagQueryRetrieveLevel), "matches", matches)
	return responder.SendResponse(NewCFindSuccessResponse(msg), nil, ts)
}

func (s *FindService) open(ctx context.Context, msg *types.Message, data []byte, ts string, meta interfaces.MessageContext) (interfaces.QuerySession, *dicom.Dataset, error) {
	if !types.IsFindSOPClass(msg.AffectedSOPClassUID) {
		return nil, nil, archiveerrors.NewDIMSEError("C-FIND", types.StatusSOPClassNotSupported, "SOP class not supported")
	}
	keys, err := dicom.ParseDatasetWithTransferSyntax(data, ts)
	if err != nil {
		return nil, nil, archiveerrors.NewDIMSEError("C-FIND", types.StatusCannotUnderstand, err.Error())
	}
	level, err := types.ParseQueryLevel(keys.GetString(dicom.TagQueryRetrieveLevel))
	if err != nil {
		return nil, nil, archiveerrors.NewDIMSEError("C-FIND", types.StatusIdentifierDoesNotMatch, err.Error())
	}
	if level == types.QueryLevelPatient && msg.AffectedSOPClassUID == types.StudyRootQueryRetrieveInformationModelFind {
		return nil, nil, archiveerrors.NewDIMSEError("C-FIND", types.StatusIdentifierDoesNotMatch, "PATIENT level in study root")
	}

	session, err := s.provider.NewQuery(level, meta.CalledAETitle, false)
	if err != nil {
		return nil, nil, err
	}
	if err := session.Find(ctx, keys); err != nil {
		session.Close()
		return nil, nil, err
	}
	return session, keys, nil
}

func cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func statusForFindError(err error) uint16 {
	switch {
	case errors.Is(err, archiveerrors.ErrUnknownLevel):
		return types.StatusIdentifierDoesNotMatch
	case archiveerrors.IsMalformed(err):
		return types.StatusIdentifierDoesNotMatch
	case archiveerrors.IsResource(err):
		return types.StatusOutOfResources
	}
	return types.StatusCannotUnderstand
}
