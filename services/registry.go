package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/caio-sobreiro/dicomarchive/dicom"
	"github.com/caio-sobreiro/dicomarchive/interfaces"
	"github.com/caio-sobreiro/dicomarchive/types"
)

// Registry routes incoming DIMSE requests to the handler registered for
// their command field.
//
//	registry := services.NewRegistry()
//	registry.RegisterHandler(types.CEchoRQ, services.NewEchoService())
//	registry.RegisterHandler(types.CStoreRQ, services.NewStoreService(stager, pipeline))
//	registry.RegisterHandler(types.CFindRQ, services.NewFindService(provider))
type Registry struct {
	mu       sync.RWMutex
	handlers map[uint16]interfaces.ServiceHandler
	logger   *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger overrides the registry's logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		handlers: make(map[uint16]interfaces.ServiceHandler),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterHandler registers handler for commandField, replacing any handler
// registered before.
func (r *Registry) RegisterHandler(commandField uint16, handler interfaces.ServiceHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[commandField] = handler
}

// UnregisterHandler removes the handler for commandField.
func (r *Registry) UnregisterHandler(commandField uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, commandField)
}

func (r *Registry) lookup(ctx context.Context, msg *types.Message) (interfaces.ServiceHandler, error) {
	r.logger.DebugContext(ctx, "Routing DIMSE message",
		"command_field", fmt.Sprintf("0x%04x", msg.CommandField),
		"message_id", msg.MessageID)

	r.mu.RLock()
	handler, ok := r.handlers[msg.CommandField]
	r.mu.RUnlock()
	if !ok {
		r.logger.WarnContext(ctx, "No handler registered for DIMSE command",
			"command_field", fmt.Sprintf("0x%04x", msg.CommandField))
		return nil, fmt.Errorf("unsupported DIMSE command: 0x%04x", msg.CommandField)
	}
	return handler, nil
}

// HandleDIMSE routes a single-response request.
func (r *Registry) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta interfaces.MessageContext) (*types.Message, *dicom.Dataset, error) {
	handler, err := r.lookup(ctx, msg)
	if err != nil {
		return nil, nil, err
	}
	return handler.HandleDIMSE(ctx, msg, data, meta)
}

// HandleDIMSEStreaming routes a request whose responses go through
// responder. Handlers that do not stream have their single response sent
// on their behalf.
func (r *Registry) HandleDIMSEStreaming(ctx context.Context, msg *types.Message, data []byte, meta interfaces.MessageContext, responder interfaces.ResponseSender) error {
	handler, err := r.lookup(ctx, msg)
	if err != nil {
		return err
	}

	if streamingHandler, ok := handler.(interfaces.StreamingServiceHandler); ok {
		return streamingHandler.HandleDIMSEStreaming(ctx, msg, data, meta, responder)
	}

	responseMsg, responseData, err := handler.HandleDIMSE(ctx, msg, data, meta)
	if err != nil {
		return err
	}
	return responder.SendResponse(responseMsg, responseData, meta.TransferSyntaxUID)
}

// HasHandler reports whether a handler is registered for commandField.
func (r *Registry) HasHandler(commandField uint16) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[commandField]
	return ok
}

// RegisteredCommands returns the command fields that have a handler.
func (r *Registry) RegisteredCommands() []uint16 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	commands := make([]uint16, 0, len(r.handlers))
	for cmd := range r.handlers {
		commands = append(commands, cmd)
	}
	return commands
}

// CreateErrorResponse builds a dataset-less response to req carrying status.
func CreateErrorResponse(req *types.Message, status uint16) *types.Message {
	return &types.Message{
		CommandField:              types.ResponseCommandFor(req.CommandField),
		MessageIDBeingRespondedTo: req.MessageID,
		AffectedSOPClassUID:       req.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    req.AffectedSOPInstanceUID,
		CommandDataSetType:        types.NoDataSet,
		Status:                    status,
	}
}
