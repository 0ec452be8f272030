// Package dispatch implements the inbound dispatch engine of spec
// §4.G: the full parse → version check → lookup → fetch → validate →
// invoke → serialize → store → reply pipeline run for every userspace
// message addressed to this service.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/intersect-sdk/intersect-go/pkg/capability"
	"github.com/intersect-sdk/intersect-go/pkg/protocol"
	"github.com/intersect-sdk/intersect-go/pkg/version"
)

// DataStore is the external object-store collaborator dispatch calls
// when a message's data_handler is MINIO, per spec §4.B/§4.G point 4/9.
// pkg/objectstore provides the MinIO-backed implementation.
type DataStore interface {
	Fetch(ctx context.Context, reference string) ([]byte, error)
	Store(ctx context.Context, payload []byte) (reference string, err error)
}

// Logger is the minimal structured-logging seam dispatch needs,
// satisfied by internal/telemetry.Logger; kept narrow here so this
// package never imports the concrete logging implementation.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// ReplyPublisher sends a fully-formed userspace reply to a topic; the
// caller (pkg/service) supplies this bound to its channel.Manager and
// its own reply-topic computation so dispatch stays broker-agnostic.
type ReplyPublisher func(ctx context.Context, topic string, msg *protocol.UserspaceMessage) error

// Config controls the non-structural knobs of the dispatch engine.
type Config struct {
	Source            string // this service's hierarchy topic string, stamped as every reply's source
	SDKVersion        string
	ValidateHierarchy func(string) error
}

// Engine runs the inbound dispatch pipeline against a single
// capability's operation table. A service with multiple capabilities
// runs one Engine per capability; pkg/service keys them by capability
// name, the CapabilityName prefix of operation_id.
type Engine struct {
	cap       *capability.Capability
	cfg       Config
	store     DataStore
	log       Logger
	validator map[string]*capability.CompiledValidator
	publish   ReplyPublisher
}

// New builds a dispatch engine bound to cap's operation table,
// compiling each operation's request schema up front so a malformed
// schema fails at construction (spec §4.F), not on first request.
func New(cap *capability.Capability, cfg Config, store DataStore, log Logger, publish ReplyPublisher) (*Engine, error) {
	doc, err := capability.BuildDocument(cap)
	if err != nil {
		return nil, err
	}

	validators := make(map[string]*capability.CompiledValidator, len(cap.Operations))
	for name, op := range cap.Operations {
		opSchema := doc.Operations[name]
		v, err := capability.Compile(opSchema.RequestSchema, op.StrictRequestValidation)
		if err != nil {
			return nil, err
		}
		validators[name] = v
	}

	return &Engine{cap: cap, cfg: cfg, store: store, log: log, validator: validators, publish: publish}, nil
}

// Handle runs the full pipeline of spec §4.G for one inbound
// userspace message already parsed off the wire. replyTopic is the
// source's per-service reply topic, already resolved by the caller
// via pkg/identity.
func (e *Engine) Handle(ctx context.Context, msg *protocol.UserspaceMessage, replyTopic string) {
	if !msg.Headers.DataHandler.Valid() {
		e.log.Infof("dispatch: unknown data_handler on %s from %s", msg.MessageID, msg.Headers.Source)
		e.reply(ctx, replyTopic, msg, nil, &protocol.ErrorRecord{Code: protocol.ErrVersionIncompatible, Message: "unknown data_handler"})
		return
	}

	ok, err := version.Compatible(msg.Headers.SDKVersion, e.cfg.SDKVersion)
	if err != nil || !ok {
		e.log.Infof("dispatch: version incompatible for operation %s from %s: theirs=%s ours=%s", msg.OperationID, msg.Headers.Source, msg.Headers.SDKVersion, e.cfg.SDKVersion)
		e.reply(ctx, replyTopic, msg, nil, &protocol.ErrorRecord{Code: protocol.ErrVersionIncompatible, Message: "incompatible sdk_version"})
		return
	}

	if verr := msg.Validate(e.cfg.ValidateHierarchy); verr != nil {
		e.log.Infof("dispatch: envelope validation failed for %s: %v", msg.MessageID, verr)
		e.reply(ctx, replyTopic, msg, nil, &protocol.ErrorRecord{Code: protocol.ErrRequestValidationFailed, Message: verr.Error()})
		return
	}

	op, ok := e.cap.Operations[methodNameOf(msg.OperationID)]
	if !ok {
		e.log.Infof("dispatch: unknown operation %s requested by %s", msg.OperationID, msg.Headers.Source)
		e.reply(ctx, replyTopic, msg, nil, &protocol.ErrorRecord{Code: protocol.ErrUnknownOperation, Message: fmt.Sprintf("unknown operation %q", msg.OperationID)})
		return
	}

	payload := msg.Payload
	if msg.Headers.DataHandler == protocol.DataHandlerMinio {
		fetched, err := e.store.Fetch(ctx, string(msg.Payload))
		if err != nil {
			e.log.Errorf("dispatch: data fetch failed for %s: %v", msg.MessageID, err)
			e.reply(ctx, replyTopic, msg, nil, &protocol.ErrorRecord{Code: protocol.ErrDataFetchFailed, Message: err.Error()})
			return
		}
		payload = fetched
	}

	validator := e.validator[methodNameOf(msg.OperationID)]
	if _, verr := validator.Validate(payload); verr != nil {
		e.log.Infof("dispatch: request validation failed for %s: %v", msg.OperationID, verr)
		e.reply(ctx, replyTopic, msg, nil, &protocol.ErrorRecord{Code: protocol.ErrRequestValidationFailed, Message: verr.Error()})
		return
	}

	reqPtr := reflect.New(op.RequestType)
	if err := json.Unmarshal(payload, reqPtr.Interface()); err != nil {
		e.log.Infof("dispatch: request decode failed for %s: %v", msg.OperationID, err)
		e.reply(ctx, replyTopic, msg, nil, &protocol.ErrorRecord{Code: protocol.ErrRequestValidationFailed, Message: err.Error()})
		return
	}

	result, herr := e.invoke(op, reqPtr.Elem().Interface())
	if herr != nil {
		e.log.Warnf("dispatch: handler error for %s: %v", msg.OperationID, herr)
		e.reply(ctx, replyTopic, msg, nil, &protocol.ErrorRecord{Code: protocol.ErrHandlerError, Message: herr.Error()})
		return
	}

	if op.ResponseType == nil {
		return // void operation, no reply
	}

	respBytes, err := marshalResponse(result)
	if err != nil {
		e.log.Errorf("dispatch: response serialization failed for %s: %v", msg.OperationID, err)
		e.reply(ctx, replyTopic, msg, nil, &protocol.ErrorRecord{Code: protocol.ErrResponseSerializationFailed, Message: err.Error()})
		return
	}

	respDataHandler := op.ResponseDataHandler
	if respDataHandler == capability.DataHandlerMinio {
		ref, err := e.store.Store(ctx, respBytes)
		if err != nil {
			e.log.Errorf("dispatch: data store failed for %s: %v", msg.OperationID, err)
			e.reply(ctx, replyTopic, msg, nil, &protocol.ErrorRecord{Code: protocol.ErrDataStoreFailed, Message: err.Error()})
			return
		}
		respBytes = []byte(ref)
	}

	e.reply(ctx, replyTopic, msg, respBytes, nil)
}

// invoke recovers a panicking handler into a HANDLER_ERROR, mirroring
// "any raised error is caught" from spec §4.G point 7 for languages
// where a handler might throw rather than return an error.
func (e *Engine) invoke(op capability.OperationDescriptor, decoded interface{}) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
		}
	}()
	return op.Handler(decoded)
}

func (e *Engine) reply(ctx context.Context, topic string, req *protocol.UserspaceMessage, payload []byte, errRec *protocol.ErrorRecord) {
	if e.publish == nil {
		return
	}
	var reply *protocol.UserspaceMessage
	if errRec != nil {
		reply = req.NewErrorReply(e.cfg.Source, e.cfg.SDKVersion, errRec)
	} else {
		reply = req.NewReply(e.cfg.Source, req.ContentType, payload, e.cfg.SDKVersion, false)
	}
	if err := e.publish(ctx, topic, reply); err != nil {
		e.log.Errorf("dispatch: failed to publish reply %s: %v", reply.MessageID, err)
	}
}

// methodNameOf strips the "CapabilityName." prefix spec §3's OperationId
// grammar puts on every operation_id, leaving the bare method name
// capability.Builder.Operation registers under. Routing to the right
// Engine on a multi-capability service already consumed the prefix
// (pkg/service.capabilityNameOf); this is the symmetric operation on
// the remainder.
func methodNameOf(operationID string) string {
	if i := strings.IndexByte(operationID, '.'); i >= 0 {
		return operationID[i+1:]
	}
	return operationID
}

func marshalResponse(v interface{}) ([]byte, error) {
	if b, ok := v.([]byte); ok {
		return b, nil
	}
	return json.Marshal(v)
}
