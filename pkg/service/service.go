// Package service wires capability introspection (pkg/capability),
// dispatch (pkg/dispatch), the event emitter (pkg/events), the
// service-to-service bookkeeper (pkg/requests), the broker (pkg/broker)
// and channel manager (pkg/channel), and the lifecycle controller
// (pkg/lifecycle) into the Service role of spec §4.J, adapted from the
// teacher's BaseAgent/AgentFramework startup-connect-run-shutdown
// sequencing in public/agent/base.go and public/agent/framework.go.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/intersect-sdk/intersect-go/internal/config"
	"github.com/intersect-sdk/intersect-go/pkg/broker"
	"github.com/intersect-sdk/intersect-go/pkg/capability"
	"github.com/intersect-sdk/intersect-go/pkg/channel"
	"github.com/intersect-sdk/intersect-go/pkg/dispatch"
	"github.com/intersect-sdk/intersect-go/pkg/events"
	"github.com/intersect-sdk/intersect-go/pkg/identity"
	"github.com/intersect-sdk/intersect-go/pkg/lifecycle"
	"github.com/intersect-sdk/intersect-go/pkg/protocol"
	"github.com/intersect-sdk/intersect-go/pkg/requests"
)

// SDKVersion is this implementation's advertised protocol version,
// checked by peers' version resolvers per spec §4.C.
const SDKVersion = "1.0.0"

// Logger is the structured-logging seam Service needs; satisfied by
// internal/telemetry.Logger.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// DataStore is the external object-store collaborator, satisfied by
// pkg/objectstore.Store. A Service with no data_stores.minio entries
// may pass nil; any operation declaring DataHandlerMinio then fails
// at first use.
type DataStore = dispatch.DataStore

// Capability bundles a built capability descriptor table with the
// Emitter that will be installed on it once the Service is
// constructed, so user code can hold a stable reference before
// startup (spec §9's "cyclic reference" note: the capability gets a
// non-owning back-reference to its Emitter/Bookkeeper, not the other
// way around).
type Capability struct {
	Descriptor *capability.Capability
	Emitter    *events.Emitter // populated by New
}

// Service is one running INTERSECT service: one or more capabilities,
// each behind its own dispatch.Engine, reachable over a single broker
// connection and hierarchy identity.
type Service struct {
	hierarchy identity.HierarchyName
	cfg       *config.Config
	log       Logger
	store     DataStore

	br  broker.Broker
	ch  *channel.Manager
	ctl *lifecycle.Controller

	caps     map[string]*Capability
	engines  map[string]*dispatch.Engine
	emitters map[string]*events.Emitter
	bk       *requests.Bookkeeper
	ticker   *lifecycle.StatusTicker

	mu sync.RWMutex
}

// New constructs a Service from cfg's hierarchy and broker entries,
// building one dispatch.Engine and Emitter per registered capability.
// It does not connect; call Start for that.
func New(cfg *config.Config, log Logger, store DataStore, caps ...*capability.Capability) (*Service, error) {
	if err := cfg.ValidateService(); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}

	h := identity.HierarchyName{
		Organization: cfg.Hierarchy.Organization,
		Facility:     cfg.Hierarchy.Facility,
		System:       cfg.Hierarchy.System,
		Subsystem:    cfg.Hierarchy.Subsystem,
		Service:      cfg.Hierarchy.Service,
	}

	br, err := newConfiguredBroker(cfg)
	if err != nil {
		return nil, err
	}

	s := &Service{
		hierarchy: h,
		cfg:       cfg,
		log:       log,
		store:     store,
		br:        br,
		ch:        channel.New(br),
		ctl:       lifecycle.New(),
		caps:      make(map[string]*Capability),
		engines:   make(map[string]*dispatch.Engine),
		emitters:  make(map[string]*events.Emitter),
	}
	s.bk = requests.New(h.ToTopic(), SDKVersion, publisherFunc(s.ch.Publish))

	for _, c := range caps {
		if err := s.registerCapability(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

type publisherFunc func(ctx context.Context, topic string, payload []byte, headers map[string]string, contentType string) error

func (f publisherFunc) Publish(ctx context.Context, topic string, payload []byte, headers map[string]string, contentType string) error {
	return f(ctx, topic, payload, headers, contentType)
}

func (s *Service) registerCapability(c *capability.Capability) error {
	if _, exists := s.caps[c.Name]; exists {
		return fmt.Errorf("service: capability %q already registered", c.Name)
	}

	emitter := events.New(s.hierarchy.ToTopic(), c, SDKVersion, publisherFunc(s.ch.Publish), s.ctl.IsReady, s.log)

	dcfg := dispatch.Config{
		Source:            s.hierarchy.ToTopic(),
		SDKVersion:        SDKVersion,
		ValidateHierarchy: validateHierarchyString,
	}
	engine, err := dispatch.New(c, dcfg, s.store, s.log, s.replyVia)
	if err != nil {
		return fmt.Errorf("service: capability %q: %w", c.Name, err)
	}

	s.caps[c.Name] = &Capability{Descriptor: c, Emitter: emitter}
	s.engines[c.Name] = engine
	s.emitters[c.Name] = emitter
	return nil
}

// Emitter returns the event emitter bound to capabilityName, for the
// user's operation handlers to call Emit from.
func (s *Service) Emitter(capabilityName string) *events.Emitter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.emitters[capabilityName]
}

// CallService exposes the request bookkeeper's call_service to user
// handlers, addressed by a destination hierarchy's dotted name.
func (s *Service) CallService(ctx context.Context, destination, operationID, contentType string, payload []byte, timeout time.Duration, handler requests.ResponseHandler) (string, error) {
	dest, err := identity.Parse(destination)
	if err != nil {
		return "", err
	}
	return s.bk.CallService(ctx, dest.InboxTopic(), dest.ToTopic(), operationID, contentType, payload, timeout, handler)
}

func validateHierarchyString(topic string) error {
	_, err := identity.FromTopic(topic)
	return err
}

func newConfiguredBroker(cfg *config.Config) (broker.Broker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("service: no brokers configured")
	}
	primary := cfg.Brokers[0]
	if primary.Discovery {
		// Discovery brokers are resolved by the caller before New;
		// pkg/broker.DiscoveryClient performs the HTTP round trip.
		return nil, fmt.Errorf("service: broker discovery must be resolved before constructing a Service")
	}
	return broker.New(primary.Protocol)
}

// Start runs the full NEW→CONNECTING→SUBSCRIBING→READY sequence of
// spec §4.J: connect the broker, publish STARTUP, subscribe to the
// inbox/reply/lifecycle topics, wait for every subscription to
// confirm, then start the status ticker. ready is an optional
// post-startup callback invoked once the service reaches READY.
func (s *Service) Start(ctx context.Context, endpoint string, creds broker.Credentials, ready func()) error {
	if err := s.ctl.Transition(lifecycle.StateConnecting); err != nil {
		return err
	}
	if err := s.br.Connect(ctx, endpoint, creds); err != nil {
		return fmt.Errorf("service: connecting broker: %w", err)
	}

	if err := s.ctl.Transition(lifecycle.StateSubscribing); err != nil {
		return err
	}
	if err := s.publishLifecycle(ctx, protocol.LifecycleStartup, nil); err != nil {
		s.log.Warnf("service: failed to publish STARTUP: %v", err)
	}

	latch := lifecycle.NewMultiFlagLatch("inbox", "reply", "lifecycle")
	if err := s.ch.Register(s.hierarchy.InboxTopic(), channel.RawSerializer{}, s.inboxHandler()); err != nil {
		return fmt.Errorf("service: subscribing inbox: %w", err)
	}
	latch.Raise("inbox")
	if err := s.ch.Register(s.hierarchy.ReplyTopic(), channel.RawSerializer{}, s.replyHandler()); err != nil {
		return fmt.Errorf("service: subscribing reply: %w", err)
	}
	latch.Raise("reply")
	if err := s.ch.Register(s.hierarchy.LifecycleTopic(), channel.RawSerializer{}, s.lifecycleHandler()); err != nil {
		return fmt.Errorf("service: subscribing lifecycle: %w", err)
	}
	latch.Raise("lifecycle")

	if err := latch.Wait(ctx); err != nil {
		return fmt.Errorf("service: waiting for subscriptions: %w", err)
	}

	if err := s.ctl.Transition(lifecycle.StateReady); err != nil {
		return err
	}

	interval := s.cfg.StatusInterval()
	if err := lifecycle.ValidateStatusInterval(interval); err != nil {
		return fmt.Errorf("service: %w", err)
	}
	s.ticker = lifecycle.NewStatusTicker(interval, func() { s.publishStatus(ctx) })
	s.ticker.Start()

	if ready != nil {
		ready()
	}
	return nil
}

// inboxHandler decodes and dispatches a userspace request addressed
// to this service, routing it by operation_id's CapabilityName prefix
// (spec §3's OperationId grammar) to the matching dispatch.Engine.
func (s *Service) inboxHandler() channel.Handler {
	return func(msg broker.Message, _ interface{}) bool {
		var envelope protocol.UserspaceMessage
		if err := envelope.UnmarshalJSON(msg.Payload); err != nil {
			s.log.Infof("service: dropping malformed inbox message: %v", err)
			return true
		}

		capName := capabilityNameOf(envelope.OperationID)
		s.mu.RLock()
		engine := s.engines[capName]
		s.mu.RUnlock()
		if engine == nil {
			s.log.Infof("service: no capability %q registered for operation %q", capName, envelope.OperationID)
			return true
		}

		source, err := identity.FromTopic(envelope.Headers.Source)
		if err != nil {
			s.log.Infof("service: dropping inbox message with unparseable source %q: %v", envelope.Headers.Source, err)
			return true
		}

		engine.Handle(context.Background(), &envelope, source.ReplyTopic())
		return true
	}
}

// replyHandler hands every decoded reply to the request bookkeeper. A
// reply that matches no pending request is dropped; it is not passed
// to user dispatch.
func (s *Service) replyHandler() channel.Handler {
	return func(msg broker.Message, _ interface{}) bool {
		var envelope protocol.UserspaceMessage
		if err := envelope.UnmarshalJSON(msg.Payload); err != nil {
			s.log.Infof("service: dropping malformed reply message: %v", err)
			return true
		}
		s.bk.HandleReply(&envelope)
		return true
	}
}

func (s *Service) lifecycleHandler() channel.Handler {
	return func(msg broker.Message, _ interface{}) bool {
		var lm protocol.LifecycleMessage
		if err := json.Unmarshal(msg.Payload, &lm); err != nil {
			return true
		}
		if lm.Headers.LifecycleType == protocol.LifecycleSchemaRequest {
			s.handleSchemaRequest(context.Background(), &lm)
		}
		return true
	}
}

func (s *Service) handleSchemaRequest(ctx context.Context, req *protocol.LifecycleMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.caps {
		doc, err := capability.BuildDocument(c.Descriptor)
		if err != nil {
			s.log.Errorf("service: rebuilding schema document for %q: %v", c.Descriptor.Name, err)
			continue
		}
		resp, err := protocol.NewLifecycleMessage(s.hierarchy.ToTopic(), req.Headers.Source, SDKVersion, protocol.LifecycleSchemaResponse, doc)
		if err != nil {
			s.log.Errorf("service: building SCHEMA_RESPONSE: %v", err)
			continue
		}
		wire, err := json.Marshal(resp)
		if err != nil {
			s.log.Errorf("service: encoding SCHEMA_RESPONSE: %v", err)
			continue
		}
		if err := s.ch.Publish(ctx, s.hierarchy.LifecycleTopic(), wire, nil, "application/json"); err != nil {
			s.log.Errorf("service: publishing SCHEMA_RESPONSE: %v", err)
		}
	}
}

func (s *Service) publishStatus(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, c := range s.caps {
		if c.Descriptor.Status == nil {
			continue
		}
		result, err := c.Descriptor.Status.Handler()
		if err != nil {
			s.log.Warnf("service: status probe for %q failed: %v", name, err)
			continue
		}
		if err := s.publishLifecycle(ctx, protocol.LifecycleStatus, result); err != nil {
			s.log.Warnf("service: publishing STATUS for %q: %v", name, err)
		}
	}
}

func (s *Service) publishLifecycle(ctx context.Context, lt protocol.LifecycleType, payload interface{}) error {
	msg, err := protocol.NewLifecycleMessage(s.hierarchy.ToTopic(), "", SDKVersion, lt, payload)
	if err != nil {
		return err
	}
	wire, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.ch.Publish(ctx, s.hierarchy.LifecycleTopic(), wire, nil, "application/json")
}

func (s *Service) replyVia(ctx context.Context, topic string, msg *protocol.UserspaceMessage) error {
	wire, err := msg.MarshalJSON()
	if err != nil {
		return err
	}
	return s.ch.Publish(ctx, topic, wire, nil, msg.ContentType)
}

// Stop runs the READY→STOPPING→STOPPED sequence of spec §4.J: stop
// the status ticker, fail outstanding requests, publish SHUTDOWN, and
// close the broker connection.
func (s *Service) Stop(ctx context.Context) error {
	if err := s.ctl.Transition(lifecycle.StateStopping); err != nil {
		return err
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.bk.Shutdown()
	if err := s.publishLifecycle(ctx, protocol.LifecycleShutdown, nil); err != nil {
		s.log.Warnf("service: failed to publish SHUTDOWN: %v", err)
	}

	if err := s.ctl.Transition(lifecycle.StateStopped); err != nil {
		return err
	}
	return s.br.Close()
}

// State returns the service's current lifecycle state.
func (s *Service) State() lifecycle.State { return s.ctl.State() }

// capabilityNameOf extracts the leading "CapabilityName" component of
// an operation_id shaped "CapabilityName.method_name", per spec §3.
func capabilityNameOf(operationID string) string {
	for i := 0; i < len(operationID); i++ {
		if operationID[i] == '.' {
			return operationID[:i]
		}
	}
	return operationID
}
