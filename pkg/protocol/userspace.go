// Package protocol implements INTERSECT's wire message envelopes:
// UserspaceMessage (request/response), EventMessage, and LifecycleMessage,
// together with the header validation spec §4.B requires of every inbound
// envelope. Encoding follows spec §6: JSON with keys messageId,
// operationId, contentType, payload, headers, where payload is a plain
// string for textual content-types and base64 for binary ones.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DataHandler selects whether a message's payload bytes are carried
// inline (MESSAGE) or held in an external object store and referenced
// (MINIO), per spec §4.B.
type DataHandler string

const (
	DataHandlerMessage DataHandler = "MESSAGE"
	DataHandlerMinio    DataHandler = "MINIO"
)

// Valid reports whether d is a recognized data handler. Per spec §4.C,
// an unknown data_handler on an inbound message is always treated as a
// version-incompatible condition regardless of the sender's advertised
// SDK version.
func (d DataHandler) Valid() bool {
	return d == DataHandlerMessage || d == DataHandlerMinio
}

var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Headers carries the routing and correlation metadata of a
// UserspaceMessage, per spec §3.
type Headers struct {
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	SDKVersion  string    `json:"sdk_version"`
	CreatedAt   time.Time `json:"created_at"`
	DataHandler DataHandler `json:"data_handler"`
	HasError    bool      `json:"has_error"`
	CampaignID  string    `json:"campaign_id,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
}

// UserspaceMessage is the request/response envelope routed to a
// service's inbox or reply topic and dispatched to an operation handler.
type UserspaceMessage struct {
	MessageID   string  `json:"message_id"`
	OperationID string  `json:"operation_id"`
	ContentType string  `json:"content_type"`
	Payload     []byte  `json:"-"`
	Headers     Headers `json:"headers"`

	// EncryptionScheme is an optional hook point left on the envelope per
	// spec §9's design notes. The core protocol implements no encryption
	// scheme; a non-empty value is carried opaquely for a future
	// collaborator to interpret.
	EncryptionScheme string `json:"encryption_scheme,omitempty"`
}

// NewUserspaceMessage builds a request envelope addressed from source to
// destination, generating a fresh message_id and stamping CreatedAt in
// UTC, as spec §3 requires.
func NewUserspaceMessage(source, destination, operationID, contentType string, payload []byte, sdkVersion string) *UserspaceMessage {
	return &UserspaceMessage{
		MessageID:   uuid.NewString(),
		OperationID: operationID,
		ContentType: contentType,
		Payload:     payload,
		Headers: Headers{
			Source:      source,
			Destination: destination,
			SDKVersion:  sdkVersion,
			CreatedAt:   time.Now().UTC(),
			DataHandler: DataHandlerMessage,
		},
	}
}

// NewReply builds a response envelope correlated to req via headers'
// request_id, addressed back to req's source.
func (req *UserspaceMessage) NewReply(source, contentType string, payload []byte, sdkVersion string, hasError bool) *UserspaceMessage {
	reqID := req.Headers.RequestID
	if reqID == "" {
		reqID = req.MessageID
	}
	return &UserspaceMessage{
		MessageID:   uuid.NewString(),
		OperationID: req.OperationID,
		ContentType: contentType,
		Payload:     payload,
		Headers: Headers{
			Source:      source,
			Destination: req.Headers.Source,
			SDKVersion:  sdkVersion,
			CreatedAt:   time.Now().UTC(),
			DataHandler: DataHandlerMessage,
			HasError:    hasError,
			CampaignID:  req.Headers.CampaignID,
			RequestID:   reqID,
		},
	}
}

// NewErrorReply builds a reply with has_error=true carrying rec as its
// JSON-encoded payload, per spec §4.B.
func (req *UserspaceMessage) NewErrorReply(source string, sdkVersion string, rec *ErrorRecord) *UserspaceMessage {
	payload, _ := json.Marshal(rec)
	reply := req.NewReply(source, "application/json", payload, sdkVersion, true)
	return reply
}

// isTextual reports whether a MIME content-type should be encoded as a
// plain JSON string rather than base64, per spec §6.
func isTextual(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = contentType
	}
	if strings.HasPrefix(mt, "text/") {
		return true
	}
	switch mt {
	case "application/json", "application/xml", "application/x-yaml", "application/yaml":
		return true
	}
	return false
}

// wireUserspace is the canonical JSON shape of a UserspaceMessage, per
// spec §6: keys messageId, operationId, contentType, payload, headers.
type wireUserspace struct {
	MessageID        string      `json:"messageId"`
	OperationID      string      `json:"operationId"`
	ContentType      string      `json:"contentType"`
	Payload          string      `json:"payload"`
	Headers          wireHeaders `json:"headers"`
	EncryptionScheme string      `json:"encryptionScheme,omitempty"`
}

type wireHeaders struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	SDKVersion  string `json:"sdk_version"`
	CreatedAt   string `json:"created_at"`
	DataHandler string `json:"data_handler"`
	HasError    bool   `json:"has_error"`
	CampaignID  string `json:"campaign_id,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

// MarshalJSON implements the §6 canonical encoding, base64-encoding the
// payload unless the content-type is textual.
func (m *UserspaceMessage) MarshalJSON() ([]byte, error) {
	var payload string
	if isTextual(m.ContentType) {
		payload = string(m.Payload)
	} else {
		payload = base64.StdEncoding.EncodeToString(m.Payload)
	}

	w := wireUserspace{
		MessageID:        m.MessageID,
		OperationID:      m.OperationID,
		ContentType:      m.ContentType,
		Payload:          payload,
		EncryptionScheme: m.EncryptionScheme,
		Headers: wireHeaders{
			Source:      m.Headers.Source,
			Destination: m.Headers.Destination,
			SDKVersion:  m.Headers.SDKVersion,
			CreatedAt:   m.Headers.CreatedAt.UTC().Format(time.RFC3339Nano),
			DataHandler: string(m.Headers.DataHandler),
			HasError:    m.Headers.HasError,
			CampaignID:  m.Headers.CampaignID,
			RequestID:   m.Headers.RequestID,
		},
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the §6 canonical encoding, base64-decoding the
// payload unless the content-type is textual. It does not validate the
// result; call Validate for that.
func (m *UserspaceMessage) UnmarshalJSON(data []byte) error {
	var w wireUserspace
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	var payload []byte
	if isTextual(w.ContentType) {
		payload = []byte(w.Payload)
	} else {
		decoded, err := base64.StdEncoding.DecodeString(w.Payload)
		if err != nil {
			return fmt.Errorf("payload is not valid base64: %w", err)
		}
		payload = decoded
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, w.Headers.CreatedAt)

	m.MessageID = w.MessageID
	m.OperationID = w.OperationID
	m.ContentType = w.ContentType
	m.Payload = payload
	m.EncryptionScheme = w.EncryptionScheme
	m.Headers = Headers{
		Source:      w.Headers.Source,
		Destination: w.Headers.Destination,
		SDKVersion:  w.Headers.SDKVersion,
		CreatedAt:   createdAt,
		DataHandler: DataHandler(w.Headers.DataHandler),
		HasError:    w.Headers.HasError,
		CampaignID:  w.Headers.CampaignID,
		RequestID:   w.Headers.RequestID,
	}
	return nil
}

// Validate checks the invariants spec §3 places on a UserspaceMessage:
// a well-formed UUID message_id, a properly formed three-part sdk_version
// with no pre-release/metadata suffix, a timezone-aware (UTC) created_at,
// and valid source/destination hierarchy strings. It returns a
// *ValidationError listing every violation found, or nil.
func (m *UserspaceMessage) Validate(validateHierarchy func(string) error) error {
	verr := &ValidationError{}

	if _, err := uuid.Parse(m.MessageID); err != nil {
		verr.Add("message_id", "not_a_uuid")
	}
	if m.OperationID == "" {
		verr.Add("operation_id", "required")
	}
	if m.Headers.CreatedAt.IsZero() {
		verr.Add("headers.created_at", "required")
	} else if m.Headers.CreatedAt.Location() != time.UTC {
		verr.Add("headers.created_at", "not_utc")
	}
	if !semverPattern.MatchString(m.Headers.SDKVersion) {
		verr.Add("headers.sdk_version", "malformed_semver")
	}
	if !m.Headers.DataHandler.Valid() {
		verr.Add("headers.data_handler", "unknown_enum_value")
	}
	if validateHierarchy != nil {
		if err := validateHierarchy(m.Headers.Source); err != nil {
			verr.Add("headers.source", "invalid_hierarchy")
		}
		if err := validateHierarchy(m.Headers.Destination); err != nil {
			verr.Add("headers.destination", "invalid_hierarchy")
		}
	}

	if verr.Empty() {
		return nil
	}
	return verr
}
