// Package identity implements INTERSECT's canonical hierarchy naming:
// organization.facility.system[.subsystem].service. A HierarchyName both
// identifies a service (dotted form) and derives the topics it owns
// (slash form), so every other component that needs to address a peer
// goes through this package first.
package identity

import (
	"fmt"
	"regexp"
	"strings"
)

var labelPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// InvalidIdentity is returned by Parse when a hierarchy string fails
// label validation or does not have four or five segments.
type InvalidIdentity struct {
	Input  string
	Reason string
}

func (e *InvalidIdentity) Error() string {
	return fmt.Sprintf("invalid hierarchy name %q: %s", e.Input, e.Reason)
}

// HierarchyName is the five-label address of an INTERSECT service.
// Subsystem is optional; when absent it renders as "-" in topic form.
type HierarchyName struct {
	Organization string
	Facility     string
	System       string
	Subsystem    string // empty when not present
	Service      string
}

// Parse validates and decomposes a dotted hierarchy string
// (org.facility.system[.subsystem].service) into a HierarchyName.
func Parse(name string) (HierarchyName, error) {
	labels := strings.Split(name, ".")
	if len(labels) != 4 && len(labels) != 5 {
		return HierarchyName{}, &InvalidIdentity{Input: name, Reason: "must have 4 or 5 dot-separated labels"}
	}

	for _, label := range labels {
		if !labelPattern.MatchString(label) {
			return HierarchyName{}, &InvalidIdentity{Input: name, Reason: fmt.Sprintf("label %q does not match ^[a-z0-9][a-z0-9-]*$", label)}
		}
	}

	h := HierarchyName{
		Organization: labels[0],
		Facility:     labels[1],
	}
	if len(labels) == 5 {
		h.System = labels[2]
		h.Subsystem = labels[3]
		h.Service = labels[4]
	} else {
		h.System = labels[2]
		h.Service = labels[3]
	}
	return h, nil
}

// String renders the dotted identity form, omitting the subsystem label
// when it is empty.
func (h HierarchyName) String() string {
	if h.Subsystem == "" {
		return strings.Join([]string{h.Organization, h.Facility, h.System, h.Service}, ".")
	}
	return strings.Join([]string{h.Organization, h.Facility, h.System, h.Subsystem, h.Service}, ".")
}

// ToTopic renders the slash-separated topic-derivation form. An absent
// subsystem is rendered as "-" so the segment count stays fixed at five,
// matching spec §4.A.
func (h HierarchyName) ToTopic() string {
	subsystem := h.Subsystem
	if subsystem == "" {
		subsystem = "-"
	}
	return strings.Join([]string{h.Organization, h.Facility, h.System, subsystem, h.Service}, "/")
}

// FromTopic parses the slash-separated topic-derivation form back into a
// HierarchyName, normalizing a "-" subsystem segment to empty.
func FromTopic(topic string) (HierarchyName, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 {
		return HierarchyName{}, &InvalidIdentity{Input: topic, Reason: "topic form must have 5 slash-separated segments"}
	}
	subsystem := parts[3]
	if subsystem == "-" {
		subsystem = ""
	}
	h := HierarchyName{
		Organization: parts[0],
		Facility:     parts[1],
		System:       parts[2],
		Subsystem:    subsystem,
		Service:      parts[4],
	}
	for _, label := range []string{h.Organization, h.Facility, h.System, h.Service} {
		if !labelPattern.MatchString(label) {
			return HierarchyName{}, &InvalidIdentity{Input: topic, Reason: fmt.Sprintf("label %q does not match ^[a-z0-9][a-z0-9-]*$", label)}
		}
	}
	if h.Subsystem != "" && !labelPattern.MatchString(h.Subsystem) {
		return HierarchyName{}, &InvalidIdentity{Input: topic, Reason: fmt.Sprintf("label %q does not match ^[a-z0-9][a-z0-9-]*$", h.Subsystem)}
	}
	return h, nil
}

// Equal reports whether two hierarchy names denote the same service.
func (h HierarchyName) Equal(other HierarchyName) bool {
	return h.Organization == other.Organization &&
		h.Facility == other.Facility &&
		h.System == other.System &&
		h.Subsystem == other.Subsystem &&
		h.Service == other.Service
}

// InboxTopic returns this service's userspace inbox topic.
func (h HierarchyName) InboxTopic() string { return h.ToTopic() + "/userspace" }

// ReplyTopic returns this service's reply topic.
func (h HierarchyName) ReplyTopic() string { return h.ToTopic() + "/reply" }

// LifecycleTopic returns this service's lifecycle control topic.
func (h HierarchyName) LifecycleTopic() string { return h.ToTopic() + "/lifecycle" }

// EventTopic returns the topic a named event of a named capability is
// published on.
func (h HierarchyName) EventTopic(capabilityName, eventName string) string {
	return h.ToTopic() + "/events/" + capabilityName + "/" + eventName
}
