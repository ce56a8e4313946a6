package mgmt

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mulltray/mulltray/internal/models"
)

// ServiceName is the daemon's management gRPC service.
const ServiceName = "mullvad_daemon.management_interface.ManagementService"

// Full method names on the management service.
const (
	MethodConnectTunnel    = "/" + ServiceName + "/ConnectTunnel"
	MethodDisconnectTunnel = "/" + ServiceName + "/DisconnectTunnel"
	MethodGetTunnelState   = "/" + ServiceName + "/GetTunnelState"
	MethodEventsListen     = "/" + ServiceName + "/EventsListen"
)

// Tunnel state payload fields.
const (
	fieldState    = "state"
	fieldEndpoint = "endpoint"
	fieldLocation = "location"
	fieldSince    = "since"
	fieldReason   = "reason"
)

// Event kinds. A daemon event carries exactly one of them as its only key.
const (
	EventTunnelState     = "tunnel_state"
	EventSettings        = "settings"
	EventRelayList       = "relay_list"
	EventVersionInfo     = "version_info"
	EventDevice          = "device"
	EventRemoveDevice    = "remove_device"
	EventNewAccessMethod = "new_access_method"
)

// ignoredEvents are well-formed events that say nothing about the tunnel.
var ignoredEvents = map[string]bool{
	EventSettings:        true,
	EventRelayList:       true,
	EventVersionInfo:     true,
	EventDevice:          true,
	EventRemoveDevice:    true,
	EventNewAccessMethod: true,
}

// EncodeTunnelState converts a state into its wire payload.
func EncodeTunnelState(s models.TunnelState) *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldState: structpb.NewStringValue(string(s.Phase)),
	}
	if s.Endpoint != "" {
		fields[fieldEndpoint] = structpb.NewStringValue(s.Endpoint)
	}
	if s.Location != "" {
		fields[fieldLocation] = structpb.NewStringValue(s.Location)
	}
	if !s.Since.IsZero() {
		fields[fieldSince] = structpb.NewStringValue(s.Since.UTC().Format(time.RFC3339Nano))
	}
	if s.Reason != "" {
		fields[fieldReason] = structpb.NewStringValue(s.Reason)
	}
	return &structpb.Struct{Fields: fields}
}

// EncodeEvent wraps payload as a daemon event of the given kind.
func EncodeEvent(kind string, payload *structpb.Struct) *structpb.Struct {
	if payload == nil {
		payload = &structpb.Struct{}
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		kind: structpb.NewStructValue(payload),
	}}
}

// DecodeTunnelState parses a tunnel state payload. Any deviation from the
// expected shape is reported as ErrMalformed.
func DecodeTunnelState(msg *structpb.Struct) (models.TunnelState, error) {
	if msg == nil {
		return models.TunnelState{}, fmt.Errorf("%w: empty tunnel state", ErrMalformed)
	}

	var s models.TunnelState
	phase, err := stringField(msg, fieldState)
	if err != nil {
		return s, err
	}
	s.Phase = models.TunnelPhase(phase)
	if s.Endpoint, err = stringField(msg, fieldEndpoint); err != nil {
		return s, err
	}
	if s.Location, err = stringField(msg, fieldLocation); err != nil {
		return s, err
	}
	if s.Reason, err = stringField(msg, fieldReason); err != nil {
		return s, err
	}
	since, err := stringField(msg, fieldSince)
	if err != nil {
		return s, err
	}
	if since != "" {
		s.Since, err = time.Parse(time.RFC3339Nano, since)
		if err != nil {
			return s, fmt.Errorf("%w: bad %q: %v", ErrMalformed, fieldSince, err)
		}
	}

	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return s, nil
}

// decodeEvent extracts the tunnel state from a daemon event. ok is false
// for well-formed events of other kinds.
func decodeEvent(msg *structpb.Struct) (state models.TunnelState, ok bool, err error) {
	if msg == nil || len(msg.GetFields()) != 1 {
		return state, false, fmt.Errorf("%w: event must carry exactly one kind", ErrMalformed)
	}
	for kind, v := range msg.GetFields() {
		if ignoredEvents[kind] {
			return state, false, nil
		}
		if kind != EventTunnelState {
			return state, false, fmt.Errorf("%w: unknown event kind %q", ErrMalformed, kind)
		}
		payload := v.GetStructValue()
		if payload == nil {
			return state, false, fmt.Errorf("%w: %s is not an object", ErrMalformed, kind)
		}
		state, err = DecodeTunnelState(payload)
		if err != nil {
			return state, false, err
		}
	}
	return state, true, nil
}

func stringField(msg *structpb.Struct, name string) (string, error) {
	v, ok := msg.GetFields()[name]
	if !ok {
		return "", nil
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: field %q is not a string", ErrMalformed, name)
	}
	return sv.StringValue, nil
}
