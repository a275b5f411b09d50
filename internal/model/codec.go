package model

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// DecodeErrorKind classifies why Decode failed.
type DecodeErrorKind int

const (
	// Malformed means the input isn't a valid KIND\tBASE64 record, or the
	// base64/JSON body could not be parsed at all.
	Malformed DecodeErrorKind = iota
	// UnknownKind means the tag isn't one of the closed set of message kinds.
	UnknownKind
	// SchemaMismatch means the body parsed as JSON but is missing a field
	// required by its declared kind.
	SchemaMismatch
)

func (k DecodeErrorKind) String() string {
	switch k {
	case Malformed:
		return "Malformed"
	case UnknownKind:
		return "UnknownKind"
	case SchemaMismatch:
		return "SchemaMismatch"
	default:
		return "Unknown"
	}
}

// DecodeError reports a failed Decode. Encoding a well-typed value never
// fails; only Decode returns this type.
type DecodeError struct {
	Kind DecodeErrorKind
	Msg  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: %s: %s", e.Kind, e.Msg)
}

const (
	kindIndicator        = "indicator"
	kindSighting         = "sighting"
	kindSnapshotRequest  = "snapshot_request"
	kindSnapshotEnvelope = "snapshot_envelope"
	kindSubscription     = "subscription"
	kindUnsubscription   = "unsubscription"
)

// Encode renders a Message as a single self-describing text record:
// "<kind>\t<base64(json body)>". Encoding a well-typed value never fails.
func Encode(msg Message) ([]byte, error) {
	kind, body, err := encodeBody(msg)
	if err != nil {
		return nil, err
	}
	enc := base64.StdEncoding.EncodeToString(body)
	return []byte(kind + "\t" + enc), nil
}

func encodeBody(msg Message) (kind string, body []byte, err error) {
	switch v := msg.(type) {
	case Indicator:
		kind = kindIndicator
		body, err = json.Marshal(v)
	case Sighting:
		kind = kindSighting
		body, err = json.Marshal(v)
	case SnapshotRequest:
		kind = kindSnapshotRequest
		body, err = json.Marshal(v)
	case SnapshotEnvelope:
		kind = kindSnapshotEnvelope
		body, err = marshalEnvelope(v)
	case Subscription:
		kind = kindSubscription
		body, err = json.Marshal(v)
	case Unsubscription:
		kind = kindUnsubscription
		body, err = json.Marshal(v)
	default:
		return "", nil, fmt.Errorf("model: unencodable message type %T", msg)
	}
	return kind, body, err
}

// envelopeWire is the wire shape for SnapshotEnvelope: the payload is
// itself a nested kind+base64 record so Decode can recover its concrete
// type without a type registry lookup at the JSON layer.
type envelopeWire struct {
	ID            string `json:"id"`
	PayloadKind   string `json:"payload_kind"`
	PayloadBase64 string `json:"payload_base64"`
}

func marshalEnvelope(v SnapshotEnvelope) ([]byte, error) {
	pkind, pbody, err := encodeBody(v.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot payload: %w", err)
	}
	return json.Marshal(envelopeWire{
		ID:            v.ID,
		PayloadKind:   pkind,
		PayloadBase64: base64.StdEncoding.EncodeToString(pbody),
	})
}

// Decode parses a record produced by Encode back into a Message.
func Decode(data []byte) (Message, error) {
	tab := bytes.IndexByte(data, '\t')
	if tab < 0 {
		return nil, &DecodeError{Kind: Malformed, Msg: "missing kind separator"}
	}
	kind := string(data[:tab])
	encBody := data[tab+1:]

	body, err := base64.StdEncoding.DecodeString(string(encBody))
	if err != nil {
		return nil, &DecodeError{Kind: Malformed, Msg: "invalid base64 body: " + err.Error()}
	}

	switch kind {
	case kindIndicator:
		return decodeIndicator(body)
	case kindSighting:
		return decodeSighting(body)
	case kindSnapshotRequest:
		return decodeSnapshotRequest(body)
	case kindSnapshotEnvelope:
		return decodeSnapshotEnvelope(body)
	case kindSubscription:
		return decodeSubscription(body)
	case kindUnsubscription:
		return decodeUnsubscription(body)
	default:
		return nil, &DecodeError{Kind: UnknownKind, Msg: kind}
	}
}

func decodeIndicator(body []byte) (Message, error) {
	var v Indicator
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, &DecodeError{Kind: Malformed, Msg: err.Error()}
	}
	if v.ID == "" || v.Pattern == "" {
		return nil, &DecodeError{Kind: SchemaMismatch, Msg: "indicator requires id and pattern"}
	}
	return v, nil
}

func decodeSighting(body []byte) (Message, error) {
	var v Sighting
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, &DecodeError{Kind: Malformed, Msg: err.Error()}
	}
	if v.RefID == "" {
		return nil, &DecodeError{Kind: SchemaMismatch, Msg: "sighting requires ref_id"}
	}
	return v, nil
}

func decodeSnapshotRequest(body []byte) (Message, error) {
	var v SnapshotRequest
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, &DecodeError{Kind: Malformed, Msg: err.Error()}
	}
	if v.Topic == "" || v.ID == "" {
		return nil, &DecodeError{Kind: SchemaMismatch, Msg: "snapshot_request requires topic and id"}
	}
	return v, nil
}

func decodeSnapshotEnvelope(body []byte) (Message, error) {
	var w envelopeWire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, &DecodeError{Kind: Malformed, Msg: err.Error()}
	}
	if w.ID == "" || w.PayloadKind == "" {
		return nil, &DecodeError{Kind: SchemaMismatch, Msg: "snapshot_envelope requires id and payload"}
	}
	pbody, err := base64.StdEncoding.DecodeString(w.PayloadBase64)
	if err != nil {
		return nil, &DecodeError{Kind: Malformed, Msg: "invalid payload base64: " + err.Error()}
	}
	var payload Message
	switch w.PayloadKind {
	case kindIndicator:
		payload, err = decodeIndicator(pbody)
	case kindSighting:
		payload, err = decodeSighting(pbody)
	default:
		return nil, &DecodeError{Kind: UnknownKind, Msg: w.PayloadKind}
	}
	if err != nil {
		return nil, err
	}
	return SnapshotEnvelope{ID: w.ID, Payload: payload}, nil
}

func decodeSubscription(body []byte) (Message, error) {
	var v Subscription
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, &DecodeError{Kind: Malformed, Msg: err.Error()}
	}
	if v.Topic == "" {
		return nil, &DecodeError{Kind: SchemaMismatch, Msg: "subscription requires topic"}
	}
	return v, nil
}

func decodeUnsubscription(body []byte) (Message, error) {
	var v Unsubscription
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, &DecodeError{Kind: Malformed, Msg: err.Error()}
	}
	if v.Topic == "" {
		return nil, &DecodeError{Kind: SchemaMismatch, Msg: "unsubscription requires topic"}
	}
	return v, nil
}
