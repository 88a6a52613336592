package monitor

import (
	"errors"
	"fmt"

	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"
)

// ErrBadEvent indicates a decoded struct is not an event.
var ErrBadEvent = errors.New("bad event")

// Field names of the encoded struct.
const (
	fieldTick   = "tick"
	fieldSource = "source"
	fieldKind   = "kind"
	fieldData   = "data"
	fieldAddr   = "addr"
	fieldErr    = "err"
)

// ToStruct converts the event to a google.protobuf.Struct so that any
// protobuf consumer can read it without a schema.
func (e *Event) ToStruct() *structpb.Struct {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldTick: numberValue(float64(e.Tick)),
		fieldKind: stringValue(string(e.Kind)),
		fieldData: numberValue(float64(e.Data)),
	}}
	if e.Source != "" {
		s.Fields[fieldSource] = stringValue(e.Source)
	}
	if e.Kind == KindCmdExec {
		s.Fields[fieldAddr] = numberValue(float64(e.Addr))
	}
	if e.Err != "" {
		s.Fields[fieldErr] = stringValue(e.Err)
	}
	return s
}

// EventFromStruct is the reverse of ToStruct.
func EventFromStruct(s *structpb.Struct) (*Event, error) {
	kind := s.Fields[fieldKind].GetStringValue()
	if kind == "" {
		return nil, fmt.Errorf("%w: missing kind", ErrBadEvent)
	}
	return &Event{
		Tick:   uint64(s.Fields[fieldTick].GetNumberValue()),
		Source: s.Fields[fieldSource].GetStringValue(),
		Kind:   Kind(kind),
		Data:   uint16(s.Fields[fieldData].GetNumberValue()),
		Addr:   uint8(s.Fields[fieldAddr].GetNumberValue()),
		Err:    s.Fields[fieldErr].GetStringValue(),
	}, nil
}

// Encode serializes the event.
func Encode(e *Event) ([]byte, error) {
	return proto.Marshal(e.ToStruct())
}

// Decode deserializes an event.
func Decode(pkt []byte) (*Event, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(pkt, &s); err != nil {
		return nil, err
	}
	return EventFromStruct(&s)
}

func numberValue(v float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: v}}
}

func stringValue(v string) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: v}}
}
