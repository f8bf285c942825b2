package rpc

import (
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/heronworks/heron/internal/wire"
	"github.com/heronworks/heron/pkg/types"
)

// CodecName is the gRPC content-subtype under which the wire codec is
// registered. Clients select it per call; servers resolve it from the
// request header.
const CodecName = "heron-wire"

func init() {
	encoding.RegisterCodec(codec{})
}

// message is implemented by every RPC payload in this package.
type message interface {
	marshal() []byte
	unmarshal(b []byte) error
}

// codec marshals this package's messages for gRPC.
type codec struct{}

func (codec) Name() string { return CodecName }

func (codec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(message)
	if !ok {
		return nil, fmt.Errorf("rpc: cannot marshal %T", v)
	}
	return m.marshal(), nil
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(message)
	if !ok {
		return fmt.Errorf("rpc: cannot unmarshal into %T", v)
	}
	return m.unmarshal(data)
}

// UpdateRequest carries one status update.
type UpdateRequest struct {
	Update types.StatusUpdate
}

func (r *UpdateRequest) marshal() []byte {
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	return protowire.AppendBytes(b, wire.AppendUpdate(nil, r.Update))
}

func (r *UpdateRequest) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return wire.ErrTruncated
		}
		b = b[n:]
		if num == 1 {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return wire.ErrTruncated
			}
			u, err := wire.UnmarshalUpdate(v)
			if err != nil {
				return err
			}
			r.Update = u
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return wire.ErrTruncated
		}
		b = b[n:]
	}
	return nil
}

// UpdateResponse is the empty reply to SendUpdate.
type UpdateResponse struct{}

func (r *UpdateResponse) marshal() []byte          { return nil }
func (r *UpdateResponse) unmarshal(b []byte) error { return nil }

// AckRequest carries the framework's acknowledgement of one update.
type AckRequest struct {
	FrameworkID types.FrameworkID
	TaskID      types.TaskID
	UUID        uuid.UUID
}

func (r *AckRequest) marshal() []byte {
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendString(b, string(r.FrameworkID))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, string(r.TaskID))
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, r.UUID[:])
	return b
}

func (r *AckRequest) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return wire.ErrTruncated
		}
		b = b[n:]

		switch num {
		case 1:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return wire.ErrTruncated
			}
			r.FrameworkID = types.FrameworkID(v)
			b = b[n:]
		case 2:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return wire.ErrTruncated
			}
			r.TaskID = types.TaskID(v)
			b = b[n:]
		case 3:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return wire.ErrTruncated
			}
			id, err := uuid.FromBytes(v)
			if err != nil {
				return wire.ErrBadUUID
			}
			r.UUID = id
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return wire.ErrTruncated
			}
			b = b[n:]
		}
	}
	return nil
}

// AckResponse is the empty reply to Acknowledge.
type AckResponse struct{}

func (r *AckResponse) marshal() []byte          { return nil }
func (r *AckResponse) unmarshal(b []byte) error { return nil }
