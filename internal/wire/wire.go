// Package wire encodes status updates and checkpoint records in the
// protobuf wire format, framed as uvarint length-delimited messages.
//
// The encoding is deterministic: fields are emitted in ascending field
// number order, so replaying a log and re-serialising the resulting
// state reproduces the original bytes. Generated bindings are not
// checked in; the messages are small and the low-level protowire API
// keeps the format stable.
package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/heronworks/heron/pkg/types"
)

var (
	// ErrTruncated indicates a message ended inside a field.
	ErrTruncated = errors.New("wire: truncated message")

	// ErrBadUUID indicates a uuid field that is not exactly 16 bytes.
	ErrBadUUID = errors.New("wire: uuid must be 16 bytes")
)

// RecordType tags a checkpoint record.
type RecordType int32

const (
	RecordUpdate RecordType = 0 // full status update payload
	RecordAck    RecordType = 1 // acknowledgement, uuid only
)

func (t RecordType) String() string {
	switch t {
	case RecordUpdate:
		return "UPDATE"
	case RecordAck:
		return "ACK"
	default:
		return fmt.Sprintf("RecordType(%d)", int32(t))
	}
}

// Record is one entry of a stream's checkpoint log: either the full
// update, or the 16-byte UUID of an acknowledged update.
type Record struct {
	Type   RecordType
	Update types.StatusUpdate // set when Type == RecordUpdate
	UUID   uuid.UUID          // set when Type == RecordAck
}

// StatusUpdate field numbers.
const (
	fieldFrameworkID = 1
	fieldTaskID      = 2
	fieldState       = 3
	fieldMessage     = 4
	fieldData        = 5
	fieldTimestamp   = 6
	fieldUUID        = 7
)

// Record field numbers.
const (
	fieldRecordType   = 1
	fieldRecordUpdate = 2
	fieldRecordUUID   = 3
)

// AppendUpdate appends the wire encoding of u to b.
func AppendUpdate(b []byte, u types.StatusUpdate) []byte {
	if u.FrameworkID != "" {
		b = protowire.AppendTag(b, fieldFrameworkID, protowire.BytesType)
		b = protowire.AppendString(b, string(u.FrameworkID))
	}
	if u.TaskID != "" {
		b = protowire.AppendTag(b, fieldTaskID, protowire.BytesType)
		b = protowire.AppendString(b, string(u.TaskID))
	}
	if u.State != 0 {
		b = protowire.AppendTag(b, fieldState, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(u.State))
	}
	if u.Message != "" {
		b = protowire.AppendTag(b, fieldMessage, protowire.BytesType)
		b = protowire.AppendString(b, u.Message)
	}
	if len(u.Data) > 0 {
		b = protowire.AppendTag(b, fieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, u.Data)
	}
	if u.Timestamp != 0 {
		b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(u.Timestamp))
	}
	b = protowire.AppendTag(b, fieldUUID, protowire.BytesType)
	b = protowire.AppendBytes(b, u.UUID[:])
	return b
}

// UnmarshalUpdate decodes a StatusUpdate from b. Unknown fields are
// skipped for forward compatibility.
func UnmarshalUpdate(b []byte) (types.StatusUpdate, error) {
	var u types.StatusUpdate
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return u, ErrTruncated
		}
		b = b[n:]

		switch num {
		case fieldFrameworkID:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return u, ErrTruncated
			}
			u.FrameworkID = types.FrameworkID(v)
			b = b[n:]
		case fieldTaskID:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return u, ErrTruncated
			}
			u.TaskID = types.TaskID(v)
			b = b[n:]
		case fieldState:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return u, ErrTruncated
			}
			u.State = types.TaskState(v)
			b = b[n:]
		case fieldMessage:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return u, ErrTruncated
			}
			u.Message = string(v)
			b = b[n:]
		case fieldData:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return u, ErrTruncated
			}
			u.Data = append([]byte(nil), v...)
			b = b[n:]
		case fieldTimestamp:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return u, ErrTruncated
			}
			u.Timestamp = int64(v)
			b = b[n:]
		case fieldUUID:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return u, ErrTruncated
			}
			id, err := uuid.FromBytes(v)
			if err != nil {
				return u, ErrBadUUID
			}
			u.UUID = id
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return u, ErrTruncated
			}
			b = b[n:]
		}
	}
	return u, nil
}

// MarshalRecord returns the wire encoding of a checkpoint record.
// The type tag is always written explicitly.
func MarshalRecord(r Record) []byte {
	b := protowire.AppendTag(nil, fieldRecordType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Type))
	switch r.Type {
	case RecordUpdate:
		b = protowire.AppendTag(b, fieldRecordUpdate, protowire.BytesType)
		b = protowire.AppendBytes(b, AppendUpdate(nil, r.Update))
	case RecordAck:
		b = protowire.AppendTag(b, fieldRecordUUID, protowire.BytesType)
		b = protowire.AppendBytes(b, r.UUID[:])
	}
	return b
}

// UnmarshalRecord decodes a checkpoint record from b.
func UnmarshalRecord(b []byte) (Record, error) {
	var r Record
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, ErrTruncated
		}
		b = b[n:]

		switch num {
		case fieldRecordType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, ErrTruncated
			}
			r.Type = RecordType(v)
			b = b[n:]
		case fieldRecordUpdate:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, ErrTruncated
			}
			u, err := UnmarshalUpdate(v)
			if err != nil {
				return r, err
			}
			r.Update = u
			b = b[n:]
		case fieldRecordUUID:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, ErrTruncated
			}
			id, err := uuid.FromBytes(v)
			if err != nil {
				return r, ErrBadUUID
			}
			r.UUID = id
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return r, ErrTruncated
			}
			b = b[n:]
		}
	}
	return r, nil
}

// AppendDelimited appends msg to b prefixed with its uvarint length.
func AppendDelimited(b, msg []byte) []byte {
	b = protowire.AppendVarint(b, uint64(len(msg)))
	return append(b, msg...)
}

// ReadDelimited reads one length-delimited message from r. A clean EOF
// at a message boundary is returned as io.EOF; an EOF inside a message
// is io.ErrUnexpectedEOF.
func ReadDelimited(r *bufio.Reader) ([]byte, error) {
	size, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	msg := make([]byte, size)
	if _, err := io.ReadFull(r, msg); err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return msg, nil
}

func readUvarint(r *bufio.Reader) (uint64, error) {
	var v uint64
	for shift := uint(0); shift < 64; shift += 7 {
		c, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && shift > 0 {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		v |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("wire: uvarint overflows 64 bits")
}
