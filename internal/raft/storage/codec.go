package storage

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"raftio/internal/raft"
)

// Protobuf wire format field numbers for a serialized LogEntry. The layout must stay stable
// across versions: values written by an older binary have to unmarshal in a newer one.
const (
	fieldIndex   = 1
	fieldTerm    = 2
	fieldType    = 3
	fieldCommand = 4
)

// marshalEntry encodes a LogEntry into the protobuf wire format.
func marshalEntry(entry *raft.LogEntry) []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, fieldIndex, protowire.VarintType)
	buf = protowire.AppendVarint(buf, entry.Index)
	buf = protowire.AppendTag(buf, fieldTerm, protowire.VarintType)
	buf = protowire.AppendVarint(buf, entry.Term)
	buf = protowire.AppendTag(buf, fieldType, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(entry.Type))
	buf = protowire.AppendTag(buf, fieldCommand, protowire.BytesType)
	buf = protowire.AppendBytes(buf, entry.Command)
	return buf
}

// unmarshalEntry decodes a LogEntry from the protobuf wire format. Unknown fields are skipped so
// the format can grow.
func unmarshalEntry(data []byte) (*raft.LogEntry, error) {
	entry := &raft.LogEntry{}

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("failed to decode log entry tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldIndex:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("failed to decode log entry index: %w", protowire.ParseError(n))
			}
			entry.Index = v
			data = data[n:]
		case fieldTerm:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("failed to decode log entry term: %w", protowire.ParseError(n))
			}
			entry.Term = v
			data = data[n:]
		case fieldType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("failed to decode log entry type: %w", protowire.ParseError(n))
			}
			entry.Type = raft.LogEntryType(v)
			data = data[n:]
		case fieldCommand:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("failed to decode log entry command: %w", protowire.ParseError(n))
			}
			entry.Command = append([]byte(nil), v...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("failed to skip unknown log entry field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	return entry, nil
}
