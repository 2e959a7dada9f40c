package storage

import (
	"encoding/binary"
	"fmt"
	"io"
	"reflect"
)

// SQLType is the on-disk column type tag used in a record's header.
type SQLType uint32

const (
	// Null marks a column whose value is SQL NULL.
	Null SQLType = 0

	// Byte is a single-byte integer, used for small values such as a
	// freshly allocated page number.
	Byte SQLType = 1

	// Integer is a 4-byte big-endian integer.
	Integer SQLType = 4

	// Text is a variable-length string. The actual on-disk type code is
	// computed per-value as 2*len(s)+13.
	Text SQLType = 28
)

// SQLTypeFromString maps a SQL column type name to its storage type.
func SQLTypeFromString(t string) SQLType {
	switch t {
	case "text":
		return Text
	case "int", "integer":
		return Integer
	case "byte":
		return Byte
	}
	panic("storage: unexpected SQL string type " + t)
}

// Field is a single column value within a record.
type Field struct {
	Type SQLType
	Data interface{}
	Len  int
}

// Record is a table-leaf payload: an ordered set of column values keyed by
// row id.
type Record struct {
	Fields []*Field
	Key    uint32
}

// NewRecord creates a database record from a set of fields.
func NewRecord(key uint32, fields []*Field) Record {
	return Record{
		Key:    key,
		Fields: fields,
	}
}

// payload encodes the record header (1-byte length + per-column 1-byte
// type codes) and column data, without the outer varint32 framing.
func (r Record) payload() ([]byte, error) {
	header := make([]byte, 1, len(r.Fields)+1)

	for _, f := range r.Fields {
		if f.Data == nil || f.Type == Null {
			header = append(header, 0)
			continue
		}

		switch f.Type {
		case Byte:
			header = append(header, 1)
		case Integer:
			header = append(header, 4)
		case Text:
			s := f.Data.(string)
			code := 2*len(s) + 13
			if code > 0xFF {
				return nil, fmt.Errorf("storage: text value too long to encode: %d bytes", len(s))
			}
			header = append(header, byte(code))
		default:
			return nil, fmt.Errorf("storage: unknown sql type %d", f.Type)
		}
	}
	header[0] = byte(len(header))

	var data []byte
	for _, f := range r.Fields {
		if f.Data == nil || f.Type == Null {
			continue
		}

		switch v := f.Data.(type) {
		case byte:
			data = append(data, v)
		case int8:
			data = append(data, byte(v))
		case int:
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], uint32(v))
			data = append(data, b[:]...)
		case string:
			data = append(data, []byte(v)...)
		default:
			return nil, fmt.Errorf("storage: unsupported field value type: %v", reflect.TypeOf(f.Data))
		}
	}

	return append(header, data...), nil
}

// Write serializes the record as a table-leaf cell: varint32 payload size,
// varint32 key, payload.
func (r Record) Write(w io.Writer) error {
	payload, err := r.payload()
	if err != nil {
		return err
	}
	if err := WriteVarint32(w, uint32(len(payload))); err != nil {
		return err
	}
	if err := WriteVarint32(w, r.Key); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ToBytes serializes the record to its encoded table-leaf cell bytes.
func (r Record) ToBytes() ([]byte, error) {
	payload, err := r.payload()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 2*Varint32Size+len(payload))
	buf, err = AppendVarint32(buf, uint32(len(payload)))
	if err != nil {
		return nil, err
	}
	buf, err = AppendVarint32(buf, r.Key)
	if err != nil {
		return nil, err
	}
	return append(buf, payload...), nil
}

// NewMasterTableRecord builds a schema table row.
func NewMasterTableRecord(key uint32, typeName string, name string, tableName string, rootPage int, sqlText string) Record {
	return NewRecord(key, []*Field{
		{Type: Text, Data: typeName},
		{Type: Text, Data: name},
		{Type: Text, Data: tableName},
		{Type: Integer, Data: rootPage},
		{Type: Text, Data: sqlText},
	})
}

// ReadRecord decodes a table-leaf cell from the front of data.
func ReadRecord(data []byte) (*Record, error) {
	payloadLen, err := Varint32(data)
	if err != nil {
		return nil, err
	}
	data = data[Varint32Size:]

	key, err := Varint32(data)
	if err != nil {
		return nil, err
	}
	data = data[Varint32Size:]

	if uint32(len(data)) < payloadLen {
		return nil, io.ErrUnexpectedEOF
	}
	payload := data[:payloadLen]

	headerLen := int(payload[0])
	typeCodes := payload[1:headerLen]
	body := payload[headerLen:]

	fields := make([]*Field, 0, len(typeCodes))
	for _, code := range typeCodes {
		var sqlType SQLType
		numBytes := 0

		switch {
		case code == 0:
			sqlType = Null
		case code == 1:
			sqlType = Byte
			numBytes = 1
		case code == 4:
			sqlType = Integer
			numBytes = 4
		case code >= 13 && code%2 == 1:
			sqlType = Text
			numBytes = int(code-13) / 2
		default:
			return nil, fmt.Errorf("storage: unrecognized column type code %d", code)
		}

		fields = append(fields, &Field{Type: sqlType, Len: numBytes})
	}

	offset := 0
	for _, f := range fields {
		switch f.Type {
		case Null:
			continue
		case Byte:
			f.Data = body[offset]
		case Integer:
			f.Data = int(binary.BigEndian.Uint32(body[offset : offset+4]))
		case Text:
			f.Data = string(body[offset : offset+f.Len])
		}
		offset += f.Len
	}

	return &Record{Key: key, Fields: fields}, nil
}
