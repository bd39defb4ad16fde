package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageId is the JSON-RPC 2.0 request identifier: a tagged union of a
// signed integer, a string, or "absent" (used on Notifications, which never carry an id, and on an id=null error Response). Equality is structural: a numeric id and a string id
// holding the same digits are never equal, and two ids with different tags
// never compare equal
type MessageId struct {
	kind idKind
	num  int64
	str  string
}

type idKind uint8

const (
	idKindNone idKind = iota
	idKindNumber
	idKindString
)

// NoID is the zero MessageId, used for Notifications and for the id=null
// Response sent on ParseError.
var NoID = MessageId{kind: idKindNone}

// NumberID builds a MessageId from a signed integer.
func NumberID(n int64) MessageId {
	return MessageId{kind: idKindNumber, num: n}
}

// StringID builds a MessageId from a string.
func StringID(s string) MessageId {
	return MessageId{kind: idKindString, str: s}
}

// IsValid reports whether the id is present (i.e. not NoID/null).
func (m MessageId) IsValid() bool {
	return m.kind != idKindNone
}

// IsNumber reports whether the id holds an integer.
func (m MessageId) IsNumber() bool {
	return m.kind == idKindNumber
}

// IsString reports whether the id holds a string.
func (m MessageId) IsString() bool {
	return m.kind == idKindString
}

// Number returns the numeric value and true if the id is a number.
func (m MessageId) Number() (int64, bool) {
	return m.num, m.kind == idKindNumber
}

// String returns the string value and true if the id is a string.
func (m MessageId) String() (string, bool) {
	return m.str, m.kind == idKindString
}

// Raw returns the id as a plain Go value suitable for further marshaling:
// nil, int64, or string.
func (m MessageId) Raw() any {
	switch m.kind {
	case idKindNumber:
		return m.num
	case idKindString:
		return m.str
	default:
		return nil
	}
}

// Equal implements the structural equality: same
// tag and same value. A number id is never equal to a string id even when
// their textual forms match.
func (m MessageId) Equal(other MessageId) bool {
	if m.kind != other.kind {
		return false
	}
	switch m.kind {
	case idKindNumber:
		return m.num == other.num
	case idKindString:
		return m.str == other.str
	default:
		return true
	}
}

// MarshalJSON preserves the source type: a number id is emitted as a JSON
// number, a string id as a JSON string, and NoID as JSON null. Numeric
// strings are never coerced to integers and vice versa.
func (m MessageId) MarshalJSON() ([]byte, error) {
	switch m.kind {
	case idKindNumber:
		return json.Marshal(m.num)
	case idKindString:
		return json.Marshal(m.str)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a JSON number, string, or null and preserves which
// one it saw.
func (m *MessageId) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = NoID
		return nil
	}
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*m = StringID(asString)
		return nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(data, &asNumber); err == nil {
		n, err := asNumber.Int64()
		if err != nil {
			return fmt.Errorf("protocol: message id %q is not an integer: %w", asNumber, err)
		}
		*m = NumberID(n)
		return nil
	}
	return fmt.Errorf("protocol: message id must be a string, number, or null")
}
