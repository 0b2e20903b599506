package attributes

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// Canonical renders m as JSON with keys sorted at every level and numbers normalized,
// so that two maps that are Equal render identically.
func Canonical(m *Map) []byte {
	var buf bytes.Buffer
	writeCanonical(&buf, Object(m))
	return buf.Bytes()
}

// Digest returns the hex BLAKE2b-256 of the canonical form of m
func Digest(m *Map) string {
	sum := blake2b.Sum256(Canonical(m))
	return hex.EncodeToString(sum[:])
}

func writeCanonical(buf *bytes.Buffer, v Value) {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		s, _ := json.Marshal(v.str)
		buf.Write(s)
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		buf.WriteString(canonicalNumber(v.num))
	case KindMap:
		keys := v.m.Keys()
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(k)
			buf.Write(key)
			buf.WriteByte(':')
			child, _ := v.m.Get(k)
			writeCanonical(buf, child)
		}
		buf.WriteByte('}')
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, item)
		}
		buf.WriteByte(']')
	}
}
