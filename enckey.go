package treedb

// Store keys are encode(parent) keySep key.
//
// The exact key addresses one row. The child prefix (encode(parent) keySep)
// matches direct children only: a deeper row has a segment tag where a child
// has keySep. The descendant prefix (encode(parent)) matches rows at any depth
// below parent, but never the row for parent itself, and never a sibling
// sharing a textual prefix, because every segment ends in segEnd.

func appendRowKey(buf []byte, parent Path, key string) []byte {
	buf = parent.appendEncoded(buf)
	buf = append(buf, keySep)
	return append(buf, key...)
}

func childPrefix(parent Path) []byte {
	return append(parent.appendEncoded(nil), keySep)
}

func descendantPrefix(parent Path) []byte {
	return parent.appendEncoded(nil)
}

// splitRowKey validates a store key and splits it into the encoded parent
// path and the local key. Everything after the first keySep is the key.
func splitRowKey(k []byte) (parent, key []byte, err error) {
	off := 0
	for off < len(k) && k[off] != keySep {
		off, _, _, err = skipSegment(k, off)
		if err != nil {
			return nil, nil, err
		}
	}
	if off >= len(k) {
		return nil, nil, dataErrf(k, off, ErrMalformedKey, "missing key separator")
	}
	return k[:off], k[off+1:], nil
}

// iterationKey returns the sort key of the row stored under k, which is
// encode(parent.Key(key)). Sorting by it yields depth-first pre-order.
func iterationKey(parent, key []byte) string {
	buf := make([]byte, 0, len(parent)+len(key)+8)
	buf = append(buf, parent...)
	buf = appendKeySegment(buf, key)
	return string(buf)
}
