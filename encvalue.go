package treedb

import "encoding/binary"

// Store values carry a one-byte tag: valueScalar followed by the UTF-8
// payload, or valueContainer followed by the suffix as a fixed 8-byte
// big-endian integer.
const (
	valueScalar    byte = 'S'
	valueContainer byte = 'C'

	containerValueSize = 1 + 8
)

func appendValue(buf []byte, row Row) []byte {
	if row.Suffix != 0 {
		buf = append(buf, valueContainer)
		return binary.BigEndian.AppendUint64(buf, row.Suffix)
	}
	buf = append(buf, valueScalar)
	return append(buf, row.Value...)
}

// decodeSuffix returns the container suffix of a store value, or 0 for
// a scalar value.
func decodeSuffix(data []byte) (uint64, error) {
	if len(data) == 0 {
		return 0, dataErrf(data, 0, ErrMalformedValue, "empty value")
	}
	switch data[0] {
	case valueScalar:
		return 0, nil
	case valueContainer:
		if len(data) != containerValueSize {
			return 0, dataErrf(data, 1, ErrMalformedValue, "container value must be %d bytes", containerValueSize)
		}
		suffix := binary.BigEndian.Uint64(data[1:])
		if suffix == 0 {
			return 0, dataErrf(data, 1, ErrMalformedValue, "zero container suffix")
		}
		return suffix, nil
	default:
		return 0, dataErrf(data, 0, ErrMalformedValue, "invalid value tag 0x%02x", data[0])
	}
}

func decodeValue(data []byte) (suffix uint64, value string, err error) {
	suffix, err = decodeSuffix(data)
	if err != nil || suffix != 0 {
		return suffix, "", err
	}
	return 0, string(data[1:]), nil
}

// decodeRow decodes a store entry, copying everything out of k and v.
func decodeRow(k, v []byte) (Row, error) {
	parent, key, err := splitRowKey(k)
	if err != nil {
		return Row{}, err
	}
	suffix, value, err := decodeValue(v)
	if err != nil {
		return Row{}, err
	}
	return Row{
		Parent: Path{string(parent)},
		Key:    string(key),
		Suffix: suffix,
		Value:  value,
	}, nil
}
