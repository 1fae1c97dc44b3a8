package treedb

type Stats struct {
	Rows       int
	Leaves     int
	Containers int
	MaxDepth   int

	DataSize  int64
	DataAlloc int64
	FileSize  int64
}

// Stats scans the whole store. Depth counts the segments of a row's path, so
// a child of the root has depth 1.
func (tx *Tx) Stats() (Stats, error) {
	if err := tx.check(false); err != nil {
		return Stats{}, err
	}
	bs := tx.rows.Stats()
	result := Stats{
		DataSize:  bs.LeafInuse,
		DataAlloc: bs.TotalAlloc(),
		FileSize:  tx.stx.Size(),
	}

	c := tx.scan(nil)
	for c.Next() {
		parent, _, err := splitRowKey(c.Key())
		if err != nil {
			return Stats{}, tx.corrupted(err)
		}
		suffix, err := decodeSuffix(c.Value())
		if err != nil {
			return Stats{}, tx.corrupted(err)
		}
		result.Rows++
		if suffix != 0 {
			result.Containers++
		} else {
			result.Leaves++
		}
		result.MaxDepth = max(result.MaxDepth, Path{string(parent)}.Len()+1)
	}
	return result, nil
}
