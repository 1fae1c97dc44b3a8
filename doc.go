/*
Package treedb implements a hierarchical row store on top of an ordered
key-value store (in this case, on top of Bolt).

A tree is stored as rows. A row lives under a parent Path and has a local key;
it either holds a scalar value (a leaf) or marks that a child subtree exists
(a container, identified by a per-parent suffix used for ordering).

We implement:

1. Point lookups, inserts and deletes of single rows.

2. Child scans (rows directly under a node) and descendant scans (rows at any
depth under a node), both as single prefix range scans.

3. Suffix allocation for appending ordered children.

4. Export/import of a whole store and a content digest.

# Technical Details

**Named stores.**
Open caches one handle per name for the life of the process. Bolt holds an
exclusive file lock, so the same file cannot be opened twice; Store.Close is
therefore a no-op.

**Transactions.**
Read-only transactions see a snapshot; one read-write transaction may be open
at a time. Closing a read-write transaction commits it, Abort discards it.

## Binary encoding

**Path encoding**.
Each segment is a tag byte (0x10 index, 0x20 key), escaped content and the
terminator 0x01. Content bytes 0x00, 0x01, 0x02 are written as 0x02 followed
by the byte plus 3. Index content is a length byte and the minimal big-endian
bytes. The escaping is order preserving, so encoded paths sort depth-first.

**Key**: encoded parent path, 0x00, local key bytes.

Since 0x00 never occurs in an encoded path and 0x01 ends every segment:

  - encode(parent) 0x00 is a prefix of exactly the keys of parent's children;
  - encode(parent) is a prefix of exactly the keys of rows at any depth below
    parent (never of parent's own row, and never of a sibling like /ab for /a).

**Value**: 'S' then the UTF-8 value for a leaf, or 'C' then the suffix as
a big-endian uint64 for a container.

There is no format version; changing the encoding breaks existing files.
*/
package treedb
