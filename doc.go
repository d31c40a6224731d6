/*
Package arbor maps object graphs onto trees of generic nodes and back, and
moves batches of those trees through a storage backend.

We implement:

1. Nodes: leaves (scalar values with an index flag), ordered lists and maps
with ordered fields. Trees are what backends store.

2. Translators, converting between a Go type and a node. Translators for
composite types are assembled from the translators of their parts, either by
hand (Record, SliceOf, MapOf, PtrOf) or from struct tags (Reflect). A
translator may decline to produce a node (the Omitted outcome), and the
parent then leaves the value out.

3. Results: Deferred values that resolve at most once, and list/map views
over them that serialize as plain snapshots.

4. The Engine, translating whole batches of entities and submitting each
batch to a Backend in one call. Empty batches never reach the backend.

# Technical Details

**Kinds.**
Every persisted Go struct type is registered as a kind in a Schema. The first
struct field holds the entity's key name; the key is (kind, name).

**Indexing.**
Each leaf carries an index flag. Translators pass the inherited instruction
down; a field marked indexed or unindexed overrides it for its subtree.

**Failure.**
Translation errors carry the Path of the failing value. A failure anywhere in
a batch aborts the whole batch before anything is sent to the backend.

## Binary encoding

**Node**: msgpack array, first element is the node tag:
leaf = [0, indexed, value type, value], list = [1, items...],
map = [2, name1, node1, name2, node2...].

**Value** (Store, redisstore): value header, then encoded node.

**Value header**:
1. Flags (uvarint), low 4 bits = format version.
2. Data size (uvarint).

**Raw key**: tuple encoding of (kind, name): the elements, then
byte-reversed uvarint lengths of all but the last element, then the element
count, so that the tuple can be parsed from the right.
*/
package arbor
