/*
Package ekv implements an entity store with secondary indexes on top of a
transactional sorted key-value store (bbolt or an in-memory store with
optimistic commits; any store implementing KV works).

We implement:

1. Tables, collections of typed records with a designated primary key.

2. Indexes, unique and non-unique, maintained on every save and delete so
that they are always consistent with primary records at commit boundaries.

3. Migrations, moving records from an old table name to the current one,
one schema version at a time.

4. Backup and restore, exporting all primary records of a table to a
line-delimited JSON file and re-importing them through the normal save path.

# Technical Details

**Keyspace.**
All keys live in one flat sorted keyspace:

	{table} 0x00 {category} 0x00 {tagged parts...}

where category is one of “data” (primary records), “uidx” (unique index
entries), “idx” (non-unique index entries) and “meta” (bookkeeping such as
the applied-migrations record). This keeps all keys of one table+category
contiguous, so index lookups are single range scans.

**Key parts.**
Each part starts with a tag byte identifying its type. Strings and byte
slices are terminated by 0x00 0x00, with embedded 0x00 escaped as 0x00 0x01.
Integers are fixed-width big-endian, sign-flipped for signed values.
The encoding is order-preserving and prefix-free: keys sort by part value,
then by the following parts, which makes non-unique index entries sort by
field value and then primary key, and no part encoding is a byte-prefix of
another, so a prefix scan for one index value never picks up entries of a
value it is a prefix of.

**Index entries.**
A unique index entry maps the encoded field value to the encoded primary
key part. A non-unique index entry carries both the field value and the
primary key in its key and stores an empty value; the primary key is
recovered from the key suffix without decoding.

**Values.**
A primary record value is a small header (flags uvarint, schema version
uvarint) followed by the encoded row (msgpack by default). The schema
version records which table version last wrote the record.

**Transactions.**
Every operation takes an explicit *Tx bound to one store transaction.
The store provides snapshot isolation; racing writers are resolved by the
store's conflict detection at commit, surfaced as ErrTxConflict and never
retried internally.
*/
package ekv
