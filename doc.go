/*
Package ncd provides a builder and reader for immutable, paged, on-disk
associative byte-maps.

An NCD file is built once from a ValueSource — an in-memory map, a
line-oriented flat file, or an embedded database — and queried many times
afterward with constant-time point lookups that touch at most two small
byte ranges of the file per key: one page, and, for the minority of entries
large enough to spill into the overflow region, one additional range read.
Because every lookup is a bounded number of accessor reads, NCD files read
well over high-latency backends such as HTTP range requests, not just local
disk.

Basic usage:

	import (
		"context"
		"log"
		"github.com/theflywheel/ncd"
		"github.com/theflywheel/ncd/accessors"
		"github.com/theflywheel/ncd/sources"
	)

	source := sources.NewMemorySource(map[string][]byte{
		"hello": []byte("world"),
	})
	build, err := ncd.NewBuild(ncd.DefaultBuildConfig(), source, "data.ncd", stamp, logger)
	if err != nil {
		log.Fatal(err)
	}
	if err := build.Run(context.Background()); err != nil {
		log.Fatal(err)
	}

	accessor, err := accessors.OpenFile("data.ncd")
	if err != nil {
		log.Fatal(err)
	}
	reader, err := ncd.OpenReader(context.Background(), accessor)
	if err != nil {
		log.Fatal(err)
	}
	value, ok, err := reader.Get(context.Background(), []byte("hello"))

Features:

  - Paged layout: every key hashes to exactly one page, so a lookup never
    needs to read more than one page plus (for external entries) one more
    range of the overflow region.
  - Open addressing with linear probing within a page's hash table.
  - lesqlite2 variable-length integers keep small records small.
  - A generation stamp lets a reader detect and recover from a file being
    rebuilt underneath it — this matters most for the HTTP accessor, which
    has no other way to observe that the remote file changed.
  - The builder retries automatically, growing page count, when a page's
    table or heap overflows during a write attempt.

Implementation Details:

The file begins with a 28-byte header (magic, version, page count, heap
size, table size, stamp) followed by that many fixed-size pages. Each page
holds a heap (bump-allocated entry records) and an open-addressed hash
table (pointer width 2 or 4 bytes depending on page size) ending in a
4-byte copy of the header's stamp. Entries whose record exceeds the build's
external threshold (by default a tenth of the heap size, at least 16 bytes)
are stored once in an append-only overflow region following all pages, with
a short pointer record left in the page's heap instead.

This package provides the format and the build/read engines (C1-C8 in the
design notes); external collaborators — value sources and read accessors —
live in the sources and accessors subpackages and only need to satisfy a
narrow iterator or byte-range contract.
*/
package ncd
