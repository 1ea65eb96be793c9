// Package ingest crawls documentation sites and indexes them into the
// knowledge store.
//
// # Overview
//
// Each configured source names a site and its sitemap.xml. A run fetches
// the sitemap, crawls every listed page, extracts the readable text, cuts
// it into overlapping chunks, and writes the chunks to the store. Indexing
// is idempotent: the store upserts by content hash, so re-running a source
// refreshes what changed and leaves the rest alone.
//
// # Architecture
//
//	sitemap.xml (encoding/xml, nested indexes followed)
//	     |
//	     v
//	colly crawler (per-host parallelism and politeness delay)
//	     |
//	     v
//	extraction (go-readability, goquery landmarks, html walker fallback)
//	     |
//	     v
//	recursive splitter (paragraph -> line -> word -> rune boundaries)
//	     |
//	     v
//	knowledge store (embed + upsert)
//
// # Failure Handling
//
// Individual pages that fail to fetch or yield no text are counted and
// skipped; a source only fails as a whole when its sitemap is unreachable
// or the store rejects the write. With Options.Wipe the source's existing
// chunks are deleted only after a successful crawl, so a dead site never
// empties its own index.
package ingest
