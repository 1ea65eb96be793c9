// Package mcp exposes the documentation index over the Model Context
// Protocol so external clients (editors, agent runtimes, the Genkit CLI)
// can search it without going through the chat API.
//
// Two tools are registered:
//
//   - search_docs: semantic search over the indexed documentation,
//     optionally restricted to a single source
//   - list_sources: the sources currently in the index with chunk counts
//     and last update times
//
// Both return one JSON text content block. Input problems such as a blank
// query come back as tool errors with IsError set, so clients can recover
// and retry; knowledge store failures surface as call errors.
//
// Production runs speak stdio ("docent mcp"), but Run accepts any
// mcp.Transport, which is how the tests drive the server over in-memory
// pipes.
package mcp
