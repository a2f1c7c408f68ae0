// Package fetcher resolves a URL to bytes cache-first. A hit is served from the
// disk store without touching the network; a miss goes through the injected
// Transport, is validated by a Decoder and written through to the store before
// returning. Callers that only care whether bytes arrived use Fetch; callers
// that need to tell an invalid URL from a transport or decode failure use
// Resolve and inspect the FetchError.
package fetcher
