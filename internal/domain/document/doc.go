// Package document contains the render domain model: document templates,
// the dynamic variable bag, render requests and results, the queue wire
// envelopes, and the classified error taxonomy shared by the engine, the
// browser pool and the dispatchers.
package document
