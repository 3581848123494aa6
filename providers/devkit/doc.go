// Package devkit provides scripted fakes, fixtures, and conformance
// validators for integrating a tokenization engine with the wallet core.
//
// The scripted engine is deterministic and safe for concurrent use; tests
// and engine vendors can script outcomes per operation and fire the
// asynchronous callbacks the real engine would produce.
package devkit
