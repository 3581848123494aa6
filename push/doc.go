// Package push classifies inbound push and server messages and routes them
// to the wallet core once engine bring-up has completed.
//
// Messages arriving before the engine is ready are held in a bounded FIFO
// queue and flushed in arrival order exactly once when bring-up succeeds.
package push
