// Package providers contains built-in implementations of the wallet's
// pluggable contracts: engines, ciphers, clocks, and device adapters.
package providers
