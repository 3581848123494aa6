// Package core contains the wallet domain contracts, entities, and
// orchestration logic: engine bring-up, card enrollment, the card registry,
// and the contactless payment session. Lower-level adapters must depend on
// this package; core must not depend on provider-specific or
// transport-specific adapters.
package core
