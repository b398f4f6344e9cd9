// Package feed defines the contract external market-data producers
// implement to feed normalized L2 updates into the core (C3). The core
// itself never dials a transport; everything below this interface is
// out of scope.
package feed

import (
	"context"

	"github.com/abdoElHodaky/lobcore/pkg/lobtypes"
)

// Sender is the narrow interface an Adapter pushes normalized updates
// onto. pkg/bus's Publisher[lobtypes.L2Update] satisfies it, but any
// bounded channel wrapper can.
type Sender interface {
	Publish(u lobtypes.L2Update) error
}

// Adapter is an external producer with an asynchronous connect /
// subscribe / run / disconnect lifecycle. Updates must arrive in
// non-decreasing timestamp order per symbol; level indices are
// 0-indexed with 0 = best; a zero Qty means "remove this level"; level
// indices at or beyond the book's configured depth may be silently
// dropped by the adapter or the book.
type Adapter interface {
	// Connect establishes the underlying transport.
	Connect(ctx context.Context) error
	// Subscribe registers interest in the given symbols.
	Subscribe(ctx context.Context, symbols []lobtypes.Symbol) error
	// Run is a long-lived loop that produces updates onto sender until
	// ctx is canceled or the transport fails.
	Run(ctx context.Context, sender Sender) error
	// Disconnect tears down the transport.
	Disconnect(ctx context.Context) error
}
