// Command lobd runs the order-book core end to end against a simulated
// feed: it connects a simfeed adapter, applies every update to a book
// per symbol, derives features, seals candles, and mirrors persisted
// events onto the segmented WAL. It exists to exercise the pipeline as
// a whole, not to front a real venue.
package main

import (
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		ConfigModule,
		DiagnosticsModule,
		WALModule,
		BusModule,
		FeedModule,
		AggregatorModule,
		EngineModule,
	)

	app.Run()
}
