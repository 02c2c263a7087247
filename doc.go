// Package reliability provides a transactional reliability core for Go
// applications that meter paid work: AI inference, API calls, render jobs.
//
// Reliability is designed as a library, not a service. Import it directly
// into your Go application. It provides:
//
//   - Per-account keyed locking so concurrent operations on one account
//     serialize while different accounts proceed in parallel
//   - A credit ledger with two-phase reserve/commit/release spending and
//     a bounded per-account transaction trail
//   - An idempotency cache with per-record TTL and LRU eviction for
//     exactly-once semantics on retried requests
//   - A dead letter queue with exponential backoff for failed side
//     effects, with operator replay of dead entries
//   - Pluggable lifecycle hooks for metrics, audit trails, and event
//     streaming (Kafka built-in)
//
// # Quick Start
//
// Create a core instance, in-memory or with a durable store:
//
//	import (
//	    "github.com/EfeDurmaz16/aspendos-reliability"
//	    "github.com/EfeDurmaz16/aspendos-reliability/store/postgres"
//	)
//
//	// Initialize store (optional; omit WithStore for in-memory)
//	store, err := postgres.New(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create the core
//	core := reliability.New(reliability.WithStore(store))
//
//	// Start background workers (expiry sweep, cache purge)
//	if err := core.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer core.Stop()
//
// # Core Concepts
//
// Credits are added with a reason and spent in two phases. Reserve places
// a hold against the available balance; commit deducts it for real once
// the work succeeds, and release returns it when the work fails:
//
//	total, err := core.AddCredits(ctx, "acct_1", decimal.NewFromInt(100), reliability.ReasonPurchase)
//
//	res, err := core.ReserveCredits(ctx, "acct_1", decimal.NewFromInt(5), requestID)
//	if errors.Is(err, reliability.ErrInsufficientCredits) {
//	    // Prompt an upgrade
//	}
//
//	if workErr := doWork(); workErr != nil {
//	    core.ReleaseCredits(ctx, res.ID)
//	} else {
//	    core.CommitCredits(ctx, res.ID)
//	}
//
// Uncommitted reservations expire after a TTL and are released by the
// background sweep, so credits never leak when a process dies mid-flight.
//
// Execute deduplicates retried requests by operation key:
//
//	result, err := core.Execute(ctx, requestID, func() (any, error) {
//	    return chargeCustomer(ctx)
//	})
//
// Failed side effects go to the dead letter queue and are retried with
// exponential backoff until they succeed or exhaust their retry budget:
//
//	core.Enqueue(ctx, reliability.Entry{OperationType: "webhook", Payload: body})
//
//	for _, e := range core.Dequeue(10) {
//	    if err := deliver(e); err != nil {
//	        core.MarkFailed(ctx, e.ID, err.Error())
//	    } else {
//	        core.MarkCompleted(ctx, e.ID)
//	    }
//	}
//
// # Amounts
//
// All credit amounts use decimal arithmetic to avoid floating-point
// precision issues, so fractional per-token or per-second pricing
// accumulates exactly.
//
// # TypeID
//
// Reservations, transactions, and queue entries use TypeID for globally
// unique, type-safe identifiers:
//
//	rsv_01h2xcejqtf2nbrexx3vqjhp41  // Reservation ID
//	txn_01h2xcejqtf2nbrexx3vqjhp41  // Transaction ID
//	dlq_01h455vb4pex5vsknk084sn02q  // Dead letter entry ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package reliability
