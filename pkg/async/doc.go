// Package async provides panic-safe helpers for the service's background
// maintenance work: fire-and-forget tasks and bounded fan-out over a set
// of items.
//
// SafeGo runs a task that must not block or crash the caller, such as the
// retention sweep kicked off at startup:
//
//	async.SafeGo(ctx, 10*time.Minute, "startup retention sweep", func(ctx context.Context) error {
//		_, err := sweeper.Sweep(ctx)
//		return err
//	})
//
// Batch fans work out over many items with a bounded number of workers,
// the way the retention sweeper purges per-user history:
//
//	errs := async.Batch(ctx, userIDs, 4, "history retention", 30*time.Second,
//		func(ctx context.Context, userID string) error {
//			return purgeUser(ctx, userID)
//		})
package async
