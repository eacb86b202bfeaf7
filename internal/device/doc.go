// Package device is the catalogue of pool devices the bridge has seen.
//
// It keeps the latest observed state of each device (a circuit switch, a
// chemistry reading, a heat status) in SQLite with an in-memory cache in
// front. There is no history: each refresh overwrites the previous state.
//
// # Architecture
//
//	screenlogic.Bridge ──SaveDeviceStates──▶ Registry ──UpsertBatch──▶ SQLiteRepository
//	                                           (cache)                  (pool_devices)
//
// # Key Types
//
//   - Device: one catalogue row, identified by "{protocol}:{address}"
//   - Kind: sensor, binary_sensor or switch
//   - Registry: cached, thread-safe access and write-through updates
//   - Repository: persistence abstraction, implemented by SQLiteRepository
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	err := registry.Observe(ctx, devices)
package device
