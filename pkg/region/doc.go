//go:build unix

// Package region manages named shared memory segments that carry emulated
// atomic words. A creator maps a segment, initializes words in the payload
// and publishes the region; attachers wait for publication, map the same
// segment and place words at the same offsets.
//
// Example usage:
//
//	cfg := region.DefaultConfig()
//	r, err := region.Create(ctx, "/dev/shm/counters_region", cfg)
//	// ...
//	w, _ := r.PlaceUint64(0)
//	w.Init(0)
//	_ = r.Publish()
//
//	peer, err := region.Attach(ctx, "/dev/shm/counters_region", cfg)
//	// ...
//	w2, _ := peer.PlaceUint64(0)
//	w2.FetchAdd(1)
//
// See README.md for details.
package region
