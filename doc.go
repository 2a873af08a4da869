// Package texpool implements an owner-goroutine resource pool that loads UI textures
// asynchronously, coalesces concurrent requests per key, retains resolved resources
// strongly, and suppresses completions whose requester has since moved on.
//
// Components:
//   - Loader[R]: the asynchronous fetch primitive (see package streamer for one backed by
//     a Source, a residency Provider and a Codec).
//   - Pool[R]: loaded table, in-flight table, waiters per key, and the freshness table
//     keyed by (owner, request key).
//   - Owner: a requester identity the pool only references weakly. Release it (or let it
//     be collected) and its pending callbacks are dropped.
//
// A Pool is not safe for concurrent use. Call it from one goroutine and have the loader
// hop completions back onto that goroutine (dispatch.Queue does this):
//
//	q := dispatch.New()
//	st, _ := streamer.New(streamer.Options[*texture.Texture]{Source: src, Codec: codec.Image{}, Poster: q})
//	pool, _ := texpool.New(texpool.Options[*texture.Texture]{Loader: st})
//
//	pool.Request("ui/portraits/hero_1.png", widget, "portrait", func(t *texture.Texture, ok bool) {
//	    // ok == false: show the placeholder
//	})
//	for frame := range frames {
//	    q.Drain() // completions fan out here
//	}
//
// Rebinding a slot before its load completes silences the older callback:
//
//	pool.Request("hero_1.png", widget, "portrait", a) // a never fires
//	pool.Request("hero_2.png", widget, "portrait", b) // b fires when hero_2 resolves
package texpool
