package texpool

import (
	"context"
)

// Preload makes keys resident before returning, for loading screens that must not show
// placeholders. It blocks the owner goroutine. Keys already retained are skipped; waiters
// and loads in flight are left alone (their completion overwrites the entry with the
// same resource).
func (p *Pool[R]) Preload(ctx context.Context, keys ...Key) error {
	if p.closed {
		return ErrClosed
	}
	sl, ok := p.loader.(SyncLoader)
	if !ok {
		return ErrSyncUnsupported
	}

	missing := make([]Key, 0, len(keys))
	seen := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		if k.IsNull() {
			continue
		}
		if _, ok := p.loaded[k]; ok {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		missing = append(missing, k)
	}
	if len(missing) == 0 {
		return nil
	}

	failed := make(map[Key]error)
	if bl, ok := sl.(BatchLoader); ok {
		for k, err := range bl.LoadMany(ctx, missing) {
			failed[k] = err
		}
	} else {
		for _, k := range missing {
			if err := ctx.Err(); err != nil {
				failed[k] = err
				continue
			}
			if err := sl.LoadNow(ctx, k); err != nil {
				failed[k] = err
			}
		}
	}

	if p.closed { // a loader may pump the owner queue while blocking
		return ErrClosed
	}
	for _, k := range missing {
		if _, bad := failed[k]; bad {
			continue
		}
		if r, ok := p.loader.Resolve(k); ok {
			p.loaded[k] = r
		} else {
			failed[k] = errNotResident
		}
	}

	p.log.Debug("preload finished", Fields{"requested": len(missing), "failed": len(failed)})
	if len(failed) > 0 {
		return &PreloadError{Failed: failed}
	}
	return nil
}
