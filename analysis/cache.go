package analysis

import (
	"context"
	"fmt"
	"os"

	"github.com/RyanBlaney/pitchperfect/logging"
	lru "github.com/hashicorp/golang-lru/v2"
)

// WithDecodeCache keeps up to size decoded recordings in memory so that one
// original can be compared against many takes without decoding it again.
// Entries are keyed by path, size and modification time. A non-positive size
// disables the cache.
func WithDecodeCache(size int) Option {
	return func(a *Analyzer) {
		if size <= 0 {
			return
		}
		cache, err := lru.New[string, Recording](size)
		if err != nil {
			a.logger.Warn("Decode cache disabled", logging.Fields{"error": err.Error()})
			return
		}
		a.cache = cache
	}
}

// cacheKey identifies a file's current contents. ok is false when the file
// cannot be stat'ed, in which case the recording is not cached.
func cacheKey(path string) (key string, ok bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano()), true
}

// cachedDecode wraps decode with the analyzer's cache, if any
func (a *Analyzer) cachedDecode(ctx context.Context, path string) (Recording, error) {
	if a.cache == nil {
		return a.decode(ctx, path)
	}

	key, ok := cacheKey(path)
	if ok {
		if rec, hit := a.cache.Get(key); hit {
			a.logger.Debug("Decode cache hit", logging.Fields{"path": path})
			return rec, nil
		}
	}

	rec, err := a.decode(ctx, path)
	if err != nil || isNilRecording(rec) || !ok {
		return rec, err
	}
	a.cache.Add(key, rec)
	return rec, nil
}
