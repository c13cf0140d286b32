package telegram

import (
	"sync"
	"time"
)

// AlbumFlush is one coalesced media group, handed to the flush callback
// after the debounce window closes.
type AlbumFlush struct {
	UserID  int64
	ChatID  int64
	Images  [][]byte
	Caption string
}

type pendingAlbum struct {
	userID  int64
	chatID  int64
	images  [][]byte
	caption string
	timer   *time.Timer
	gen     uint64
}

// Aggregator groups photos arriving under one media-group id into a single
// flush. Every new photo re-arms the album's timer, so the window measures
// time since the last photo, not the first.
type Aggregator struct {
	mu     sync.Mutex
	window time.Duration
	albums map[string]*pendingAlbum
	flush  func(AlbumFlush)
}

func NewAggregator(window time.Duration, flush func(AlbumFlush)) *Aggregator {
	return &Aggregator{
		window: window,
		albums: make(map[string]*pendingAlbum),
		flush:  flush,
	}
}

// Add buffers a photo for the album and re-arms its debounce timer. The
// first non-empty caption seen in the album wins.
func (a *Aggregator) Add(albumID string, userID, chatID int64, image []byte, caption string) {
	a.mu.Lock()
	album, ok := a.albums[albumID]
	if !ok {
		album = &pendingAlbum{userID: userID, chatID: chatID}
		a.albums[albumID] = album
	}
	album.images = append(album.images, image)
	if caption != "" && album.caption == "" {
		album.caption = caption
	}
	if album.timer != nil {
		album.timer.Stop()
	}
	// The generation counter guards against a timer that already fired and
	// is blocked on the mutex: after re-arming, its stale gen no longer
	// matches and it becomes a no-op.
	album.gen++
	gen := album.gen
	album.timer = time.AfterFunc(a.window, func() {
		a.fire(albumID, gen)
	})
	a.mu.Unlock()
}

func (a *Aggregator) fire(albumID string, gen uint64) {
	a.mu.Lock()
	album, ok := a.albums[albumID]
	if !ok || album.gen != gen {
		a.mu.Unlock()
		return
	}
	delete(a.albums, albumID)
	a.mu.Unlock()

	a.flush(AlbumFlush{
		UserID:  album.userID,
		ChatID:  album.chatID,
		Images:  album.images,
		Caption: album.caption,
	})
}

// Pending reports how many albums are currently buffered.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.albums)
}
