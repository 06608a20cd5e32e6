package playback

import (
	"fmt"
	"io"
	"sync"

	"github.com/hajimehoshi/go-mp3"
	"github.com/hajimehoshi/oto"
)

// mp3Decode is the default DecodeFunc. go-mp3 emits 16-bit stereo PCM.
func mp3Decode(src io.Reader) (Decoder, error) {
	return mp3.NewDecoder(src)
}

// otoBackend adapts the oto audio device to the Backend interface. oto
// permits a single context per process, so the context is cached and reused
// as long as the sample rate matches.
type otoBackend struct {
	mu   sync.Mutex
	ctx  *oto.Context
	rate int
}

func newOtoBackend() *otoBackend {
	return &otoBackend{}
}

func (b *otoBackend) Open(sampleRate int) (io.WriteCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx != nil && b.rate != sampleRate {
		b.ctx.Close()
		b.ctx = nil
	}
	if b.ctx == nil {
		ctx, err := oto.NewContext(sampleRate, 2, 2, playChunk*2)
		if err != nil {
			return nil, fmt.Errorf("open audio device: %w", err)
		}
		b.ctx = ctx
		b.rate = sampleRate
	}
	return b.ctx.NewPlayer(), nil
}
