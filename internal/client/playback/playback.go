// Package playback runs the client's local media playback: at most one
// active session per process, stopped cooperatively through a cancellation
// token and joined before control returns.
package playback

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// playChunk is the PCM granularity between cancellation checks.
const playChunk = 4096

// Token signals cooperative cancellation to a playback worker. The worker
// polls it between decode iterations; the controller cancels it on Stop.
type Token struct {
	mu        sync.Mutex
	cancelled bool
}

// Cancel requests the worker to stop. Safe to call more than once.
func (t *Token) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
}

// Cancelled reports whether Cancel was called.
func (t *Token) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Decoder yields PCM samples from an encoded stream.
type Decoder interface {
	io.Reader
	SampleRate() int
}

// DecodeFunc opens a Decoder over an encoded source.
type DecodeFunc func(src io.Reader) (Decoder, error)

// Backend opens an audio output sink for PCM at the given sample rate.
type Backend interface {
	Open(sampleRate int) (io.WriteCloser, error)
}

// task is one live playback worker.
type task struct {
	path  string
	token *Token
	done  chan struct{}
}

// Controller owns the playback session. Start replaces any active session;
// Stop cancels and joins the worker, guaranteeing no playback work survives
// the call.
type Controller struct {
	mu      sync.Mutex
	decode  DecodeFunc
	backend Backend
	log     zerolog.Logger
	current *task
}

// NewController builds a controller with the default MP3 decoder and audio
// device backend.
func NewController(log zerolog.Logger) *Controller {
	return NewControllerWith(mp3Decode, newOtoBackend(), log)
}

// NewControllerWith builds a controller with explicit decode and output
// implementations.
func NewControllerWith(decode DecodeFunc, backend Backend, log zerolog.Logger) *Controller {
	return &Controller{decode: decode, backend: backend, log: log}
}

// Start begins playing the file at path. An active session is stopped
// synchronously first, so at most one worker ever exists.
func (c *Controller) Start(path string) error {
	c.Stop()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	t := &task{
		path:  path,
		token: &Token{},
		done:  make(chan struct{}),
	}

	c.mu.Lock()
	c.current = t
	c.mu.Unlock()

	go c.run(f, t)
	return nil
}

// Stop cancels the active session and blocks until its worker has exited.
// A no-op when nothing is playing.
func (c *Controller) Stop() {
	c.mu.Lock()
	t := c.current
	c.current = nil
	c.mu.Unlock()

	if t == nil {
		return
	}
	t.token.Cancel()
	<-t.done
}

// Playing returns the path of the active session, if any.
func (c *Controller) Playing() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return "", false
	}
	// A finished worker leaves current set until the next Start/Stop.
	select {
	case <-c.current.done:
		return "", false
	default:
		return c.current.path, true
	}
}

// run decodes and feeds the output sink, polling the token between
// iterations so a Stop is observed within one chunk.
func (c *Controller) run(f *os.File, t *task) {
	defer close(t.done)
	defer f.Close()

	log := c.log.With().Str("file", t.path).Logger()

	dec, err := c.decode(f)
	if err != nil {
		log.Error().Err(err).Msg("decode failed")
		return
	}

	out, err := c.backend.Open(dec.SampleRate())
	if err != nil {
		log.Error().Err(err).Msg("audio output unavailable")
		return
	}
	defer out.Close()

	log.Info().Int("sample_rate", dec.SampleRate()).Msg("playback started")

	buf := make([]byte, playChunk)
	for !t.token.Cancelled() {
		n, rerr := dec.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				log.Error().Err(werr).Msg("audio write failed")
				return
			}
		}
		if rerr == io.EOF {
			log.Info().Msg("playback finished")
			return
		}
		if rerr != nil {
			log.Error().Err(rerr).Msg("decode read failed")
			return
		}
	}

	log.Info().Msg("playback stopped")
}
