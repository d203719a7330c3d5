package receiver_test

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/relaydrop/relaydrop/internal/conn"
	"github.com/relaydrop/relaydrop/internal/consent"
	"github.com/relaydrop/relaydrop/internal/progress"
	"github.com/relaydrop/relaydrop/internal/receiver"
	"github.com/relaydrop/relaydrop/internal/storage"
	"github.com/relaydrop/relaydrop/protocol/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptConn replays queued frames and reports a normal closure once drained.
type scriptConn struct {
	mu      sync.Mutex
	inbound []signal.Frame
	readErr error
	written []signal.Frame
}

func (c *scriptConn) Read(ctx context.Context) (signal.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.inbound) == 0 {
		if c.readErr != nil {
			return signal.Frame{}, c.readErr
		}
		return signal.Frame{}, conn.ErrClosed
	}
	f := c.inbound[0]
	c.inbound = c.inbound[1:]
	return f, nil
}

func (c *scriptConn) Write(ctx context.Context, f signal.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, f)
	return nil
}

func (c *scriptConn) push(t *testing.T, msgs ...signal.Msg) {
	t.Helper()
	for _, m := range msgs {
		f, err := signal.Encode(m)
		require.NoError(t, err)
		c.inbound = append(c.inbound, f)
	}
}

type saveRecorder struct {
	calls int
	name  string
	data  []byte
}

func (s *saveRecorder) save(_ context.Context, name string, data []byte) (string, error) {
	s.calls++
	s.name = name
	s.data = data
	return "memory://" + name, nil
}

type snapshots struct {
	all []progress.Snapshot
}

func (s *snapshots) Render(snap progress.Snapshot) {
	s.all = append(s.all, snap)
}

func memorySelector(rec *saveRecorder) *storage.Selector {
	return storage.NewSelector(storage.Capability{}, nil, rec.save, nil)
}

func TestMetadataAndChunks(t *testing.T) {
	ctx := context.Background()
	c := &scriptConn{}
	rec := &saveRecorder{}
	snaps := &snapshots{}
	r := receiver.New(c, memorySelector(rec), receiver.WithProgress(progress.New(snaps)))

	_, err := r.Handle(ctx, signal.Metadata{Filename: "a.txt", Filesize: 1000})
	require.NoError(t, err)
	assert.Equal(t, receiver.Receiving, r.State())
	require.NotEmpty(t, snaps.all)
	assert.Equal(t, "a.txt", snaps.all[0].Title)
	assert.Equal(t, "1000 B", snaps.all[0].TotalText())

	var received []int64
	var percents []float64
	for _, n := range []int{400, 600} {
		_, err := r.Handle(ctx, signal.Chunk{Data: make([]byte, n)})
		require.NoError(t, err)
		received = append(received, r.Session().Received())
		last := snaps.all[len(snaps.all)-1]
		percents = append(percents, last.Percent)
	}
	assert.Equal(t, []int64{400, 1000}, received)
	assert.Equal(t, []float64{40, 100}, percents)
	assert.False(t, snaps.all[len(snaps.all)-1].Active)
}

func TestConsentReject(t *testing.T) {
	c := &scriptConn{}
	c.push(t, signal.ConsentRequest{Filename: "b.zip", Sender: "peer1"})
	reject := consent.GateFunc(func(context.Context, string, string) (consent.Decision, error) {
		return consent.Reject, nil
	})
	r := receiver.New(c, memorySelector(&saveRecorder{}), receiver.WithGate(reject))

	require.NoError(t, r.Run(context.Background()))
	require.Len(t, c.written, 1)
	assert.Equal(t, "file_response:peer1:reject", string(c.written[0].Data))
	assert.Nil(t, r.Session())
	assert.Equal(t, receiver.Idle, r.State())
}

func TestConsentAccept(t *testing.T) {
	c := &scriptConn{}
	c.push(t, signal.ConsentRequest{Filename: "b.zip", Sender: "peer1"})
	var asked []string
	gate := consent.GateFunc(func(_ context.Context, filename, sender string) (consent.Decision, error) {
		asked = append(asked, filename, sender)
		return consent.Accept, nil
	})
	r := receiver.New(c, memorySelector(&saveRecorder{}), receiver.WithGate(gate))

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, []string{"b.zip", "peer1"}, asked)
	require.Len(t, c.written, 1)
	assert.Equal(t, "file_response:peer1:accept", string(c.written[0].Data))
	assert.Equal(t, receiver.AwaitingConsent, r.State())
}

func TestConsentGateError(t *testing.T) {
	c := &scriptConn{}
	c.push(t, signal.ConsentRequest{Filename: "b.zip", Sender: "peer1"})
	broken := consent.GateFunc(func(context.Context, string, string) (consent.Decision, error) {
		return consent.Accept, consent.ErrInvalidAnswer
	})
	r := receiver.New(c, memorySelector(&saveRecorder{}), receiver.WithGate(broken))

	require.NoError(t, r.Run(context.Background()))
	require.Len(t, c.written, 1)
	assert.Equal(t, "file_response:peer1:reject", string(c.written[0].Data))
}

func TestMemoryFallbackCompletion(t *testing.T) {
	c := &scriptConn{}
	rec := &saveRecorder{}
	payload := bytes.Repeat([]byte("relaydrop"), 100)
	c.push(t,
		signal.Metadata{Filename: "c.bin", Filesize: int64(len(payload))},
		signal.Chunk{Data: payload[:300]},
		signal.Chunk{Data: payload[300:]},
		signal.TransferComplete{},
	)
	var results []receiver.Result
	r := receiver.New(c, memorySelector(rec), receiver.WithOnComplete(func(res receiver.Result) {
		results = append(results, res)
	}))

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, "c.bin", rec.name)
	assert.Len(t, rec.data, len(payload))
	assert.Equal(t, payload, rec.data)
	require.Len(t, results, 1)
	assert.Equal(t, storage.Memory, results[0].Backend)
	assert.Equal(t, int64(len(payload)), results[0].Size)
	assert.Equal(t, receiver.Completed, r.State())
	assert.Nil(t, r.Session())
}

func TestStreamingCompletion(t *testing.T) {
	dir := t.TempDir()
	c := &scriptConn{}
	c.push(t,
		signal.Metadata{Filename: "d.txt", Filesize: 11},
		signal.Chunk{Data: []byte("hello ")},
		signal.Chunk{Data: []byte("world")},
		signal.TransferComplete{},
	)
	selector := storage.NewSelector(storage.Probe(dir, true), storage.DirPicker{Dir: dir}, storage.SaveToDir(dir, false), nil)
	var result receiver.Result
	r := receiver.New(c, selector, receiver.Once(), receiver.WithOnComplete(func(res receiver.Result) {
		result = res
	}))

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, storage.Streaming, result.Backend)
	assert.Equal(t, filepath.Join(dir, "d.txt"), result.Path)
	content, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(content))
}

func TestZeroLengthChunk(t *testing.T) {
	ctx := context.Background()
	snaps := &snapshots{}
	r := receiver.New(&scriptConn{}, memorySelector(&saveRecorder{}), receiver.WithProgress(progress.New(snaps)))
	_, err := r.Handle(ctx, signal.Metadata{Filename: "e", Filesize: 10})
	require.NoError(t, err)
	_, err = r.Handle(ctx, signal.Chunk{Data: []byte("abcd")})
	require.NoError(t, err)
	before := len(snaps.all)

	_, err = r.Handle(ctx, signal.Chunk{Data: nil})
	require.NoError(t, err)
	assert.Equal(t, int64(4), r.Session().Received())
	assert.Len(t, snaps.all, before+1)
	assert.Equal(t, snaps.all[before-1].Percent, snaps.all[before].Percent)
}

func TestOvershootIsClamped(t *testing.T) {
	ctx := context.Background()
	snaps := &snapshots{}
	rec := &saveRecorder{}
	r := receiver.New(&scriptConn{}, memorySelector(rec), receiver.WithProgress(progress.New(snaps)))
	_, err := r.Handle(ctx, signal.Metadata{Filename: "f", Filesize: 4})
	require.NoError(t, err)
	_, err = r.Handle(ctx, signal.Chunk{Data: []byte("abcdef")})
	require.NoError(t, err)

	assert.Equal(t, int64(6), r.Session().Received())
	assert.Equal(t, int64(4), r.Session().Reported())
	last := snaps.all[len(snaps.all)-1]
	assert.Equal(t, 100.0, last.Percent)
	assert.Equal(t, int64(4), last.Bytes)
}

func TestSecondMetadataRejected(t *testing.T) {
	ctx := context.Background()
	rec := &saveRecorder{}
	r := receiver.New(&scriptConn{}, memorySelector(rec))
	_, err := r.Handle(ctx, signal.Metadata{Filename: "first", Filesize: 6})
	require.NoError(t, err)
	_, err = r.Handle(ctx, signal.Chunk{Data: []byte("abc")})
	require.NoError(t, err)

	_, err = r.Handle(ctx, signal.Metadata{Filename: "second", Filesize: 100})
	require.NoError(t, err)
	assert.Equal(t, "first", r.Session().FileName)
	assert.Equal(t, int64(3), r.Session().Received())

	_, err = r.Handle(ctx, signal.Chunk{Data: []byte("def")})
	require.NoError(t, err)
	completed, err := r.Handle(ctx, signal.TransferComplete{})
	require.NoError(t, err)
	assert.True(t, completed)
	assert.Equal(t, "first", rec.name)
	assert.Equal(t, "abcdef", string(rec.data))
}

func TestRequireConsent(t *testing.T) {
	ctx := context.Background()
	r := receiver.New(&scriptConn{}, memorySelector(&saveRecorder{}), receiver.RequireConsent(true))

	_, err := r.Handle(ctx, signal.Metadata{Filename: "sneaky", Filesize: 1})
	require.NoError(t, err)
	assert.Equal(t, receiver.Idle, r.State())
	assert.Nil(t, r.Session())

	_, err = r.Handle(ctx, signal.ConsentRequest{Filename: "ok", Sender: "peer"})
	require.NoError(t, err)
	_, err = r.Handle(ctx, signal.Metadata{Filename: "ok", Filesize: 1})
	require.NoError(t, err)
	assert.Equal(t, receiver.Receiving, r.State())
}

func TestFramesWithoutSessionAreDropped(t *testing.T) {
	c := &scriptConn{}
	c.push(t, signal.Chunk{Data: []byte("stray")}, signal.TransferComplete{}, signal.Ignored{Type: "presence"})
	c.inbound = append(c.inbound, signal.Text("not json"))
	rec := &saveRecorder{}
	r := receiver.New(c, memorySelector(rec))

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 0, rec.calls)
	assert.Equal(t, receiver.Idle, r.State())
}

type failingDest struct {
	closed bool
}

func (d *failingDest) Write([]byte) (int, error) { return 0, errors.New("disk full") }
func (d *failingDest) Close() error              { d.closed = true; return nil }
func (d *failingDest) Name() string              { return "broken" }

type destPicker struct {
	dst storage.Destination
}

func (p destPicker) Pick(context.Context, string) (storage.Destination, error) {
	return p.dst, nil
}

func TestWriteFailureIsFatal(t *testing.T) {
	dst := &failingDest{}
	c := &scriptConn{}
	c.push(t,
		signal.Metadata{Filename: "g", Filesize: 3},
		signal.Chunk{Data: []byte("abc")},
		signal.TransferComplete{},
	)
	rec := &saveRecorder{}
	snaps := &snapshots{}
	selector := storage.NewSelector(storage.Capability{StreamingSave: true, Trusted: true}, destPicker{dst: dst}, rec.save, nil)
	r := receiver.New(c, selector, receiver.WithProgress(progress.New(snaps)))

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, receiver.ErrTransferFailed)
	assert.Equal(t, receiver.Failed, r.State())
	assert.True(t, dst.closed)
	assert.Equal(t, 0, rec.calls, "no silent fallback to memory")
	assert.True(t, snaps.all[len(snaps.all)-1].Failed)
	assert.Len(t, c.inbound, 1, "frames after the failure are not processed")
}

// syncFailingDest accepts writes but cannot be flushed to stable storage.
type syncFailingDest struct {
	bytes.Buffer
	closed bool
}

func (d *syncFailingDest) Sync() error  { return errors.New("i/o error") }
func (d *syncFailingDest) Close() error { d.closed = true; return nil }
func (d *syncFailingDest) Name() string { return "unsynced" }

func TestFinalizeFailureIsFatal(t *testing.T) {
	frames := []signal.Msg{
		signal.Metadata{Filename: "f.bin", Filesize: 3},
		signal.Chunk{Data: []byte("abc")},
		signal.TransferComplete{},
	}

	t.Run("memory save rejects", func(t *testing.T) {
		c := &scriptConn{}
		c.push(t, frames...)
		saves := 0
		failingSave := func(context.Context, string, []byte) (string, error) {
			saves++
			return "", errors.New("permission denied")
		}
		snaps := &snapshots{}
		completed := false
		r := receiver.New(c, storage.NewSelector(storage.Capability{}, nil, failingSave, nil),
			receiver.WithProgress(progress.New(snaps)),
			receiver.WithOnComplete(func(receiver.Result) { completed = true }))

		err := r.Run(context.Background())
		assert.ErrorIs(t, err, receiver.ErrTransferFailed)
		assert.Equal(t, receiver.Failed, r.State())
		assert.Equal(t, 1, saves)
		assert.False(t, completed)
		require.NotEmpty(t, snaps.all)
		assert.True(t, snaps.all[len(snaps.all)-1].Failed)
	})

	t.Run("streaming sync rejects", func(t *testing.T) {
		c := &scriptConn{}
		c.push(t, frames...)
		dst := &syncFailingDest{}
		rec := &saveRecorder{}
		snaps := &snapshots{}
		completed := false
		selector := storage.NewSelector(storage.Capability{StreamingSave: true, Trusted: true}, destPicker{dst: dst}, rec.save, nil)
		r := receiver.New(c, selector,
			receiver.WithProgress(progress.New(snaps)),
			receiver.WithOnComplete(func(receiver.Result) { completed = true }))

		err := r.Run(context.Background())
		assert.ErrorIs(t, err, receiver.ErrTransferFailed)
		assert.Equal(t, receiver.Failed, r.State())
		assert.Equal(t, "abc", dst.String())
		assert.True(t, dst.closed)
		assert.Equal(t, 0, rec.calls)
		assert.False(t, completed)
		require.NotEmpty(t, snaps.all)
		assert.True(t, snaps.all[len(snaps.all)-1].Failed)
	})
}

func TestConnectionLostMidTransfer(t *testing.T) {
	c := &scriptConn{readErr: errors.New("connection reset")}
	c.push(t,
		signal.Metadata{Filename: "h", Filesize: 10},
		signal.Chunk{Data: []byte("abc")},
	)
	rec := &saveRecorder{}
	r := receiver.New(c, memorySelector(rec))

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, receiver.ErrTransferFailed)
	assert.Equal(t, receiver.Failed, r.State())
	assert.Equal(t, 0, rec.calls)
}

type clipRecorder struct {
	texts []string
}

func (c *clipRecorder) Update(text string) error {
	c.texts = append(c.texts, text)
	return nil
}

func TestClipboard(t *testing.T) {
	c := &scriptConn{}
	c.push(t, signal.ClipboardUpdate{Text: "hello"})
	clip := &clipRecorder{}
	r := receiver.New(c, memorySelector(&saveRecorder{}), receiver.WithClipboard(clip))
	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, []string{"hello"}, clip.texts)
}

func TestAnyChunking(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		payload := make([]byte, rng.Intn(5000))
		rng.Read(payload)

		c := &scriptConn{}
		c.push(t, signal.Metadata{Filename: "p.bin", Filesize: int64(len(payload))})
		for rest := payload; len(rest) > 0; {
			n := 1 + rng.Intn(len(rest))
			c.push(t, signal.Chunk{Data: rest[:n]})
			rest = rest[n:]
		}
		c.push(t, signal.TransferComplete{})

		rec := &saveRecorder{}
		var res receiver.Result
		r := receiver.New(c, memorySelector(rec), receiver.WithOnComplete(func(r receiver.Result) { res = r }))
		require.NoError(t, r.Run(context.Background()))
		assert.Equal(t, int64(len(payload)), res.Size)
		assert.True(t, bytes.Equal(payload, rec.data))
	}
}
