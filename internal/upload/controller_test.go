package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/molpadia/molpareplay/internal/httprange"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = "aaaaabbbbbcc"

// Storage that accepts part uploads on /part/{n}.
type fakeStorage struct {
	mu       sync.Mutex
	bodies   map[int64]string
	tags     map[int64]string
	noTag    map[int64]bool
	statuses map[int64]int
	gate     map[int64]chan struct{}
	onArrive func(n int64)
	inFlight int32
	peak     int32
	srv      *httptest.Server
}

func newFakeStorage(t *testing.T) *fakeStorage {
	s := &fakeStorage{
		bodies:   map[int64]string{},
		tags:     map[int64]string{1: "a", 2: "b", 3: "c"},
		noTag:    map[int64]bool{},
		statuses: map[int64]int{},
		gate:     map[int64]chan struct{}{},
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *fakeStorage) serve(w http.ResponseWriter, r *http.Request) {
	cur := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		old := atomic.LoadInt32(&s.peak)
		if cur <= old || atomic.CompareAndSwapInt32(&s.peak, old, cur) {
			break
		}
	}

	n, _ := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/part/"), 10, 64)
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	gate, status, tag := s.gate[n], s.statuses[n], s.tags[n]
	if tag == "" {
		tag = fmt.Sprintf("etag-%d", n)
	}
	if s.noTag[n] {
		tag = ""
	}
	onArrive := s.onArrive
	s.mu.Unlock()

	if onArrive != nil {
		onArrive(n)
	}
	if gate != nil {
		<-gate
	}
	if status != 0 {
		w.WriteHeader(status)
		io.WriteString(w, "storage unavailable")
		return
	}

	s.mu.Lock()
	s.bodies[n] = string(body)
	s.mu.Unlock()
	if tag != "" {
		w.Header().Set("ETag", `"`+tag+`"`)
	}
}

func (s *fakeStorage) received() map[int64]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]string, len(s.bodies))
	for k, v := range s.bodies {
		out[k] = v
	}
	return out
}

type completeCall struct {
	sessionID  string
	totalParts int64
	tags       map[int64]string
}

type fakeBackend struct {
	mu          sync.Mutex
	storageURL  string
	partSize    int64
	skipURL     int64
	initiateErr error
	completeErr error
	initiated   []InitiateRequest
	completed   []completeCall
	cancelled   []string
}

func (b *fakeBackend) Initiate(ctx context.Context, req InitiateRequest) (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initiated = append(b.initiated, req)
	if b.initiateErr != nil {
		return nil, b.initiateErr
	}
	total := httprange.Count(req.TotalSize, b.partSize)
	urls := make(map[int64]string, total)
	for n := int64(1); n <= total; n++ {
		if n != b.skipURL {
			urls[n] = fmt.Sprintf("%s/part/%d", b.storageURL, n)
		}
	}
	return &Session{ID: "1", PartSize: b.partSize, TotalParts: total, URLs: urls}, nil
}

func (b *fakeBackend) Complete(ctx context.Context, sessionID string, totalParts int64, tags map[int64]string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completed = append(b.completed, completeCall{sessionID, totalParts, tags})
	if b.completeErr != nil {
		return "", b.completeErr
	}
	return "video-" + sessionID, nil
}

func (b *fakeBackend) Cancel(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, sessionID)
	return nil
}

func (b *fakeBackend) calls() (initiated, completed, cancelled int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.initiated), len(b.completed), len(b.cancelled)
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...interface{}) {}

func newTestController(t *testing.T, maxConcurrent int) (*Controller, *fakeBackend, *fakeStorage) {
	storage := newFakeStorage(t)
	backend := &fakeBackend{storageURL: storage.srv.URL, partSize: 5}
	c := NewController(backend, storage.srv.Client(), Config{
		PartSize:      5,
		MaxConcurrent: maxConcurrent,
		PartTimeout:   5 * time.Second,
		Logger:        discardLogger{},
	})
	return c, backend, storage
}

func newTestFile() *File {
	return &File{Name: "replay.mp4", ContentType: "video/mp4", Size: int64(len(payload)), Body: strings.NewReader(payload)}
}

// Collects callback invocations of a single upload.
type recorder struct {
	mu       sync.Mutex
	progress []Progress
	complete []string
	errs     []*Error
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnProgress: func(p Progress) {
			r.mu.Lock()
			r.progress = append(r.progress, p)
			r.mu.Unlock()
		},
		OnComplete: func(id string) {
			r.mu.Lock()
			r.complete = append(r.complete, id)
			r.mu.Unlock()
		},
		OnError: func(err *Error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("upload did not finish")
	}
}

func TestControllerUpload(t *testing.T) {
	c, backend, storage := newTestController(t, 3)
	rec := &recorder{}

	h, err := c.Start(context.Background(), newTestFile(), rec.callbacks())
	require.NoError(t, err)
	waitDone(t, h)

	id, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, "video-1", id)
	assert.Equal(t, StateCompleted, h.State())
	assert.Equal(t, StateCompleted, c.State())
	assert.Equal(t, "1", h.SessionID())

	assert.Equal(t, []InitiateRequest{{Filename: "replay.mp4", ContentType: "video/mp4", TotalSize: 12, PartSize: 5}}, backend.initiated)
	assert.Equal(t, []completeCall{{"1", 3, map[int64]string{1: "a", 2: "b", 3: "c"}}}, backend.completed)
	assert.Empty(t, backend.cancelled)
	assert.Equal(t, map[int64]string{1: "aaaaa", 2: "bbbbb", 3: "cc"}, storage.received())

	assert.Equal(t, []string{"video-1"}, rec.complete)
	assert.Empty(t, rec.errs)
	require.NotEmpty(t, rec.progress)
	for i, p := range rec.progress {
		if i > 0 {
			assert.GreaterOrEqual(t, p.Percent, rec.progress[i-1].Percent)
		}
		if p.Percent == 100 {
			assert.Equal(t, p.Total, p.Completed)
		}
	}
	last := rec.progress[len(rec.progress)-1]
	assert.Equal(t, 100.0, last.Percent)
	assert.Equal(t, 3, last.Completed)
	assert.Equal(t, 100.0, h.Progress().Percent)
}

func TestControllerConcurrencyBound(t *testing.T) {
	for _, limit := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			c, backend, storage := newTestController(t, limit)
			backend.partSize = 1

			h, err := c.Start(context.Background(), newTestFile(), Callbacks{})
			require.NoError(t, err)
			waitDone(t, h)

			_, err = h.Wait()
			require.NoError(t, err)
			assert.Len(t, storage.received(), len(payload))
			assert.LessOrEqual(t, int(atomic.LoadInt32(&storage.peak)), limit)
		})
	}
}

func TestControllerPartFailure(t *testing.T) {
	c, backend, storage := newTestController(t, 3)
	storage.statuses[2] = http.StatusInternalServerError
	rec := &recorder{}

	h, err := c.Start(context.Background(), newTestFile(), rec.callbacks())
	require.NoError(t, err)
	waitDone(t, h)

	_, err = h.Wait()
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindTransferError, e.Kind)
	assert.Equal(t, int64(2), e.Part)
	assert.Equal(t, http.StatusInternalServerError, e.StatusCode)
	assert.Equal(t, "storage unavailable", e.Body)

	assert.Equal(t, StateFailed, h.State())
	assert.Empty(t, backend.completed)
	assert.Equal(t, []string{"1"}, backend.cancelled)
	assert.Empty(t, rec.complete)
	require.Len(t, rec.errs, 1)
	assert.Same(t, e, rec.errs[0])
	for _, p := range rec.progress {
		assert.Less(t, p.Percent, 100.0)
	}
}

func TestControllerMissingConfirmationTag(t *testing.T) {
	c, backend, storage := newTestController(t, 1)
	storage.noTag[1] = true

	h, err := c.Start(context.Background(), newTestFile(), Callbacks{})
	require.NoError(t, err)
	waitDone(t, h)

	_, err = h.Wait()
	assert.Equal(t, KindMissingConfirmationTag, KindOf(err))
	assert.Equal(t, StateFailed, h.State())
	assert.Empty(t, backend.completed)
	// Fail-fast: part 1 failed before parts 2 and 3 were started.
	assert.Len(t, storage.received(), 1)
}

func TestControllerCancel(t *testing.T) {
	c, backend, storage := newTestController(t, 1)
	rec := &recorder{}

	var h *Handle
	started := make(chan struct{})
	cb := rec.callbacks()
	onProgress := cb.OnProgress
	cb.OnProgress = func(p Progress) {
		onProgress(p)
		if p.Completed == 1 {
			<-started
			h.Cancel()
		}
	}

	h, err := c.Start(context.Background(), newTestFile(), cb)
	require.NoError(t, err)
	close(started)
	waitDone(t, h)

	_, err = h.Wait()
	assert.Equal(t, KindCancelled, KindOf(err))
	assert.Equal(t, StateCancelled, h.State())
	assert.Equal(t, StateCancelled, c.State())
	assert.Equal(t, map[int64]string{1: "aaaaa"}, storage.received())
	assert.Empty(t, backend.completed)
	assert.Equal(t, []string{"1"}, backend.cancelled)
	assert.Empty(t, rec.complete)
	require.Len(t, rec.errs, 1)
	assert.Equal(t, KindCancelled, rec.errs[0].Kind)
}

func TestControllerCancelLetsInFlightPartsFinish(t *testing.T) {
	c, backend, storage := newTestController(t, 3)
	release := make(chan struct{})
	storage.gate[2] = release
	storage.gate[3] = release
	// Part 1 finishes only once parts 2 and 3 are in flight.
	first := make(chan struct{})
	storage.gate[1] = first
	var arrived int32
	storage.onArrive = func(n int64) {
		if n != 1 && atomic.AddInt32(&arrived, 1) == 2 {
			close(first)
		}
	}

	var once sync.Once
	var h *Handle
	started := make(chan struct{})
	h, err := c.Start(context.Background(), newTestFile(), Callbacks{
		OnProgress: func(p Progress) {
			if p.Completed == 1 {
				once.Do(func() {
					<-started
					h.Cancel()
					close(release)
				})
			}
		},
	})
	require.NoError(t, err)
	close(started)
	waitDone(t, h)

	_, err = h.Wait()
	assert.Equal(t, KindCancelled, KindOf(err))
	assert.Equal(t, map[int64]string{1: "aaaaa", 2: "bbbbb", 3: "cc"}, storage.received())
	assert.Empty(t, backend.completed)
	assert.Equal(t, []string{"1"}, backend.cancelled)
}

func TestControllerCancelBeforeSession(t *testing.T) {
	c, backend, storage := newTestController(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h, err := c.Start(ctx, newTestFile(), Callbacks{})
	require.NoError(t, err)
	waitDone(t, h)

	_, err = h.Wait()
	assert.Equal(t, KindCancelled, KindOf(err))
	assert.Empty(t, storage.received())
	initiated, completed, cancelled := backend.calls()
	assert.Equal(t, 1, initiated)
	assert.Zero(t, completed)
	assert.Equal(t, 1, cancelled)
}

func TestControllerSessionRequestFailed(t *testing.T) {
	c, backend, _ := newTestController(t, 3)
	backend.initiateErr = &ResponseError{StatusCode: http.StatusBadRequest, Message: "content type must be a video"}

	h, err := c.Start(context.Background(), newTestFile(), Callbacks{})
	require.NoError(t, err)
	waitDone(t, h)

	_, err = h.Wait()
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindSessionRequestFailed, e.Kind)
	assert.Equal(t, http.StatusBadRequest, e.StatusCode)
	assert.Equal(t, StateIdle, h.State())
	assert.Equal(t, StateIdle, c.State())
	_, completed, cancelled := backend.calls()
	assert.Zero(t, completed)
	assert.Zero(t, cancelled)
}

func TestControllerMalformedSession(t *testing.T) {
	c, backend, storage := newTestController(t, 3)
	backend.skipURL = 2

	h, err := c.Start(context.Background(), newTestFile(), Callbacks{})
	require.NoError(t, err)
	waitDone(t, h)

	_, err = h.Wait()
	assert.Equal(t, KindSessionRequestFailed, KindOf(err))
	assert.Empty(t, storage.received())
	assert.Equal(t, []string{"1"}, backend.cancelled)
}

func TestControllerCompletionFailed(t *testing.T) {
	c, backend, _ := newTestController(t, 3)
	backend.completeErr = errors.New("connection reset")

	h, err := c.Start(context.Background(), newTestFile(), Callbacks{})
	require.NoError(t, err)
	waitDone(t, h)

	_, err = h.Wait()
	assert.Equal(t, KindCompletionFailed, KindOf(err))
	assert.Equal(t, StateFailed, h.State())
	assert.Len(t, backend.completed, 1)
	assert.Equal(t, []string{"1"}, backend.cancelled)
}

func TestControllerUploadInProgress(t *testing.T) {
	c, _, storage := newTestController(t, 3)
	release := make(chan struct{})
	storage.gate[1] = release

	h, err := c.Start(context.Background(), newTestFile(), Callbacks{})
	require.NoError(t, err)

	_, err = c.Start(context.Background(), newTestFile(), Callbacks{})
	assert.Equal(t, KindUploadInProgress, KindOf(err))

	close(release)
	waitDone(t, h)
	_, err = h.Wait()
	require.NoError(t, err)

	// The controller accepts a new upload once the previous one finished.
	h, err = c.Start(context.Background(), newTestFile(), Callbacks{})
	require.NoError(t, err)
	waitDone(t, h)
}

func TestControllerInvalidFile(t *testing.T) {
	c, backend, _ := newTestController(t, 3)

	files := []*File{
		{Name: "notes.txt", ContentType: "text/plain", Size: 3, Body: strings.NewReader("abc")},
		{Name: "empty.mp4", ContentType: "video/mp4", Body: strings.NewReader("")},
		{Name: "huge.mp4", ContentType: "video/mp4", Size: DefaultMaxFileSize + 1, Body: strings.NewReader("")},
	}
	for _, f := range files {
		_, err := c.Start(context.Background(), f, Callbacks{})
		assert.Equal(t, KindInvalidFile, KindOf(err), f.Name)
	}
	assert.Equal(t, StateIdle, c.State())
	initiated, _, _ := backend.calls()
	assert.Zero(t, initiated)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting completion", StateAwaitingCompletion.String())
	assert.Equal(t, "state(42)", State(42).String())
}
