package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/pkg/errors"
)

// State is the lifecycle state of an upload.
type State int

const (
	StateIdle State = iota
	StateSessionRequested
	StateUploading
	StateAwaitingCompletion
	StateCompleted
	StateFailed
	StateCancelled
)

var stateNames = map[State]string{
	StateIdle:               "idle",
	StateSessionRequested:   "session requested",
	StateUploading:          "uploading",
	StateAwaitingCompletion: "awaiting completion",
	StateCompleted:          "completed",
	StateFailed:             "failed",
	StateCancelled:          "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Callbacks are invoked by the controller as an upload makes progress.
// OnProgress calls are serialized and never observe a lower percentage than
// the previous call. Exactly one of OnComplete and OnError is called per upload.
type Callbacks struct {
	OnProgress func(Progress)
	OnComplete func(resourceID string)
	OnError    func(err *Error)
}

// Controller drives one upload at a time through its lifecycle.
type Controller struct {
	backend  Backend
	transfer *Transferer
	cfg      Config

	mu     sync.Mutex
	state  State
	active *Handle
}

func NewController(backend Backend, client *http.Client, cfg Config) *Controller {
	cfg = cfg.withDefaults()
	return &Controller{
		backend:  backend,
		transfer: NewTransferer(client, cfg.PartTimeout),
		cfg:      cfg,
	}
}

// State returns the state of the active upload, or of the last one when idle.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start validates the file and begins uploading it in the background.
// Cancelling ctx has the same effect as Handle.Cancel.
func (c *Controller) Start(ctx context.Context, file *File, cb Callbacks) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil, &Error{Kind: KindUploadInProgress, Message: fmt.Sprintf("upload of %s is %s", c.active.file.Name, c.state)}
	}
	if err := file.validate(c.cfg.MaxFileSize); err != nil {
		return nil, err
	}

	gate, cancel := context.WithCancel(ctx)
	h := &Handle{
		c:      c,
		file:   file,
		cb:     cb,
		ctx:    gate,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateSessionRequested,
	}
	c.active = h
	c.state = StateSessionRequested
	go h.run()
	return h, nil
}

// Handle is a running upload.
type Handle struct {
	c    *Controller
	file *File
	cb   Callbacks

	// Cancelled to stop launching new parts.
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	notifyMu sync.Mutex

	mu         sync.Mutex
	state      State
	sessionID  string
	tracker    *Tracker
	resourceID string
	err        *Error
}

// Cancel stops the upload. Parts in flight finish, no new parts are started
// and the session is released. It has no effect once the upload is finished.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed when the upload reached a final state and callbacks returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the upload is finished and returns the resource ID.
func (h *Handle) Wait() (string, error) {
	<-h.done
	if h.err != nil {
		return "", h.err
	}
	return h.resourceID, nil
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) SessionID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessionID
}

// Progress returns the current aggregate progress.
func (h *Handle) Progress() Progress {
	h.mu.Lock()
	tracker := h.tracker
	h.mu.Unlock()
	if tracker == nil {
		return Progress{}
	}
	return tracker.Progress()
}

func (h *Handle) run() {
	defer h.cancel()
	id, err := h.upload()
	h.finish(id, err)
}

func (h *Handle) upload() (string, *Error) {
	c := h.c
	// Backend calls are not interrupted by cancellation.
	work := context.WithoutCancel(h.ctx)

	sess, err := c.backend.Initiate(work, InitiateRequest{
		Filename:    h.file.Name,
		ContentType: h.file.ContentType,
		TotalSize:   h.file.Size,
		PartSize:    c.cfg.PartSize,
	})
	if err != nil {
		h.setState(StateIdle)
		return "", backendError(KindSessionRequestFailed, err)
	}
	h.mu.Lock()
	h.sessionID = sess.ID
	h.mu.Unlock()

	parts := Plan(h.file.Size, sess.PartSize)
	if err := checkSession(sess, parts); err != nil {
		h.release(sess.ID)
		h.setState(StateIdle)
		return "", err
	}
	if h.ctx.Err() != nil {
		return "", h.cancelled(sess.ID)
	}

	tracker := NewTracker(len(parts))
	h.mu.Lock()
	h.tracker = tracker
	h.mu.Unlock()
	h.setState(StateUploading)
	h.notify()

	tasks := make([]Task[int64], len(parts))
	for i, p := range parts {
		p, url := p, sess.URLs[p.Number]
		tasks[i] = func(ctx context.Context) (int64, error) {
			return p.Number, h.transferPart(ctx, url, p, tracker)
		}
	}
	if _, err := RunAll(h.ctx, c.cfg.MaxConcurrent, tasks); err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return "", h.cancelled(sess.ID)
		}
		h.release(sess.ID)
		h.setState(StateFailed)
		return "", e
	}
	if h.ctx.Err() != nil {
		return "", h.cancelled(sess.ID)
	}

	tags, ok := tracker.Tags()
	if !ok {
		h.release(sess.ID)
		h.setState(StateFailed)
		return "", &Error{Kind: KindTransferError, Message: "not every part was uploaded"}
	}

	h.setState(StateAwaitingCompletion)
	id, err := c.backend.Complete(work, sess.ID, int64(len(parts)), tags)
	if err != nil {
		h.release(sess.ID)
		h.setState(StateFailed)
		return "", backendError(KindCompletionFailed, err)
	}
	return id, nil
}

func (h *Handle) transferPart(ctx context.Context, url string, p Part, tracker *Tracker) error {
	tracker.Start(p.Number)
	h.notify()

	body := io.NewSectionReader(h.file.Body, p.Start, p.Length)
	tag, err := h.c.transfer.Transfer(ctx, url, body, p.Length, h.file.ContentType, func(percent int) {
		tracker.SetPercent(p.Number, percent)
		h.notify()
	})
	if err != nil {
		tracker.Fail(p.Number)
		h.notify()
		h.c.cfg.Logger.Printf("failed to upload part %d (%s): %v", p.Number, p.ContentRange(h.file.Size), err)
		return partError(err, p.Number)
	}
	tracker.Complete(p.Number, tag)
	h.notify()
	return nil
}

func (h *Handle) cancelled(sessionID string) *Error {
	h.release(sessionID)
	h.setState(StateCancelled)
	return &Error{Kind: KindCancelled, Message: "upload was cancelled", cause: context.Cause(h.ctx)}
}

// Release the session on a best-effort basis.
func (h *Handle) release(sessionID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(h.ctx), h.c.cfg.ReleaseTimeout)
	defer cancel()
	if err := h.c.backend.Cancel(ctx, sessionID); err != nil {
		h.c.cfg.Logger.Printf("failed to release upload session %s: %v", sessionID, err)
	}
}

func (h *Handle) notify() {
	if h.cb.OnProgress == nil {
		return
	}
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()
	h.cb.OnProgress(h.Progress())
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()

	h.c.mu.Lock()
	h.c.state = s
	h.c.mu.Unlock()
}

func (h *Handle) finish(id string, err *Error) {
	h.mu.Lock()
	h.resourceID, h.err = id, err
	if err == nil {
		h.state = StateCompleted
	}
	state := h.state
	h.mu.Unlock()

	h.c.mu.Lock()
	h.c.state = state
	h.c.active = nil
	h.c.mu.Unlock()

	if err == nil {
		h.c.cfg.Logger.Printf("upload of %s completed as %s", h.file.Name, id)
		if h.cb.OnComplete != nil {
			h.cb.OnComplete(id)
		}
	} else {
		h.c.cfg.Logger.Printf("upload of %s ended %s: %v", h.file.Name, state, err)
		if h.cb.OnError != nil {
			h.cb.OnError(err)
		}
	}
	close(h.done)
}

// A session must hold one destination URL for every planned part.
func checkSession(sess *Session, parts []Part) *Error {
	if len(parts) == 0 || sess.TotalParts != int64(len(parts)) {
		return &Error{Kind: KindSessionRequestFailed, Message: fmt.Sprintf("session has %d parts of %d bytes, which does not match the file", sess.TotalParts, sess.PartSize)}
	}
	for _, p := range parts {
		if sess.URLs[p.Number] == "" {
			return &Error{Kind: KindSessionRequestFailed, Message: fmt.Sprintf("session has no URL for part %d", p.Number)}
		}
	}
	return nil
}
