package apply

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wabain/git-entropy/internal/amend"
	"github.com/wabain/git-entropy/internal/errs"
	"github.com/wabain/git-entropy/internal/gitwire"
	"github.com/wabain/git-entropy/internal/oid"
)

// commitRewriteRequest is one item on the worker's queue: the concrete
// data a previously-issued commit handle refers to.
type commitRewriteRequest struct {
	handle  amend.RewriteHandle
	commit  oid.OID
	parents []amend.ParentRef
	blobs   []*amend.AmendedBlob[amend.RewriteHandle]
}

// commitFuture is a single-assignment result cell, resolved exactly once
// by whichever goroutine finishes (or cancels) the corresponding task.
type commitFuture struct {
	done chan struct{}
	once sync.Once
	oid  oid.OID
	err  error
}

func newCommitFuture() *commitFuture {
	return &commitFuture{done: make(chan struct{})}
}

func (f *commitFuture) resolve(o oid.OID, err error) {
	f.once.Do(func() {
		f.oid, f.err = o, err
		close(f.done)
	})
}

func (f *commitFuture) wait(ctx context.Context) (oid.OID, error) {
	select {
	case <-f.done:
		return f.oid, f.err
	case <-ctx.Done():
		return oid.Zero, ctx.Err()
	}
}

// blobFuture is the same single-assignment pattern for a materialized
// blob's new OID, keyed by blob handle for at-most-once writing.
type blobFuture struct {
	done chan struct{}
	once sync.Once
	oid  oid.OID
	err  error
}

func newBlobFuture() *blobFuture { return &blobFuture{done: make(chan struct{})} }

func (f *blobFuture) resolve(o oid.OID, err error) {
	f.once.Do(func() {
		f.oid, f.err = o, err
		close(f.done)
	})
}

func (f *blobFuture) wait(ctx context.Context) (oid.OID, error) {
	select {
	case <-f.done:
		return f.oid, f.err
	case <-ctx.Done():
		return oid.Zero, ctx.Err()
	}
}

// commitTask is the per-handle unit of work: dataCh delivers the request
// once the worker dequeues it (or it's spawned already knowing the data,
// when resolveCommitHandle races ahead of the queue), and future carries
// the eventual result to every caller awaiting this handle.
type commitTask struct {
	dataCh chan commitRewriteRequest
	future *commitFuture
}

// worker is the single goroutine that pops requests off the bounded
// queue in FIFO order and spawns a commit task for each, mirroring
// GitBackendWorker's asyncio.Queue(maxsize=100) + single _run() task.
type worker struct {
	repo  Repo
	queue chan commitRewriteRequest

	ctx      context.Context
	cancelFn context.CancelFunc

	mu          sync.Mutex
	commitTasks map[amend.RewriteHandle]*commitTask
	blobTasks   map[amend.RewriteHandle]*blobFuture

	fatalOnce sync.Once
	fatalErr  error
	fatalCh   chan struct{}

	dispatchWG sync.WaitGroup
	wg         sync.WaitGroup
}

// DefaultQueueCapacity is the bounded queue depth used when the caller
// doesn't have a more specific value from config.
const DefaultQueueCapacity = 100

func newWorker(repo Repo, queueCapacity int) *worker {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &worker{
		repo:        repo,
		queue:       make(chan commitRewriteRequest, queueCapacity),
		ctx:         ctx,
		cancelFn:    cancel,
		commitTasks: map[amend.RewriteHandle]*commitTask{},
		blobTasks:   map[amend.RewriteHandle]*blobFuture{},
		fatalCh:     make(chan struct{}),
	}
}

func (w *worker) launch() {
	w.wg.Add(1)
	go w.run()
}

// dieOnError records the first fatal error seen by any task and cancels
// everything in flight, the way _die_on_error propagates a single fatal
// exception to every pending future.
func (w *worker) dieOnError(err error) {
	if err == nil {
		return
	}
	w.fatalOnce.Do(func() {
		logrus.Errorf("apply backend: fatal error, cancelling in-flight work: %v", err)
		w.fatalErr = err
		close(w.fatalCh)
		w.cancel()
	})
}

func (w *worker) cancel() {
	w.cancelFn()
}

// scheduleCommitRewrite enqueues a request, blocking for backpressure
// when the queue is full, and failing fast if the backend has already
// died. dispatchWG tracks outstanding enqueued-but-not-yet-dequeued
// requests, for join.
func (w *worker) scheduleCommitRewrite(
	ctx context.Context,
	handle amend.RewriteHandle,
	commit oid.OID,
	parents []amend.ParentRef,
	blobs []*amend.AmendedBlob[amend.RewriteHandle],
) error {
	req := commitRewriteRequest{handle: handle, commit: commit, parents: parents, blobs: blobs}
	w.dispatchWG.Add(1)
	select {
	case w.queue <- req:
		return nil
	case <-w.fatalCh:
		w.dispatchWG.Done()
		return w.fatalErr
	case <-ctx.Done():
		w.dispatchWG.Done()
		return ctx.Err()
	}
}

// join waits for the queue to drain and every commit task spawned so far
// to finish. In normal use the branch rebuilder has already resolved the
// head commit's handle before calling join, which transitively waits on
// every ancestor task via resolveCommitHandle's parent-resolution fan-out.
// join's own wait is therefore a formality covering any task nothing
// else happened to depend on.
func (w *worker) join(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		w.dispatchWG.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-w.fatalCh:
		return w.fatalErr
	case <-ctx.Done():
		return ctx.Err()
	}

	w.mu.Lock()
	tasks := make([]*commitTask, 0, len(w.commitTasks))
	for _, t := range w.commitTasks {
		tasks = append(tasks, t)
	}
	w.mu.Unlock()

	for _, t := range tasks {
		if _, err := t.future.wait(ctx); err != nil {
			return err
		}
	}

	select {
	case <-w.fatalCh:
		return w.fatalErr
	default:
		return nil
	}
}

func (w *worker) run() {
	defer w.wg.Done()
	for {
		select {
		case req := <-w.queue:
			task := w.taskFor(req.handle)
			select {
			case task.dataCh <- req:
			default:
				// Already delivered; a handle is only ever enqueued once.
			}
			w.dispatchWG.Done()
		case <-w.ctx.Done():
			return
		}
	}
}

// taskFor returns the commitTask for handle, spawning its goroutine on
// first reference whether that reference comes from the queue or from an
// eager resolveCommitHandle call racing ahead of it.
func (w *worker) taskFor(handle amend.RewriteHandle) *commitTask {
	w.mu.Lock()
	defer w.mu.Unlock()

	if task, ok := w.commitTasks[handle]; ok {
		return task
	}

	task := &commitTask{dataCh: make(chan commitRewriteRequest, 1), future: newCommitFuture()}
	w.commitTasks[handle] = task
	logrus.Debugf("apply backend: spawning commit task for handle %v", handle)
	go w.processCommit(task)
	return task
}

func (w *worker) resolveCommitHandle(ctx context.Context, handle amend.RewriteHandle) (oid.OID, error) {
	task := w.taskFor(handle)
	return task.future.wait(ctx)
}

func (w *worker) processCommit(task *commitTask) {
	var req commitRewriteRequest
	select {
	case req = <-task.dataCh:
	case <-w.ctx.Done():
		task.future.resolve(oid.Zero, w.ctx.Err())
		return
	}

	o, err := w.processRewriteRequest(w.ctx, req)
	if err != nil {
		w.dieOnError(err)
	}
	task.future.resolve(o, err)
}

func (w *worker) processRewriteRequest(ctx context.Context, req commitRewriteRequest) (oid.OID, error) {
	resolvedBlobs := make([]*amend.AmendedBlob[oid.OID], len(req.blobs))

	g, gctx := errgroup.WithContext(ctx)
	for i, blob := range req.blobs {
		i, blob := i, blob
		g.Go(func() error {
			o, err := w.resolveBlob(gctx, blob)
			if err != nil {
				return err
			}
			resolvedBlobs[i] = amend.WithRewriteData(blob, o)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return oid.Zero, err
	}

	commitMeta, err := w.repo.CatFileCommit(ctx, req.commit)
	if err != nil {
		return oid.Zero, err
	}

	newTree, err := w.writeTree(ctx, req.commit, commitMeta, resolvedBlobs)
	if err != nil {
		return oid.Zero, err
	}

	newParents := make([]oid.OID, len(req.parents))
	g, gctx = errgroup.WithContext(ctx)
	for i, parent := range req.parents {
		i, parent := i, parent
		g.Go(func() error {
			if parent.Handle == nil {
				newParents[i] = parent.OID
				return nil
			}
			o, err := w.resolveCommitHandle(gctx, *parent.Handle)
			if err != nil {
				return err
			}
			newParents[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return oid.Zero, err
	}

	return w.repo.CommitTree(ctx, newTree, newParents, commitMeta.Author, commitMeta.Committer, commitMeta.Message)
}

// resolveBlob materializes blob's handle at most once: the first caller
// to observe a handle with no in-flight future writes the blob and
// resolves the future; every other caller, including ones from other
// commit tasks that reused the same handle via fast-forward reuse, waits
// on that single future.
func (w *worker) resolveBlob(ctx context.Context, blob *amend.AmendedBlob[amend.RewriteHandle]) (oid.OID, error) {
	handle := blob.RewriteData

	w.mu.Lock()
	future, exists := w.blobTasks[handle]
	if !exists {
		future = newBlobFuture()
		w.blobTasks[handle] = future
	}
	w.mu.Unlock()

	if exists {
		return future.wait(ctx)
	}

	o, err := w.writeBlob(ctx, blob)
	if err != nil {
		logrus.Debugf("apply backend: writing blob for handle %v failed: %v", handle, err)
	}
	future.resolve(o, err)
	return o, err
}

func (w *worker) writeBlob(ctx context.Context, blob *amend.AmendedBlob[amend.RewriteHandle]) (oid.OID, error) {
	r, wr := io.Pipe()
	errCh := make(chan error, 1)
	go func() {
		err := blob.Write(ctx, repoBlobReader{w.repo}, wr)
		wr.CloseWithError(err)
		errCh <- err
	}()

	o, hashErr := w.repo.HashObjectBlob(ctx, r)
	if writeErr := <-errCh; writeErr != nil {
		return oid.Zero, writeErr
	}
	if hashErr != nil {
		return oid.Zero, hashErr
	}
	return o, nil
}

// repoBlobReader adapts Repo to amend.BlobReader, the narrow interface
// AmendedBlob.Write needs to fetch the source blob it's splicing into.
type repoBlobReader struct {
	repo Repo
}

func (r repoBlobReader) CatFileBlob(ctx context.Context, blob oid.OID) (io.ReadCloser, error) {
	return r.repo.CatFileBlob(ctx, blob)
}

var _ amend.BlobReader = repoBlobReader{}

// writeTree rebuilds the commit's tree with resolvedBlobs spliced in,
// walking ancestor directories deepest-first so each rebuilt subtree OID
// is available when its parent directory is rebuilt.
func (w *worker) writeTree(
	ctx context.Context,
	commit oid.OID,
	commitMeta *gitwire.CommitMeta,
	resolvedBlobs []*amend.AmendedBlob[oid.OID],
) (oid.OID, error) {
	if len(resolvedBlobs) == 0 {
		return commitMeta.Tree, nil
	}

	newBlobs := map[string]oid.OID{}
	for _, b := range resolvedBlobs {
		newBlobs[b.File] = b.RewriteData
	}

	dirSet := map[string]struct{}{}
	for path := range newBlobs {
		for subdir := dirName(path); subdir != ""; subdir = dirName(subdir) {
			dirSet[subdir] = struct{}{}
		}
	}

	dirs := make([]string, 0, len(dirSet))
	for d := range dirSet {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool {
		ci, cj := strings.Count(dirs[i], "/"), strings.Count(dirs[j], "/")
		if ci != cj {
			return ci > cj
		}
		return dirs[i] > dirs[j]
	})
	dirs = append(dirs, ".")

	for _, subdir := range dirs {
		entries, err := w.repo.LsTree(ctx, commit.String(), false, subdir+"/")
		if err != nil {
			return oid.Zero, errs.Wrap(err, "rebuilding tree at %q", subdir)
		}

		rebuilt := make([]gitwire.TreeEntry, len(entries))
		for i, entry := range entries {
			updated := entry.OID
			if o, ok := newBlobs[entry.Path]; ok {
				updated = o
			}
			rebuilt[i] = gitwire.TreeEntry{
				Mode: entry.Mode,
				Kind: entry.Kind,
				OID:  updated,
				Path: baseName(entry.Path),
			}
		}

		treeOID, err := w.repo.MkTree(ctx, rebuilt)
		if err != nil {
			return oid.Zero, errs.Wrap(err, "rebuilding tree at %q", subdir)
		}
		newBlobs[subdir] = treeOID
	}

	return newBlobs["."], nil
}

func dirName(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return ""
	}
	return p[:idx]
}

func baseName(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return p
	}
	return p[idx+1:]
}

