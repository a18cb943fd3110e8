package systems

import (
	stderrors "errors"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/spaghettifunk/prism/engine/containers"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// UploadStats counts the requests enqueued since the system was created.
type UploadStats struct {
	BufferUploads  int64
	TextureUploads int64
	Builds         int64
	Flushed        int64
	Cancelled      int64
}

// UploadSystem defers every buffer write, texture write and acceleration structure
// build until Flush, then executes them on the job system. It implements renderer.Uploader.
type UploadSystem struct {
	backend   renderer.RendererBackend
	jobSystem *JobSystem
	metrics   *core.LoadMetrics
	events    *core.EventBus

	mutex   sync.Mutex
	pending *containers.RingQueue[*metadata.UploadRequest]
	// serializes Flush calls
	flushMutex sync.Mutex

	bufferUploads  atomic.Int64
	textureUploads atomic.Int64
	builds         atomic.Int64
	flushed        atomic.Int64
	cancelled      atomic.Int64
}

var _ renderer.Uploader = (*UploadSystem)(nil)

// NewUploadSystem wires the upload queue to a backend and a worker pool. metrics and
// events may be nil.
func NewUploadSystem(backend renderer.RendererBackend, js *JobSystem, metrics *core.LoadMetrics, events *core.EventBus) *UploadSystem {
	return &UploadSystem{
		backend:   backend,
		jobSystem: js,
		metrics:   metrics,
		events:    events,
		pending:   containers.NewRingQueue[*metadata.UploadRequest](64),
	}
}

func (us *UploadSystem) enqueue(req *metadata.UploadRequest) {
	us.mutex.Lock()
	defer us.mutex.Unlock()
	us.pending.Enqueue(req)
}

func (us *UploadSystem) EnqueueBufferUpload(data []byte, buffer *metadata.Buffer) {
	owned := make([]byte, len(data))
	copy(owned, data)
	us.bufferUploads.Add(1)
	us.enqueue(&metadata.UploadRequest{
		Type:   metadata.UploadRequestBuffer,
		Buffer: buffer,
		Data:   owned,
	})
}

func (us *UploadSystem) EnqueueTextureUpload(pixels []uint8, texture *metadata.Texture) {
	owned := make([]byte, len(pixels))
	copy(owned, pixels)
	us.textureUploads.Add(1)
	us.enqueue(&metadata.UploadRequest{
		Type:    metadata.UploadRequestTexture,
		Texture: texture,
		Data:    owned,
	})
}

func (us *UploadSystem) EnqueueAccelerationStructureBuild(as *metadata.AccelerationStructure) {
	us.builds.Add(1)
	us.enqueue(&metadata.UploadRequest{
		Type:      metadata.UploadRequestAccelerationStructure,
		Structure: as,
	})
}

// Pending is the number of requests waiting for the next Flush.
func (us *UploadSystem) Pending() int {
	us.mutex.Lock()
	defer us.mutex.Unlock()
	return us.pending.Len()
}

func (us *UploadSystem) Stats() UploadStats {
	return UploadStats{
		BufferUploads:  us.bufferUploads.Load(),
		TextureUploads: us.textureUploads.Load(),
		Builds:         us.builds.Load(),
		Flushed:        us.flushed.Load(),
		Cancelled:      us.cancelled.Load(),
	}
}

// CancelPending removes queued requests whose target is one of resources. Requests of
// a flush already in progress are not affected.
func (us *UploadSystem) CancelPending(resources ...interface{}) int {
	targets := make(map[interface{}]struct{}, len(resources))
	for _, r := range resources {
		switch v := r.(type) {
		case *metadata.Buffer:
			if v != nil {
				targets[v] = struct{}{}
			}
		case *metadata.Texture:
			if v != nil {
				targets[v] = struct{}{}
			}
		case *metadata.AccelerationStructure:
			if v != nil {
				targets[v] = struct{}{}
			}
		}
	}
	if len(targets) == 0 {
		return 0
	}

	us.mutex.Lock()
	defer us.mutex.Unlock()
	dropped := 0
	for _, req := range us.pending.Drain() {
		if _, ok := targets[requestTarget(req)]; ok {
			dropped++
			continue
		}
		us.pending.Enqueue(req)
	}
	us.cancelled.Add(int64(dropped))
	return dropped
}

func requestTarget(req *metadata.UploadRequest) interface{} {
	switch req.Type {
	case metadata.UploadRequestBuffer:
		return req.Buffer
	case metadata.UploadRequestTexture:
		return req.Texture
	}
	return req.Structure
}

// Flush executes every pending request. Data uploads run first, then bottom level
// builds, then top level builds, so each stage only ever reads what the previous
// stages produced. All failures are returned joined together.
func (us *UploadSystem) Flush() error {
	us.flushMutex.Lock()
	defer us.flushMutex.Unlock()

	us.mutex.Lock()
	requests := us.pending.Drain()
	us.mutex.Unlock()

	if len(requests) == 0 {
		return nil
	}

	clock := core.NewClock()
	clock.Start()

	var uploads, bottom, top []*metadata.UploadRequest
	for _, req := range requests {
		switch {
		case req.Type != metadata.UploadRequestAccelerationStructure:
			uploads = append(uploads, req)
		case req.Structure != nil && req.Structure.Level == metadata.AccelerationStructureTop:
			top = append(top, req)
		default:
			bottom = append(bottom, req)
		}
	}

	var errs []error
	for _, stage := range [][]*metadata.UploadRequest{uploads, bottom, top} {
		errs = append(errs, us.runStage(stage)...)
	}

	clock.Update()
	elapsed := clock.Elapsed()
	us.flushed.Add(int64(len(requests)))
	if us.metrics != nil {
		us.metrics.RecordFlush(elapsed)
	}
	core.LogDebug("flushed %d upload requests (%d uploads, %d BLAS, %d TLAS) in %s", len(requests), len(uploads), len(bottom), len(top), elapsed)

	if us.events != nil {
		ctx := core.EventContext{}
		ctx.Data.U64[0] = uint64(len(requests))
		ctx.Data.I64[0] = int64(elapsed)
		us.events.Fire(core.EventCodeUploadsFlushed, us, ctx)
	}

	return stderrors.Join(errs...)
}

func (us *UploadSystem) runStage(stage []*metadata.UploadRequest) []error {
	if len(stage) == 0 {
		return nil
	}

	var (
		wg       sync.WaitGroup
		errMutex sync.Mutex
		errs     []error
	)
	wg.Add(len(stage))
	for _, req := range stage {
		us.jobSystem.Submit(metadata.JobTask{
			JobType:     metadata.JobTypeGPUResource,
			Priority:    metadata.JobPriorityHigh,
			InputParams: req,
			OnStart: func(params interface{}) error {
				return us.execute(params.(*metadata.UploadRequest))
			},
			OnFailure: func(params interface{}, err error) {
				errMutex.Lock()
				errs = append(errs, err)
				errMutex.Unlock()
			},
			OnCompletionCallback: wg.Done,
		})
	}
	wg.Wait()
	return errs
}

func (us *UploadSystem) execute(req *metadata.UploadRequest) error {
	switch req.Type {
	case metadata.UploadRequestBuffer:
		if req.Buffer == nil {
			return errors.Wrap(core.ErrInvalidResource, "buffer upload without a buffer")
		}
		return errors.Wrapf(us.backend.BufferWrite(req.Buffer, 0, req.Data), "upload of buffer '%s'", req.Buffer.Name)
	case metadata.UploadRequestTexture:
		if req.Texture == nil {
			return errors.Wrap(core.ErrInvalidResource, "texture upload without a texture")
		}
		return errors.Wrapf(us.backend.TextureWriteData(req.Texture, req.Data), "upload of texture '%s'", req.Texture.Name())
	case metadata.UploadRequestAccelerationStructure:
		if req.Structure == nil {
			return errors.Wrap(core.ErrInvalidResource, "build without an acceleration structure")
		}
		return errors.Wrapf(us.backend.AccelerationStructureBuild(req.Structure), "build of %s '%s'", req.Structure.Level, req.Structure.Name)
	}
	return errors.Wrapf(core.ErrUnknown, "upload request type %d", req.Type)
}
