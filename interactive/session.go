// Package interactive runs a render loop on a dedicated goroutine that owns every device
// call for the session. The rest of the program drives it by posting updates.
package interactive

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/cadence/command"
	"github.com/vkngwrapper/cadence/device"
	"github.com/vkngwrapper/cadence/memory"
	"github.com/vkngwrapper/cadence/model"
	"github.com/vkngwrapper/cadence/pipeline"
	"github.com/vkngwrapper/cadence/swapchain"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"golang.org/x/exp/slog"
)

const (
	defaultVertexShader   = "./shader/kew.vert.spv"
	defaultFragmentShader = "./shader/kew.frag.spv"
	defaultQueueDepth     = 16

	// without vertex buffers the scene is a single triangle generated in the vertex shader
	sceneVertexCount = 3
)

type UpdateKind int

const (
	UpdateRedraw UpdateKind = iota
	UpdateResize
)

var updateKindToString = map[UpdateKind]string{
	UpdateRedraw: "UpdateRedraw",
	UpdateResize: "UpdateResize",
}

func (k UpdateKind) String() string {
	str, ok := updateKindToString[k]
	if !ok {
		return fmt.Sprintf("UpdateKind(%d)", int(k))
	}
	return str
}

type Update struct {
	Kind   UpdateKind
	Extent core1_0.Extent2D
}

func Redraw() Update {
	return Update{Kind: UpdateRedraw}
}

func Resize(extent core1_0.Extent2D) Update {
	return Update{Kind: UpdateResize, Extent: extent}
}

type Options struct {
	// VertexShader and FragmentShader are SPIR-V paths, defaulting to ./shader/kew.vert.spv
	// and ./shader/kew.frag.spv
	VertexShader   string
	FragmentShader string
	// Pipeline defaults to pipeline.DefaultGraphicsConfig. With VertexFlat the session
	// draws model.Square.
	Pipeline  *pipeline.GraphicsConfig
	Swapchain swapchain.Options
	// QueueDepth bounds the number of pending updates, 16 if unset
	QueueDepth int
}

func (o Options) withDefaults() Options {
	if o.VertexShader == "" {
		o.VertexShader = defaultVertexShader
	}
	if o.FragmentShader == "" {
		o.FragmentShader = defaultFragmentShader
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = defaultQueueDepth
	}
	return o
}

// Session is a running render loop. Post and Close may be called from any goroutine.
type Session struct {
	logger  *slog.Logger
	updates chan Update
	done    chan struct{}
	err     error

	closeLock sync.Mutex
	closed    bool
}

// Start builds the swapchain, command pool and pipeline for the surface on a new render
// goroutine and returns once they exist. The session takes ownership of the surface.
func Start(logger *slog.Logger, dev *device.Device, surface khr_surface.Surface, extent core1_0.Extent2D, options Options) (*Session, error) {
	options = options.withDefaults()

	session := &Session{
		logger:  logger,
		updates: make(chan Update, options.QueueDepth),
		done:    make(chan struct{}),
	}

	started := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(session.done)

		res, err := build(logger, dev, surface, extent, options)
		if err != nil {
			surface.Destroy(nil)
			started <- err
			return
		}
		started <- nil

		session.err = res.renderer.run(session.updates)
		if session.err != nil {
			logger.Error("render loop stopped", slog.Any("error", session.err))
		}

		err = res.destroy()
		if session.err == nil {
			session.err = err
		}
	}()

	err := <-started
	if err != nil {
		return nil, err
	}

	logger.Debug("Session::Start", slog.Int("Width", extent.Width), slog.Int("Height", extent.Height))
	return session, nil
}

// Post queues an update without blocking. It returns false when the queue is full, the
// session is closed, or the render goroutine has already stopped.
func (s *Session) Post(update Update) bool {
	s.closeLock.Lock()
	defer s.closeLock.Unlock()

	if s.closed {
		return false
	}

	select {
	case <-s.done:
		s.logger.Debug("Session::Post after render loop stopped", slog.String("Kind", update.Kind.String()))
		return false
	default:
	}

	select {
	case s.updates <- update:
		return true
	default:
		s.logger.Debug("Session::Post dropped update", slog.String("Kind", update.Kind.String()))
		return false
	}
}

// Done is closed once the render goroutine has torn the session down, either after Close
// or because a frame failed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close stops the render loop after the queued updates and tears the session down. It
// returns the first error the loop hit.
func (s *Session) Close() error {
	s.closeLock.Lock()
	if !s.closed {
		s.closed = true
		close(s.updates)
	}
	s.closeLock.Unlock()

	<-s.done
	return s.err
}

// resources is everything the render goroutine owns, in creation order
type resources struct {
	surface   khr_surface.Surface
	swapchain *swapchain.Swapchain
	pool      *command.Pool
	commands  []core1_0.CommandBuffer
	vertex    *pipeline.Shader
	fragment  *pipeline.Shader
	pipeline  *pipeline.GraphicsPipeline
	allocator *memory.Allocator
	mesh      *model.Model
	renderer  *renderer
}

// mesh is vertex and index data bound ahead of an indexed draw
type mesh interface {
	Bind(cmd core1_0.CommandBuffer)
	Draw(cmd core1_0.CommandBuffer)
}

// recordScene binds graphics and draws the mesh, or the generated triangle when there is
// no mesh
func recordScene(graphics *pipeline.GraphicsPipeline, scene mesh) func(cmd core1_0.CommandBuffer) {
	return func(cmd core1_0.CommandBuffer) {
		graphics.Bind(cmd)
		if scene == nil {
			graphics.Draw(cmd, sceneVertexCount)
			return
		}

		scene.Bind(cmd)
		scene.Draw(cmd)
	}
}

func build(logger *slog.Logger, dev *device.Device, surface khr_surface.Surface, extent core1_0.Extent2D, options Options) (*resources, error) {
	config := pipeline.DefaultGraphicsConfig()
	if options.Pipeline != nil {
		config = *options.Pipeline
	}
	if config.Vertex != pipeline.VertexNone && config.Vertex != pipeline.VertexFlat {
		return nil, errors.Newf("interactive mode has no scene for vertex format %s", config.Vertex)
	}

	// The surface is only handed to res once everything else exists
	res := &resources{}
	err := res.create(logger, dev, surface, extent, config, options)
	if err != nil {
		destroyErr := res.destroy()
		if destroyErr != nil {
			logger.Error("could not clean up after failed start", slog.Any("error", destroyErr))
		}
		return nil, err
	}

	res.surface = surface
	return res, nil
}

func (r *resources) create(logger *slog.Logger, dev *device.Device, surface khr_surface.Surface, extent core1_0.Extent2D, config pipeline.GraphicsConfig, options Options) error {
	var err error
	r.swapchain, err = swapchain.New(dev, surface, extent, options.Swapchain)
	if err != nil {
		return err
	}

	r.pool, err = command.NewPool(dev, dev.Indices().Graphics)
	if err != nil {
		return err
	}

	r.commands, err = r.pool.Allocate(swapchain.FramesInFlight)
	if err != nil {
		return err
	}

	r.vertex, err = pipeline.LoadShader(dev, pipeline.ShaderStageConfig{
		Path:  options.VertexShader,
		Stage: core1_0.StageVertex,
	})
	if err != nil {
		return err
	}

	r.fragment, err = pipeline.LoadShader(dev, pipeline.ShaderStageConfig{
		Path:  options.FragmentShader,
		Stage: core1_0.StageFragment,
	})
	if err != nil {
		return err
	}

	r.pipeline, err = pipeline.NewGraphicsPipeline(dev, config, r.swapchain.RenderPass(), r.vertex, r.fragment)
	if err != nil {
		return err
	}

	pacer, err := swapchain.NewFramePacer(logger, r.swapchain, r.commands)
	if err != nil {
		return err
	}

	var scene mesh
	if config.Vertex == pipeline.VertexFlat {
		r.allocator, err = memory.New(logger, dev, memory.CreateOptions{})
		if err != nil {
			return err
		}

		r.mesh, err = model.New(dev, r.allocator, model.Square())
		if err != nil {
			return err
		}
		scene = r.mesh
	}

	r.renderer = &renderer{
		logger: logger,
		pacer:  pacer,
		record: recordScene(r.pipeline, scene),
	}
	return nil
}

func (r *resources) destroy() error {
	// Nothing can be destroyed while a frame may still be executing
	if r.swapchain != nil {
		err := r.swapchain.WaitFrames()
		if err != nil {
			return err
		}
	}

	if r.mesh != nil {
		r.mesh.Destroy()
	}
	if r.allocator != nil {
		r.allocator.Destroy()
	}
	if r.pipeline != nil {
		r.pipeline.Destroy()
	}
	if r.fragment != nil {
		r.fragment.Destroy()
	}
	if r.vertex != nil {
		r.vertex.Destroy()
	}
	if r.pool != nil {
		if r.commands != nil {
			r.pool.Free(r.commands)
		}
		r.pool.Destroy()
	}

	var err error
	if r.swapchain != nil {
		err = r.swapchain.Destroy()
	}
	if r.surface != nil {
		r.surface.Destroy(nil)
	}
	return err
}
