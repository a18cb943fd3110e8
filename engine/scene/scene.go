package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/spaghettifunk/prism/engine/core"
	mathx "github.com/spaghettifunk/prism/engine/math"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// Entity places one model in the world.
type Entity struct {
	Transform mgl32.Mat4
	Model     *Model
}

// Scene owns the entities of a session and turns them into the top level acceleration
// structure. Entities are pushed while loading; Build runs once every load has been
// flushed.
type Scene struct {
	ctx      *LoadContext
	Registry *Registry

	entities       []*Entity
	instances      []metadata.RaytracingInstance
	instanceBuffer *metadata.Buffer
	tlas           *metadata.AccelerationStructure
}

func NewScene(ctx *LoadContext) *Scene {
	return &Scene{
		ctx:      ctx,
		Registry: NewRegistry(ctx),
	}
}

// PushEntity loads the model at path and registers its primitives.
func (s *Scene) PushEntity(transform mgl32.Mat4, path string) (*Entity, error) {
	model, err := Load(s.ctx, path)
	if err != nil {
		return nil, err
	}
	return s.AddEntity(transform, model)
}

// AddEntity takes ownership of an already loaded model.
func (s *Scene) AddEntity(transform mgl32.Mat4, model *Model) (*Entity, error) {
	if err := s.Registry.PushModel(model); err != nil {
		return nil, err
	}
	e := &Entity{Transform: transform, Model: model}
	s.entities = append(s.entities, e)
	return e, nil
}

func (s *Scene) Entities() []*Entity {
	return s.entities
}

// Build uploads the instance table, computes every primitive's world transform and
// flags, and creates the top level structure over them. The build requests are
// enqueued; the structure is usable after the next flush.
func (s *Scene) Build() error {
	if err := s.Registry.Build(); err != nil {
		return err
	}
	s.destroyTopLevel()

	instances := make([]metadata.RaytracingInstance, 0, s.Registry.Count())
	for _, e := range s.entities {
		m := e.Model
		globals := make([]mgl32.Mat4, len(m.Nodes))
		for index, node := range m.Walk() {
			if node.Parent == NoParent {
				globals[index] = node.Local
			} else {
				globals[index] = globals[node.Parent].Mul4(node.Local)
			}
			world := e.Transform.Mul4(globals[index])

			for _, p := range node.Primitives {
				if p.Instance.InstanceID != uint32(len(instances)) {
					return errors.Errorf("primitive of '%s' has instance ID %d but is instance %d; models must be registered in entity order",
						m.Path, p.Instance.InstanceID, len(instances))
				}
				p.Instance.Transform = mathx.ToTransform3x4(world)
				p.Instance.Flags = metadata.InstanceFlagForceOpaque
				if m.Materials[p.MaterialIndex].AlphaTested {
					p.Instance.Flags = metadata.InstanceFlagForceNonOpaque
				}
				instances = append(instances, p.Instance)
			}
		}
	}
	s.instances = instances

	if len(instances) == 0 {
		core.LogWarn("scene has no instances, no top level acceleration structure created")
		return nil
	}

	data := metadata.PackRaytracingInstances(instances)
	var err error
	s.instanceBuffer, err = s.ctx.Renderer.CreateBuffer(uint64(len(data)), metadata.RaytracingInstanceSize, metadata.BufferTypeStorage, "tlas instances")
	if err != nil {
		return err
	}
	s.ctx.Uploader.EnqueueBufferUpload(data, s.instanceBuffer)

	s.tlas, err = s.ctx.Renderer.CreateTLAS(s.instanceBuffer, uint32(len(instances)), "scene tlas")
	if err != nil {
		return err
	}
	s.ctx.Uploader.EnqueueAccelerationStructureBuild(s.tlas)

	core.LogInfo("scene built: %d instances over %d entities", len(instances), len(s.entities))
	ctx := core.EventContext{}
	ctx.Data.U32[0] = uint32(len(instances))
	ctx.Data.U32[1] = uint32(len(s.entities))
	s.ctx.fire(core.EventCodeSceneBuilt, s, ctx)
	return nil
}

// Instances returns the instance list of the last Build, in instance ID order.
func (s *Scene) Instances() []metadata.RaytracingInstance {
	return s.instances
}

// TLAS is nil before Build or when the scene has no instances.
func (s *Scene) TLAS() *metadata.AccelerationStructure {
	return s.tlas
}

// InstanceBuffer holds the packed instances the TLAS is built over, nil whenever TLAS is.
func (s *Scene) InstanceBuffer() *metadata.Buffer {
	return s.instanceBuffer
}

func (s *Scene) destroyTopLevel() {
	s.ctx.Renderer.DestroyAccelerationStructure(s.tlas)
	s.ctx.Renderer.DestroyBuffer(s.instanceBuffer)
	s.tlas = nil
	s.instanceBuffer = nil
}

// Destroy releases the top level structure, the instance table and every entity's model.
func (s *Scene) Destroy() {
	s.destroyTopLevel()
	s.Registry.Destroy()
	for _, e := range s.entities {
		e.Model.Destroy()
	}
	s.entities = nil
	s.instances = nil
}
