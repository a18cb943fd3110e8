package components

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	mathx "github.com/spaghettifunk/prism/engine/math"
)

// Camera generates primary rays for the preview tracer. Position and rotation go through
// the setters so the camera matrix is rebuilt when needed.
type Camera struct {
	Position mgl32.Vec3
	// pitch, yaw, roll in radians
	EulerRotation mgl32.Vec3
	// vertical field of view in radians
	FieldOfView float32
	IsDirty     bool

	world mgl32.Mat4
}

const DefaultFieldOfView = math32.Pi / 3

var pitchLimit = mathx.DegToRad(89)

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.Position = mgl32.Vec3{}
	c.EulerRotation = mgl32.Vec3{}
	c.FieldOfView = DefaultFieldOfView
	c.IsDirty = false
	c.world = mgl32.Ident4()
}

func (c *Camera) SetPosition(position mgl32.Vec3) {
	c.Position = position
	c.IsDirty = true
}

func (c *Camera) SetEulerRotation(rotation mgl32.Vec3) {
	c.EulerRotation = rotation
	c.EulerRotation[0] = mathx.Clamp(c.EulerRotation[0], -pitchLimit, pitchLimit)
	c.IsDirty = true
}

// LookAt turns the camera towards target. Looking straight up or down is clamped.
func (c *Camera) LookAt(target mgl32.Vec3) {
	dir := target.Sub(c.Position)
	if dir.Len() == 0 {
		return
	}
	dir = dir.Normalize()
	yaw := math32.Atan2(-dir.X(), -dir.Z())
	pitch := math32.Asin(mathx.Clamp(dir.Y(), -1, 1))
	c.SetEulerRotation(mgl32.Vec3{pitch, yaw, 0})
}

// World is the camera to world matrix, the inverse of the view matrix.
func (c *Camera) World() mgl32.Mat4 {
	if c.IsDirty {
		rotation := mgl32.AnglesToQuat(c.EulerRotation.Y(), c.EulerRotation.X(), c.EulerRotation.Z(), mgl32.YXZ).Mat4()
		c.world = mgl32.Translate3D(c.Position.X(), c.Position.Y(), c.Position.Z()).Mul4(rotation)
		c.IsDirty = false
	}
	return c.world
}

func (c *Camera) View() mgl32.Mat4 {
	return c.World().Inv()
}

func (c *Camera) Forward() mgl32.Vec3 {
	return c.World().Mul4x1(mgl32.Vec4{0, 0, -1, 0}).Vec3().Normalize()
}

func (c *Camera) Right() mgl32.Vec3 {
	return c.World().Mul4x1(mgl32.Vec4{1, 0, 0, 0}).Vec3().Normalize()
}

func (c *Camera) Up() mgl32.Vec3 {
	return c.World().Mul4x1(mgl32.Vec4{0, 1, 0, 0}).Vec3().Normalize()
}

func (c *Camera) MoveForward(amount float32) {
	c.SetPosition(c.Position.Add(c.Forward().Mul(amount)))
}

func (c *Camera) MoveRight(amount float32) {
	c.SetPosition(c.Position.Add(c.Right().Mul(amount)))
}

func (c *Camera) MoveUp(amount float32) {
	c.SetPosition(c.Position.Add(mgl32.Vec3{0, amount, 0}))
}

func (c *Camera) Yaw(amount float32) {
	c.SetEulerRotation(c.EulerRotation.Add(mgl32.Vec3{0, amount, 0}))
}

// Pitch is clamped to avoid gimbal lock.
func (c *Camera) Pitch(amount float32) {
	c.SetEulerRotation(c.EulerRotation.Add(mgl32.Vec3{amount, 0, 0}))
}

// Ray returns the normalized world space ray through pixel (x, y) of a width × height
// image, sampled at the pixel center. Row 0 is the top of the image.
func (c *Camera) Ray(x, y, width, height int) (origin, dir mgl32.Vec3) {
	aspect := float32(width) / float32(height)
	scale := math32.Tan(c.FieldOfView / 2)
	px := (2*(float32(x)+0.5)/float32(width) - 1) * aspect * scale
	py := (1 - 2*(float32(y)+0.5)/float32(height)) * scale

	world := c.World()
	dir = world.Mul4x1(mgl32.Vec4{px, py, -1, 0}).Vec3().Normalize()
	return c.Position, dir
}
