package metadata

/** @brief Bindless index meaning "no resource". Shaders test against it. */
const InvalidBindless int32 = -1

/** @brief Represents the pixel formats textures can be created with. */
type TextureFormat int

const (
	TextureFormatUnknown TextureFormat = iota
	/** @brief 8 bits per channel RGBA, sRGB encoded. Used for material images. */
	TextureFormatRGBA8SRGB
	/** @brief 8 bits per channel RGBA, linear. */
	TextureFormatRGBA8
)

/** @brief Describes how a texture may be used by the pipeline. */
type TextureUsage int

const (
	TextureUsageShaderResource TextureUsage = 0x1
	TextureUsageStorage        TextureUsage = 0x2
	TextureUsageRenderTarget   TextureUsage = 0x4
)

/**
 * @brief Describes a texture to be created.
 */
type TextureDesc struct {
	Name   string
	Width  uint32
	Height uint32
	Depth  uint32
	Levels uint32
	Format TextureFormat
	Usage  TextureUsage
}

/**
 * @brief Represents a texture.
 */
type Texture struct {
	Desc TextureDesc
	/** @brief A pointer to internal, render API-specific data. */
	InternalData interface{}
}

func (t *Texture) Name() string {
	return t.Desc.Name
}

/** @brief The size in bytes of the texture's top mip level. */
func (t *Texture) SizeInBytes() uint64 {
	return uint64(t.Desc.Width) * uint64(t.Desc.Height) * uint64(max(t.Desc.Depth, 1)) * 4
}

type ViewType int

const (
	ViewTypeNone ViewType = iota
	ViewTypeShaderResource
	ViewTypeStorage
	ViewTypeRenderTarget
)

/**
 * @brief A shader-visible view over a texture, addressed through its bindless index.
 */
type View struct {
	Texture  *Texture
	Type     ViewType
	Bindless int32
	/** @brief A pointer to internal, render API-specific data. */
	InternalData interface{}
}

// BindlessOrInvalid tolerates nil views, which stand for unset optional textures.
func (v *View) BindlessOrInvalid() int32 {
	if v == nil {
		return InvalidBindless
	}
	return v.Bindless
}
