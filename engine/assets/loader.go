package assets

import (
	"io"

	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type Loader interface {
	Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) // `interface{}` here allows loaders to return various asset types
	Unload(*metadata.Resource) error
}

// StreamLoader is implemented by loaders that can also decode bytes that never lived
// in their own file, such as images embedded in a binary glTF buffer.
type StreamLoader interface {
	Loader
	LoadFrom(name string, r io.Reader, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error)
}
