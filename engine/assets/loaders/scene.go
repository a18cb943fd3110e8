package loaders

import (
	"io"

	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

// SceneLoader parses glTF 2.0 documents, both .gltf with external or data URI buffers
// and binary .glb containers. Resource.Data holds the *gltf.Document.
type SceneLoader struct{}

func (sl *SceneLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(core.ErrSceneParse, "failed to parse '%s': %s", path, err)
	}
	return sceneResource(path, doc), nil
}

// LoadFrom decodes a self-contained document; external buffer URIs cannot be resolved.
func (sl *SceneLoader) LoadFrom(name string, r io.Reader, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(r).Decode(doc); err != nil {
		return nil, errors.Wrapf(core.ErrSceneParse, "failed to parse '%s': %s", name, err)
	}
	return sceneResource(name, doc), nil
}

func (sl *SceneLoader) Unload(res *metadata.Resource) error {
	if res == nil {
		return errors.New("scene loader: nil resource")
	}
	res.Data = nil
	return nil
}

func sceneResource(path string, doc *gltf.Document) *metadata.Resource {
	var size uint64
	for _, b := range doc.Buffers {
		size += uint64(b.ByteLength)
	}
	return &metadata.Resource{
		Name:     path,
		FullPath: path,
		DataSize: size,
		Data:     doc,
	}
}
