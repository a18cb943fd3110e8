package assets

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spaghettifunk/prism/engine/assets/loaders"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/metadata"
)

type AssetInfo struct {
	Path       string
	Type       metadata.ResourceType
	LastLoaded time.Time
	Loads      int
}

// AssetManager resolves files to decoded resources through the loader registered for
// their type. It is safe for concurrent use.
type AssetManager struct {
	assets  map[string]AssetInfo
	loaders map[metadata.ResourceType]Loader

	mutex sync.RWMutex
}

func NewAssetManager() *AssetManager {
	return &AssetManager{
		assets:  make(map[string]AssetInfo),
		loaders: make(map[metadata.ResourceType]Loader),
	}
}

func (am *AssetManager) Initialize() error {
	// Register loaders
	am.RegisterLoader(metadata.ResourceTypeImage, &loaders.ImageLoader{})
	am.RegisterLoader(metadata.ResourceTypeScene, &loaders.SceneLoader{})
	return nil
}

// Register loaders for each asset type. A later registration replaces an earlier one.
func (am *AssetManager) RegisterLoader(assetType metadata.ResourceType, loader Loader) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.loaders[assetType] = loader
}

func (am *AssetManager) loader(assetType metadata.ResourceType) (Loader, error) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	loader, exists := am.loaders[assetType]
	if !exists {
		return nil, fmt.Errorf("no loader registered for asset type: %s", assetType)
	}
	return loader, nil
}

// Load an asset using the appropriate loader
func (am *AssetManager) LoadAsset(path string, resourceType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	loader, err := am.loader(resourceType)
	if err != nil {
		return nil, err
	}
	core.LogDebug("loading %s asset '%s'", resourceType, path)

	res, err := loader.Load(path, resourceType, params)
	if err != nil {
		return nil, err
	}
	am.track(path, resourceType)
	return res, nil
}

// LoadAssetFromMemory decodes data that has no file of its own. name is only used for
// bookkeeping and error messages.
func (am *AssetManager) LoadAssetFromMemory(name string, data []byte, resourceType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	loader, err := am.loader(resourceType)
	if err != nil {
		return nil, err
	}
	streamLoader, ok := loader.(StreamLoader)
	if !ok {
		return nil, fmt.Errorf("loader for asset type %s cannot decode from memory", resourceType)
	}

	res, err := streamLoader.LoadFrom(name, bytes.NewReader(data), resourceType, params)
	if err != nil {
		return nil, err
	}
	am.track(name, resourceType)
	return res, nil
}

func (am *AssetManager) UnloadAsset(asset *metadata.Resource, resourceType metadata.ResourceType) error {
	loader, err := am.loader(resourceType)
	if err != nil {
		return err
	}
	return loader.Unload(asset)
}

// Info returns the bookkeeping entry for a previously loaded asset.
func (am *AssetManager) Info(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[path]
	return info, ok
}

func (am *AssetManager) track(path string, resourceType metadata.ResourceType) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	info := am.assets[path]
	info.Path = path
	info.Type = resourceType
	info.LastLoaded = time.Now()
	info.Loads++
	am.assets[path] = info
}

// DetermineAssetType maps a file extension to the resource type that can load it.
func DetermineAssetType(path string) metadata.ResourceType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp":
		return metadata.ResourceTypeImage
	case ".gltf", ".glb":
		return metadata.ResourceTypeScene
	default:
		return metadata.ResourceTypeCustom
	}
}
