package data

import (
	"context"
	"os"
	"path/filepath"

	"groupguard/internal/biz"
	"groupguard/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
)

type diskAssetStore struct {
	root string
	log  *log.Helper
}

// NewDiskAssetStore stores canonical rule images as flat files under the
// configured asset directory.
func NewDiskAssetStore(c *conf.Filter, logger log.Logger) (biz.AssetStore, error) {
	root := c.AssetDir
	if root == "" {
		root = "data/rule-images"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &diskAssetStore{
		root: root,
		log:  log.NewHelper(logger),
	}, nil
}

func (s *diskAssetStore) Save(_ context.Context, name string, data []byte) error {
	return os.WriteFile(s.path(name), data, 0o644)
}

func (s *diskAssetStore) Load(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(s.path(name))
}

func (s *diskAssetStore) Delete(_ context.Context, name string) error {
	err := os.Remove(s.path(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// path confines name to the asset root.
func (s *diskAssetStore) path(name string) string {
	return filepath.Join(s.root, filepath.Base(name))
}
