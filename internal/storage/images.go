package storage

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrBadDataURL = errors.New("not a base64 image data url")

var extByMime = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageStore 把消息和头像里携带的 base64 data URL 落盘，
// 以随机文件名保存并返回可由静态路由回放的 URL 路径。
type ImageStore struct {
	dir string
}

func NewImageStore(dir string) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &ImageStore{dir: dir}, nil
}

func (s *ImageStore) Dir() string { return s.dir }

// SaveDataURL 解析 "data:image/png;base64,...." 并写入上传目录。
func (s *ImageStore) SaveDataURL(dataURL string) (string, error) {
	mime, payload, ok := splitDataURL(dataURL)
	if !ok {
		return "", ErrBadDataURL
	}
	ext, ok := extByMime[mime]
	if !ok {
		return "", ErrBadDataURL
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", ErrBadDataURL
	}
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.dir, name), raw, 0o644); err != nil {
		return "", err
	}
	return "/uploads/" + name, nil
}

func splitDataURL(v string) (mime, payload string, ok bool) {
	if !strings.HasPrefix(v, "data:") {
		return "", "", false
	}
	rest := v[len("data:"):]
	sep := strings.Index(rest, ";base64,")
	if sep < 0 {
		return "", "", false
	}
	return rest[:sep], rest[sep+len(";base64,"):], true
}
