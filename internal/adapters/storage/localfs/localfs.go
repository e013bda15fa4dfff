package localfs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"docforge/internal/ports"
)

// Store implements ports.ObjectStore on the local filesystem, mainly for
// development and tests. Object metadata lives in a sidecar file next to the
// object so Stat can answer without touching the body.
type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Provider() string { return "localfs" }

type sidecar struct {
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (s *Store) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *Store) sidecarPath(key string) string {
	return s.path(key) + ".meta.json"
}

func (s *Store) Put(ctx context.Context, in ports.PutObjectInput) (ports.ObjectInfo, error) {
	if in.Key == "" {
		return ports.ObjectInfo{}, fmt.Errorf("object key is required")
	}

	dst := s.path(in.Key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ports.ObjectInfo{}, err
	}

	outF, err := os.Create(dst)
	if err != nil {
		return ports.ObjectInfo{}, err
	}
	defer outF.Close()

	n, err := io.Copy(outF, in.Reader)
	if err != nil {
		return ports.ObjectInfo{}, err
	}

	sc := sidecar{ContentType: in.ContentType, Metadata: in.Metadata}
	raw, err := json.Marshal(sc)
	if err != nil {
		return ports.ObjectInfo{}, err
	}
	if err := os.WriteFile(s.sidecarPath(in.Key), raw, 0o644); err != nil {
		return ports.ObjectInfo{}, err
	}

	return ports.ObjectInfo{Key: in.Key, Size: n, ContentType: in.ContentType, Metadata: in.Metadata}, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, ports.ObjectInfo, error) {
	info, err := s.Stat(ctx, key)
	if err != nil {
		return nil, ports.ObjectInfo{}, err
	}

	f, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ports.ObjectInfo{}, ports.ErrObjectNotFound
		}
		return nil, ports.ObjectInfo{}, err
	}
	return f, info, nil
}

func (s *Store) Stat(ctx context.Context, key string) (ports.ObjectInfo, error) {
	st, err := os.Stat(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ports.ObjectInfo{}, ports.ErrObjectNotFound
		}
		return ports.ObjectInfo{}, err
	}

	info := ports.ObjectInfo{Key: key, Size: st.Size()}

	raw, err := os.ReadFile(s.sidecarPath(key))
	if err == nil {
		var sc sidecar
		if json.Unmarshal(raw, &sc) == nil {
			info.ContentType = sc.ContentType
			info.Metadata = sc.Metadata
		}
	}

	if info.ContentType == "" {
		info.ContentType = s.sniffContentType(key)
	}
	return info, nil
}

func (s *Store) Copy(ctx context.Context, srcKey, dstKey string) error {
	src, err := os.Open(s.path(srcKey))
	if err != nil {
		if os.IsNotExist(err) {
			return ports.ErrObjectNotFound
		}
		return err
	}
	defer src.Close()

	dstPath := s.path(dstKey)
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return err
	}
	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}

	// The sidecar travels with the object; a missing one is not an error.
	if raw, err := os.ReadFile(s.sidecarPath(srcKey)); err == nil {
		return os.WriteFile(s.sidecarPath(dstKey), raw, 0o644)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_ = os.Remove(s.sidecarPath(key))
	err := os.Remove(s.path(key))
	if os.IsNotExist(err) {
		return ports.ErrObjectNotFound
	}
	return err
}

// sniffContentType prefers the extension, then the first bytes of the file.
func (s *Store) sniffContentType(key string) string {
	p := s.path(key)
	if ct := mime.TypeByExtension(filepath.Ext(p)); ct != "" {
		return ct
	}
	f, err := os.Open(p)
	if err != nil {
		return ""
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return http.DetectContentType(buf[:n])
}
