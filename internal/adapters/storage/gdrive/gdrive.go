package gdrive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"docforge/internal/ports"
)

// Store implements ports.ObjectStore backed by Google Drive. The object key
// is stored as the Drive file name and resolved with a name query; user
// metadata rides in appProperties.
type Store struct {
	srv      *drive.Service
	folderID string
}

func New(srv *drive.Service, folderID string) *Store {
	return &Store{srv: srv, folderID: folderID}
}

func (s *Store) Provider() string { return "gdrive" }

func (s *Store) Put(ctx context.Context, in ports.PutObjectInput) (ports.ObjectInfo, error) {
	if in.Key == "" {
		return ports.ObjectInfo{}, fmt.Errorf("object key is required")
	}

	meta := &drive.File{Name: in.Key, AppProperties: in.Metadata}

	existing, err := s.findByKey(ctx, in.Key)
	if err != nil && err != ports.ErrObjectNotFound {
		return ports.ObjectInfo{}, err
	}

	if existing != nil {
		call := s.srv.Files.Update(existing.Id, meta)
		if in.ContentType != "" {
			call = call.Media(in.Reader, googleapi.ContentType(in.ContentType))
		} else {
			call = call.Media(in.Reader)
		}
		if _, err := call.Context(ctx).Do(); err != nil {
			return ports.ObjectInfo{}, fmt.Errorf("gdrive update failed: %w", err)
		}
		return ports.ObjectInfo{Key: in.Key, Size: in.Size, ContentType: in.ContentType, Metadata: in.Metadata}, nil
	}

	if s.folderID != "" {
		meta.Parents = []string{s.folderID}
	}
	call := s.srv.Files.Create(meta)
	if in.ContentType != "" {
		call = call.Media(in.Reader, googleapi.ContentType(in.ContentType))
	} else {
		call = call.Media(in.Reader)
	}
	if _, err := call.Context(ctx).Do(); err != nil {
		return ports.ObjectInfo{}, fmt.Errorf("gdrive upload failed: %w", err)
	}

	return ports.ObjectInfo{Key: in.Key, Size: in.Size, ContentType: in.ContentType, Metadata: in.Metadata}, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, ports.ObjectInfo, error) {
	f, err := s.findByKey(ctx, key)
	if err != nil {
		return nil, ports.ObjectInfo{}, err
	}

	resp, err := s.srv.Files.Get(f.Id).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, ports.ObjectInfo{}, err
	}

	info := infoFrom(key, f)
	info.ContentType = resp.Header.Get("Content-Type")
	return resp.Body, info, nil
}

func (s *Store) Stat(ctx context.Context, key string) (ports.ObjectInfo, error) {
	f, err := s.findByKey(ctx, key)
	if err != nil {
		return ports.ObjectInfo{}, err
	}
	return infoFrom(key, f), nil
}

func (s *Store) Copy(ctx context.Context, srcKey, dstKey string) error {
	src, err := s.findByKey(ctx, srcKey)
	if err != nil {
		return err
	}

	// Last write wins: drop a previous object under the destination key.
	if old, err := s.findByKey(ctx, dstKey); err == nil {
		if err := s.srv.Files.Delete(old.Id).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
			return err
		}
	} else if err != ports.ErrObjectNotFound {
		return err
	}

	dst := &drive.File{Name: dstKey, AppProperties: src.AppProperties}
	if s.folderID != "" {
		dst.Parents = []string{s.folderID}
	}
	_, err = s.srv.Files.Copy(src.Id, dst).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	f, err := s.findByKey(ctx, key)
	if err != nil {
		return err
	}
	return s.srv.Files.Delete(f.Id).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
}

func (s *Store) findByKey(ctx context.Context, key string) (*drive.File, error) {
	q := fmt.Sprintf("name = '%s' and trashed = false", escapeQuery(key))
	if s.folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", s.folderID)
	}

	list, err := s.srv.Files.List().
		Q(q).
		PageSize(1).
		Fields("files(id, name, size, mimeType, appProperties)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if len(list.Files) == 0 {
		return nil, ports.ErrObjectNotFound
	}
	return list.Files[0], nil
}

func infoFrom(key string, f *drive.File) ports.ObjectInfo {
	return ports.ObjectInfo{
		Key:         key,
		Size:        f.Size,
		ContentType: f.MimeType,
		Metadata:    f.AppProperties,
	}
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
