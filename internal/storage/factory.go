package storage

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"docforge/internal/adapters/storage/gdrive"
	"docforge/internal/adapters/storage/localfs"
	miniostore "docforge/internal/adapters/storage/minio"
	"docforge/internal/ports"
	"docforge/internal/worker/util"
)

// NewStore builds the ObjectStore selected by STORAGE_PROVIDER
// (minio | localfs | gdrive).
func NewStore(ctx context.Context) (ports.ObjectStore, error) {
	switch provider := util.Env("STORAGE_PROVIDER", "minio"); provider {
	case "minio":
		return newMinioStore(ctx)

	case "localfs":
		root := util.MustEnv("STORAGE_LOCAL_ROOT")
		return localfs.New(root), nil

	case "gdrive":
		return newGDriveStore(ctx)

	default:
		return nil, fmt.Errorf("unknown storage provider: %s", provider)
	}
}

func newMinioStore(ctx context.Context) (ports.ObjectStore, error) {
	store, err := miniostore.New(miniostore.Config{
		Endpoint:  util.MustEnv("MINIO_ENDPOINT"),
		AccessKey: util.MustEnv("MINIO_ACCESS_KEY"),
		SecretKey: util.MustEnv("MINIO_SECRET_KEY"),
		Bucket:    util.Env("MINIO_BUCKET", "docforge"),
		UseSSL:    util.BoolEnv("MINIO_USE_SSL", false),
	})
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func newGDriveStore(ctx context.Context) (ports.ObjectStore, error) {
	conf := &oauth2.Config{
		ClientID:     util.MustEnv("GDRIVE_CLIENT_ID"),
		ClientSecret: util.MustEnv("GDRIVE_CLIENT_SECRET"),
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}

	tok := &oauth2.Token{RefreshToken: util.MustEnv("GDRIVE_REFRESH_TOKEN")}
	httpClient := conf.Client(ctx, tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}

	return gdrive.New(srv, util.Env("GDRIVE_FOLDER_ID", "")), nil
}
