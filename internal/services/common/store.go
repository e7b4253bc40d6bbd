package common

import (
	"context"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/sorintlab/lockwarden/internal/lockstore"
	"github.com/sorintlab/lockwarden/internal/objectstorage"
	"github.com/sorintlab/lockwarden/internal/runsources"
	"github.com/sorintlab/lockwarden/internal/runsources/github"
	"github.com/sorintlab/lockwarden/internal/runsources/gitlab"
	"github.com/sorintlab/lockwarden/internal/services/config"
	"github.com/sorintlab/lockwarden/internal/sql"
	lsclient "github.com/sorintlab/lockwarden/services/lockserver/client"
)

func NewLockStore(ctx context.Context, log zerolog.Logger, c *config.Store) (lockstore.Store, error) {
	switch c.Type {
	case config.StoreTypeMemory:
		return lockstore.NewMemoryStore(), nil

	case config.StoreTypeRedis:
		opt, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse redis url")
		}
		return lockstore.NewRedisStore(redis.NewClient(opt), c.RedisKeyPrefix, c.RequestTimeout), nil

	case config.StoreTypeDB:
		sdb, err := sql.NewDB(c.DB.Type, c.DB.ConnString)
		if err != nil {
			return nil, errors.Wrapf(err, "new db error")
		}
		return lockstore.NewSQLStore(ctx, log, sdb)

	case config.StoreTypeLockserver:
		lc := lsclient.NewClient(c.LockserverURL, c.LockserverAPIToken)
		lc.SetHTTPClient(&http.Client{Timeout: c.RequestTimeout})
		return lockstore.NewServerStore(lc), nil

	default:
		return nil, errors.Errorf("unknown store type %q", c.Type)
	}
}

func NewRunSource(c *config.RunSource) (runsources.RunSource, error) {
	var source runsources.RunSource
	var err error
	switch c.Type {
	case config.RunSourceTypeNone:
		return nil, nil

	case config.RunSourceTypeGitHub:
		source, err = github.New(github.Opts{
			APIURL:     c.APIURL,
			Token:      c.Token,
			SkipVerify: c.SkipVerify,
			RepoPath:   c.RepoPath,
		})

	case config.RunSourceTypeGitLab:
		source, err = gitlab.New(gitlab.Opts{
			URL:        c.APIURL,
			Token:      c.Token,
			SkipVerify: c.SkipVerify,
			ProjectRef: c.ProjectRef,
		})

	default:
		return nil, errors.Errorf("unknown run source type %q", c.Type)
	}

	return source, errors.WithStack(err)
}

func NewArtifactStorage(c *config.ObjectStorage) (objectstorage.Storage, error) {
	switch c.Type {
	case "":
		return nil, nil

	case config.ObjectStorageTypePosix:
		return objectstorage.NewPosix(c.Path)

	case config.ObjectStorageTypeS3:
		return objectstorage.NewS3(c.Bucket, c.Location, c.Endpoint, c.AccessKey, c.SecretAccessKey, !c.DisableTLS)

	default:
		return nil, errors.Errorf("unknown object storage type %q", c.Type)
	}
}
