package main

import (
	"context"
	"fmt"

	"github.com/maloquacious/catscrape/internal/backup"
	"github.com/maloquacious/catscrape/internal/config"
	"github.com/maloquacious/catscrape/internal/logger"
	"github.com/maloquacious/catscrape/internal/store"
	"github.com/maloquacious/catscrape/internal/store/csvstore"
	"github.com/maloquacious/catscrape/internal/store/jsonstore"
	"github.com/maloquacious/catscrape/internal/store/mongostore"
	"github.com/maloquacious/catscrape/internal/store/sqlite"
)

// baseConfig turns the persistent flags into the parts of a Config that do
// not depend on the run's selection.
func baseConfig() (config.Config, error) {
	kind, err := store.ParseKind(storage)
	if err != nil {
		return config.Config{}, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	return config.Config{
		Storage:    kind,
		Root:       rootDir,
		OutputDir:  outputDir,
		DataDir:    dataDir,
		MongoURI:   mongoURI,
		MongoDB:    mongoDB,
		APIBase:    apiBase,
		CDNBase:    cdnBase,
		RatePerSec: rate,
		Verbose:    verbose,
	}, nil
}

// openStore opens the tracking store of the given kind under dataDir.
// collection only applies to mongo.
func openStore(ctx context.Context, cfg config.Config, dataDir, collection string, b *backup.Manager, log logger.Logger) (store.Store, error) {
	switch cfg.Storage {
	case store.KindCSV:
		return csvstore.New(store.FilePath(dataDir, store.KindCSV), b, log), nil
	case store.KindJSON:
		return jsonstore.New(store.FilePath(dataDir, store.KindJSON), b, log), nil
	case store.KindSQLite:
		s, err := sqlite.OpenStore(store.FilePath(dataDir, store.KindSQLite), b, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case store.KindMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("%w: mongo storage needs --mongo-uri", config.ErrInvalidConfig)
		}
		s, err := mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDB, collection, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", store.ErrUnknownKind, cfg.Storage)
}

// openRunStores returns the canonical store and the store this run saves to.
// They are the same store except in custom mode, which writes a dated copy.
func openRunStores(ctx context.Context, cfg config.Config, b *backup.Manager, log logger.Logger) (canonical, target store.Store, err error) {
	canonical, err = openStore(ctx, cfg, cfg.Data(), mongostore.DefaultCollection, b, log)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Mode != config.ModeCustom {
		return canonical, canonical, nil
	}
	collection := mongostore.DefaultCollection + "_customDL_" + cfg.Started.Format("20060102")
	target, err = openStore(ctx, cfg, cfg.RunData(), collection, b, log)
	if err != nil {
		canonical.Close()
		return nil, nil, err
	}
	return canonical, target, nil
}
