// Package mongostore keeps the tracking table in a MongoDB collection, one
// document per catalogue with the slug as _id.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/maloquacious/catscrape/internal/catalogue"
	"github.com/maloquacious/catscrape/internal/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultDatabase   = "catscrape"
	DefaultCollection = "catalogue_tracking"
)

// Store is a MongoDB-backed tracking table.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
	log    logger.Logger
}

type document struct {
	catalogue.Record `bson:",inline"`
	Position         int `bson:"position"`
}

// Open connects to uri and uses database.collection.
func Open(ctx context.Context, uri, database, collection string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Default
	}
	if database == "" {
		database = DefaultDatabase
	}
	if collection == "" {
		collection = DefaultCollection
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetConnectTimeout(15*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{
		client: client,
		coll:   client.Database(database).Collection(collection),
		now:    time.Now,
		log:    log,
	}, nil
}

func (s *Store) Location() string {
	return "mongodb:" + s.coll.Database().Name() + "." + s.coll.Name()
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Load(ctx context.Context) (catalogue.Table, error) {
	cur, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "position", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find catalogues: %w", err)
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode catalogues: %w", err)
	}
	if len(docs) == 0 {
		s.log.Info("No existing records in %s - starting fresh", s.Location())
	}
	t := make(catalogue.Table, 0, len(docs))
	for _, d := range docs {
		t = append(t, d.Record)
	}
	return t, nil
}

// Save makes the collection hold exactly t: every row is upserted by slug
// and documents whose slug is not in t are removed, as the file stores do.
func (s *Store) Save(ctx context.Context, t catalogue.Table, withBackup bool) error {
	if withBackup {
		if err := s.Backup(ctx); err != nil {
			return fmt.Errorf("backup before save: %w", err)
		}
	}
	models := make([]mongo.WriteModel, 0, len(t)+1)
	slugs := make(bson.A, 0, len(t))
	for i, r := range t {
		slugs = append(slugs, r.Slug)
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: r.Slug}}).
			SetReplacement(document{Record: r, Position: i}).
			SetUpsert(true))
	}
	models = append(models, mongo.NewDeleteManyModel().
		SetFilter(bson.D{{Key: "_id", Value: bson.D{{Key: "$nin", Value: slugs}}}}))
	if _, err := s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
		return fmt.Errorf("bulk write catalogues: %w", err)
	}
	s.log.Info("Saved %d records to %s", len(t), s.Location())
	return nil
}

// Backup copies the collection to <collection>_backup_YYYYMMDD_HHMMSS.
func (s *Store) Backup(ctx context.Context) error {
	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("count catalogues: %w", err)
	}
	if n == 0 {
		s.log.Info("No existing records to backup in %s", s.Location())
		return nil
	}
	name := s.coll.Name() + "_backup_" + s.now().Format("20060102_150405")
	cur, err := s.coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.D{}}},
		{{Key: "$out", Value: name}},
	})
	if err != nil {
		s.log.Error("ERROR backing up %s: %v", s.Location(), err)
		return fmt.Errorf("backup collection: %w", err)
	}
	_ = cur.Close(ctx)
	s.log.Info("Tracking collection backed up: %s (%d documents)", name, n)
	return nil
}
