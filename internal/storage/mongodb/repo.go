// Package mongodb implements the document-store repository on the official
// mongo driver.
package mongodb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"chatdb/internal/plan"
	"chatdb/internal/storage"
)

const handshakeTimeout = 10 * time.Second

type Repo struct {
	client *mongo.Client
	db     *mongo.Database
}

func init() {
	storage.Register("mongodb", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongodb: database name is required")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DSN))
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return &Repo{client: client, db: client.Database(cfg.Database)}, nil
}

func (r *Repo) Kind() string             { return "mongodb" }
func (r *Repo) Class() plan.BackendClass { return plan.Document }

func (r *Repo) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()
	_ = r.client.Disconnect(ctx)
}

// EnsureTarget drops the collection and creates the planned indexes.
func (r *Repo) EnsureTarget(ctx context.Context, p *plan.SchemaPlan) error {
	coll := r.db.Collection(p.Target)
	if err := coll.Drop(ctx); err != nil {
		return fmt.Errorf("drop collection %s: %w", p.Target, err)
	}

	if len(p.Indexes) == 0 {
		return nil
	}

	models := make([]mongo.IndexModel, 0, len(p.Indexes))
	for _, idx := range p.Indexes {
		keys := bson.D{}
		for _, f := range idx.Fields {
			if idx.Kind == plan.IndexText {
				keys = append(keys, bson.E{Key: f, Value: "text"})
			} else {
				keys = append(keys, bson.E{Key: f, Value: 1})
			}
		}
		models = append(models, mongo.IndexModel{
			Keys:    keys,
			Options: options.Index().SetName(idx.Name),
		})
	}

	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create indexes on %s: %w", p.Target, err)
	}
	return nil
}

// InsertDocuments bulk-inserts one batch of documents.
func (r *Repo) InsertDocuments(ctx context.Context, target string, docs []map[string]any) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	payload := make([]any, len(docs))
	for i, d := range docs {
		payload[i] = d
	}
	res, err := r.db.Collection(target).InsertMany(ctx, payload)
	if err != nil {
		return 0, err
	}
	return int64(len(res.InsertedIDs)), nil
}

// Aggregate runs a pipeline and normalizes the result documents.
func (r *Repo) Aggregate(ctx context.Context, target string, pipeline []bson.D) (*storage.ResultSet, error) {
	if pipeline == nil {
		pipeline = []bson.D{}
	}
	cursor, err := r.db.Collection(target).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []map[string]any
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return resultSetFromDocs(docs), nil
}

func (r *Repo) ListTargets(ctx context.Context) ([]string, error) {
	names, err := r.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (r *Repo) SampleData(ctx context.Context, target string, limit int) (*storage.ResultSet, error) {
	if limit <= 0 {
		limit = 10
	}
	cursor, err := r.db.Collection(target).Find(ctx, bson.D{}, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []map[string]any
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return resultSetFromDocs(docs), nil
}

// resultSetFromDocs normalizes BSON values and derives the column list from
// the union of keys, sorted for a stable order.
func resultSetFromDocs(docs []map[string]any) *storage.ResultSet {
	out := &storage.ResultSet{}
	seen := map[string]struct{}{}
	for _, d := range docs {
		rec := make(map[string]any, len(d))
		for k, v := range d {
			rec[k] = normalizeBSON(v)
			seen[k] = struct{}{}
		}
		out.Records = append(out.Records, rec)
	}
	for k := range seen {
		out.Columns = append(out.Columns, k)
	}
	sort.Strings(out.Columns)
	return out
}

// normalizeBSON converts driver types to plain Go values so records marshal
// cleanly outside the driver.
func normalizeBSON(v any) any {
	switch t := v.(type) {
	case bson.ObjectID:
		return t.Hex()
	case bson.DateTime:
		return t.Time().UTC()
	case bson.M:
		m := make(map[string]any, len(t))
		for k, mv := range t {
			m[k] = normalizeBSON(mv)
		}
		return m
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalizeBSON(e.Value)
		}
		return m
	case bson.A:
		arr := make([]any, len(t))
		for i, av := range t {
			arr[i] = normalizeBSON(av)
		}
		return arr
	default:
		return v
	}
}
