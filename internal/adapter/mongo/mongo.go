// Package mongo is the MongoDB adapter. Generated primary keys live in _id
// as ObjectIDs and surface as hex strings; every other field is stored
// natively.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roach88/caminte/internal/adapter"
	"github.com/roach88/caminte/internal/condition"
	"github.com/roach88/caminte/internal/schema"
)

// Name is the registry name of the MongoDB backend.
const Name = "mongo"

func init() {
	adapter.Register(Name, func(s adapter.Settings) (adapter.Adapter, error) {
		return New(s), nil
	}, "mongodb")
}

// Adapter is a MongoDB-backed adapter.
type Adapter struct {
	*adapter.Models

	settings adapter.Settings
	log      *slog.Logger
	codec    adapter.Codec
	queue    *adapter.SchemaQueue

	mu     sync.RWMutex
	client *mongo.Client
	db     *mongo.Database
}

// New creates a disconnected MongoDB adapter.
func New(s adapter.Settings) *Adapter {
	log := s.Log().With("adapter", Name)
	return &Adapter{
		Models:   adapter.NewModels(Name),
		settings: s,
		log:      log,
		codec:    adapter.Codec{Time: adapter.TimeNative},
		queue:    adapter.NewSchemaQueue(log),
	}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) IDKind() schema.FieldType { return schema.TypeObjectID }

// URI returns the connection URI and database name for s.
func URI(s adapter.Settings) (string, string) {
	uri := s.URL
	if uri == "" {
		host := s.Host
		if host == "" {
			host = "localhost"
		}
		port := s.Port
		if port == 0 {
			port = 27017
		}
		u := url.URL{Scheme: "mongodb", Host: host + ":" + strconv.Itoa(port)}
		if s.Username != "" {
			u.User = url.UserPassword(s.Username, s.Password)
		}
		uri = u.String()
	}
	database := s.Database
	if database == "" {
		if u, err := url.Parse(uri); err == nil {
			database = strings.TrimPrefix(u.Path, "/")
		}
	}
	if database == "" {
		database = "caminte"
	}
	return uri, database
}

// Connect dials the server, pings it and creates indexes for the models
// defined so far.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return nil
	}

	uri, database := URI(a.settings)
	opts := mopt.Client().ApplyURI(uri)
	opts.SetConnectTimeout(10 * time.Second).SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("failed to ping: %w", err)
	}
	db := client.Database(database)
	for _, def := range a.All() {
		if err := ensureIndexes(ctx, db, def); err != nil {
			_ = client.Disconnect(ctx)
			return err
		}
	}
	a.client, a.db = client, db
	a.log.Info("connected", "database", database)
	return nil
}

func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil {
		return nil
	}
	err := a.client.Disconnect(ctx)
	a.client, a.db = nil, nil
	return err
}

func (a *Adapter) Define(def *schema.Definition) error {
	def.EnsurePrimaryKey(a.IDKind())
	added, err := a.Register(def)
	if err != nil || !added {
		return err
	}
	a.mu.RLock()
	db := a.db
	a.mu.RUnlock()
	if db != nil {
		a.queue.Enqueue(adapter.SchemaTask{
			Model: def.Name,
			Desc:  "ensure indexes",
			Run:   func(ctx context.Context) error { return ensureIndexes(ctx, db, def) },
		})
	}
	return nil
}

// DefineProperty only records the field; documents are schemaless.
func (a *Adapter) DefineProperty(model string, field schema.Field) error {
	_, err := a.AddProperty(model, field)
	return err
}

func ensureIndexes(ctx context.Context, db *mongo.Database, def *schema.Definition) error {
	for _, idx := range def.Indexes() {
		if err := createIndex(ctx, db.Collection(def.Name), fieldMapper{def}, idx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.Name, err)
		}
	}
	return nil
}

func createIndex(ctx context.Context, coll *mongo.Collection, m fieldMapper, idx schema.Index) error {
	keys := bson.D{}
	for _, f := range idx.Fields {
		keys = append(keys, bson.E{Key: m.key(f), Value: 1})
	}
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keys,
		Options: mopt.Index().SetName(idx.Name).SetUnique(idx.Unique),
	})
	return err
}

// collection resolves the model and its collection once connected.
func (a *Adapter) collection(ctx context.Context, model string) (*schema.Definition, *mongo.Collection, error) {
	def, err := a.Lookup(model)
	if err != nil {
		return nil, nil, err
	}
	if err := a.queue.Wait(ctx); err != nil {
		return nil, nil, err
	}
	a.mu.RLock()
	db := a.db
	a.mu.RUnlock()
	if db == nil {
		return nil, nil, adapter.NotConnected(Name)
	}
	return def, db.Collection(model), nil
}

// document converts entity values to a document to store.
func (a *Adapter) document(def *schema.Definition, data adapter.Record) (bson.M, error) {
	row, err := a.codec.ToDatabase(def, data)
	if err != nil {
		return nil, err
	}
	m := fieldMapper{def}
	doc := bson.M{}
	for k, v := range row {
		doc[m.key(k)] = m.operand(k, v)
	}
	return doc, nil
}

// record converts a stored document back to entity values.
func (a *Adapter) record(def *schema.Definition, doc bson.M) adapter.Record {
	raw := make(adapter.Record, len(doc))
	for k, v := range doc {
		raw[k] = fromBSON(v)
	}
	if def.IsGenerated() {
		raw[def.PrimaryKey()] = raw[keyField]
	}
	return a.codec.FromDatabase(def, raw)
}

func (a *Adapter) Exists(ctx context.Context, model string, id any) (bool, error) {
	def, err := a.Lookup(model)
	if err != nil {
		return false, err
	}
	n, err := a.Count(ctx, model, condition.Filter(condition.Eq(def.PrimaryKey(), id)))
	return n > 0, err
}

func (a *Adapter) Count(ctx context.Context, model string, cond condition.Condition) (int, error) {
	def, coll, err := a.collection(ctx, model)
	if err != nil {
		return 0, err
	}
	n, err := coll.CountDocuments(ctx, fieldMapper{def}.filter(cond.Where))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", model, err)
	}
	return int(n), nil
}

func (a *Adapter) Create(ctx context.Context, model string, data adapter.Record) (adapter.Record, error) {
	def, coll, err := a.collection(ctx, model)
	if err != nil {
		return nil, err
	}
	doc, err := a.document(def, data)
	if err != nil {
		return nil, err
	}
	res, err := coll.InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", model, err)
	}
	doc[keyField] = res.InsertedID
	return a.record(def, doc), nil
}

func (a *Adapter) Save(ctx context.Context, model string, data adapter.Record) (adapter.Record, error) {
	def, coll, err := a.collection(ctx, model)
	if err != nil {
		return nil, err
	}
	pk := def.PrimaryKey()
	if data[pk] == nil {
		return a.Create(ctx, model, data)
	}
	doc, err := a.document(def, data)
	if err != nil {
		return nil, err
	}
	m := fieldMapper{def}
	filter := bson.M{m.key(pk): m.operand(pk, data[pk])}
	if _, err := coll.ReplaceOne(ctx, filter, doc, mopt.Replace().SetUpsert(true)); err != nil {
		return nil, fmt.Errorf("save %s: %w", model, err)
	}
	return a.record(def, doc), nil
}

func (a *Adapter) Find(ctx context.Context, model string, cond condition.Condition) ([]adapter.Record, error) {
	def, coll, err := a.collection(ctx, model)
	if err != nil {
		return nil, err
	}
	return a.find(ctx, def, coll, cond)
}

func (a *Adapter) find(ctx context.Context, def *schema.Definition, coll *mongo.Collection, cond condition.Condition) ([]adapter.Record, error) {
	m := fieldMapper{def}
	opts := mopt.Find().SetSort(m.sort(cond.Order))
	if proj := m.projection(cond.Fields); proj != nil {
		opts.SetProjection(proj)
	}
	if cond.Limit > 0 {
		opts.SetLimit(int64(cond.Limit))
	}
	if cond.Skip > 0 {
		opts.SetSkip(int64(cond.Skip))
	}

	cursor, err := coll.Find(ctx, m.filter(cond.Where), opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", def.Name, err)
	}
	defer cursor.Close(ctx)

	var out []adapter.Record
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("find %s: %w", def.Name, err)
		}
		out = append(out, a.record(def, doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("find %s: %w", def.Name, err)
	}
	return out, nil
}

// Update sets data on the matched documents and refetches them. A match
// whose values were already equal still counts as updated.
func (a *Adapter) Update(ctx context.Context, model string, cond condition.Condition, data adapter.Record) ([]adapter.Record, error) {
	def, coll, err := a.collection(ctx, model)
	if err != nil {
		return nil, err
	}
	m := fieldMapper{def}
	filter := m.filter(cond.Where)

	ids, err := matchedIDs(ctx, coll, filter)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", model, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	byID := bson.M{keyField: bson.M{"$in": ids}}

	patch, err := a.document(def, data)
	if err != nil {
		return nil, err
	}
	delete(patch, m.key(def.PrimaryKey()))
	if len(patch) > 0 {
		if _, err := coll.UpdateMany(ctx, byID, bson.M{"$set": patch}); err != nil {
			return nil, fmt.Errorf("update %s: %w", model, err)
		}
	}

	cursor, err := coll.Find(ctx, byID, mopt.Find().SetSort(bson.D{{Key: keyField, Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", model, err)
	}
	defer cursor.Close(ctx)
	var out []adapter.Record
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, a.record(def, doc))
	}
	return out, cursor.Err()
}

func matchedIDs(ctx context.Context, coll *mongo.Collection, filter bson.M) ([]any, error) {
	cursor, err := coll.Find(ctx, filter, mopt.Find().SetProjection(bson.M{keyField: 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var ids []any
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc[keyField])
	}
	return ids, cursor.Err()
}

func (a *Adapter) UpdateOrCreate(ctx context.Context, model string, cond condition.Condition, data adapter.Record) ([]adapter.Record, error) {
	updated, err := a.Update(ctx, model, cond, data)
	if err != nil || len(updated) > 0 {
		return updated, err
	}
	rec, err := a.Create(ctx, model, adapter.SeedFromWhere(cond.Where, data))
	if err != nil {
		return nil, err
	}
	return []adapter.Record{rec}, nil
}

func (a *Adapter) Remove(ctx context.Context, model string, cond condition.Condition) (bool, error) {
	def, coll, err := a.collection(ctx, model)
	if err != nil {
		return false, err
	}
	res, err := coll.DeleteMany(ctx, fieldMapper{def}.filter(cond.Where))
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", model, err)
	}
	return res.DeletedCount > 0, nil
}

func (a *Adapter) RemoveByID(ctx context.Context, model string, id any) (bool, error) {
	def, err := a.Lookup(model)
	if err != nil {
		return false, err
	}
	return a.Remove(ctx, model, condition.Filter(condition.Eq(def.PrimaryKey(), id)))
}

func (a *Adapter) RemoveAll(ctx context.Context, model string) error {
	_, err := a.Remove(ctx, model, condition.Condition{})
	return err
}

func (a *Adapter) EnsureIndex(ctx context.Context, model string, idx schema.Index) error {
	def, coll, err := a.collection(ctx, model)
	if err != nil {
		return err
	}
	if idx.Name == "" {
		idx.Name = schema.DefaultIndexName(idx.Fields...)
	}
	if err := createIndex(ctx, coll, fieldMapper{def}, idx); err != nil {
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Name == "IndexOptionsConflict" {
			return nil
		}
		return fmt.Errorf("ensure index %s on %s: %w", idx.Name, model, err)
	}
	return nil
}

// fromBSON converts driver types to plain Go values.
func fromBSON(v any) any {
	switch x := v.(type) {
	case primitive.ObjectID:
		return x.Hex()
	case primitive.DateTime:
		return x.Time()
	case int32:
		return int64(x)
	case primitive.A:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = fromBSON(item)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = fromBSON(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	default:
		return v
	}
}
