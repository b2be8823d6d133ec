package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type DB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

func NewMongoDB(ctx context.Context, uri, dbName string) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return &DB{
		Client:   client,
		Database: client.Database(dbName),
	}, nil
}

func (db *DB) StaffUsers() *mongo.Collection {
	return db.Database.Collection("staff_users")
}

func (db *DB) Singletons() *mongo.Collection {
	return db.Database.Collection("staff_singletons")
}

// EnsureIndexes creates unique indexes on username and email so the
// database rejects duplicates even if two writers race past the check.
func (db *DB) EnsureIndexes(ctx context.Context) error {
	_, err := db.StaffUsers().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	return err
}

func (db *DB) Disconnect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return db.Client.Disconnect(ctx)
}

// writeErr maps a unique-index violation to ErrDuplicate.
func writeErr(err error) error {
	if err != nil && mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

// MongoIdentityStore is the IdentityStore backed by MongoDB.
type MongoIdentityStore struct {
	db    *DB
	users *mongoRepository[models.User]
	creds *mongoSingleton[models.AdminCredentials]
	token *mongoSingleton[models.AdminToken]
}

// NewMongoIdentityStore wires the identity collections on db.
func NewMongoIdentityStore(db *DB) *MongoIdentityStore {
	return &MongoIdentityStore{
		db:    db,
		users: &mongoRepository[models.User]{coll: db.StaffUsers()},
		creds: &mongoSingleton[models.AdminCredentials]{coll: db.Singletons(), id: "admin_credentials"},
		token: &mongoSingleton[models.AdminToken]{coll: db.Singletons(), id: "admin_token"},
	}
}

func (s *MongoIdentityStore) Users() Repository[models.User] { return s.users }

func (s *MongoIdentityStore) AdminCredentials() Singleton[models.AdminCredentials] { return s.creds }

func (s *MongoIdentityStore) AdminToken() Singleton[models.AdminToken] { return s.token }

func (s *MongoIdentityStore) Close(ctx context.Context) error { return s.db.Disconnect(ctx) }

// mongoRepository stores each record as a document whose _id is Key().
// mu serializes read-modify-write sequences issued by this process.
type mongoRepository[T Record] struct {
	coll *mongo.Collection
	mu   sync.Mutex
}

func (r *mongoRepository[T]) Get(ctx context.Context, id string) (*T, error) {
	var rec T
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *mongoRepository[T]) Put(ctx context.Context, rec T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": rec.Key()}, rec, options.Replace().SetUpsert(true))
	return writeErr(err)
}

func (r *mongoRepository[T]) Insert(ctx context.Context, rec T, check func(existing []T) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if check != nil {
		existing, err := r.scan(ctx, nil)
		if err != nil {
			return err
		}
		if err := check(existing); err != nil {
			return err
		}
	}
	_, err := r.coll.InsertOne(ctx, rec)
	return writeErr(err)
}

func (r *mongoRepository[T]) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoRepository[T]) Scan(ctx context.Context, pred func(*T) bool) ([]T, error) {
	return r.scan(ctx, pred)
}

func (r *mongoRepository[T]) scan(ctx context.Context, pred func(*T) bool) ([]T, error) {
	cur, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "$natural", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var all []T
	if err := cur.All(ctx, &all); err != nil {
		return nil, err
	}
	out := make([]T, 0, len(all))
	for i := range all {
		if pred == nil || pred(&all[i]) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (r *mongoRepository[T]) Update(ctx context.Context, id string, fn func(*T) error) (*T, error) {
	return r.UpdateChecked(ctx, id, nil, fn)
}

func (r *mongoRepository[T]) UpdateChecked(ctx context.Context, id string, check func(existing []T) error, fn func(*T) error) (*T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if check != nil {
		existing, err := r.scan(ctx, nil)
		if err != nil {
			return nil, err
		}
		if err := check(existing); err != nil {
			return nil, err
		}
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if _, err := r.coll.ReplaceOne(ctx, bson.M{"_id": id}, rec); err != nil {
		return nil, writeErr(err)
	}
	return rec, nil
}

// mongoSingleton stores one document under a fixed _id.
type mongoSingleton[T any] struct {
	coll *mongo.Collection
	id   string
	mu   sync.Mutex
}

func (s *mongoSingleton[T]) Get(ctx context.Context) (*T, error) {
	var doc T
	err := s.coll.FindOne(ctx, bson.M{"_id": s.id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *mongoSingleton[T]) Put(ctx context.Context, doc T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(ctx, doc)
}

func (s *mongoSingleton[T]) put(ctx context.Context, doc T) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": s.id}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *mongoSingleton[T]) Update(ctx context.Context, fn func(cur *T) (T, error)) (*T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.Get(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	if err := s.put(ctx, next); err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *mongoSingleton[T]) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": s.id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
