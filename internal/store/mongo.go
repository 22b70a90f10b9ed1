package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fjod/go_cart/cloudshelf-cart/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// cartDocument is the stored shape; _id is the same prefixed key the redis backend uses.
type cartDocument struct {
	ID        string            `bson:"_id"`
	UserID    string            `bson:"user_id"`
	Items     []domain.CartItem `bson:"items"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

type MongoStore struct {
	collection *mongo.Collection
	ttl        time.Duration
}

// NewMongoStore stores carts in the "carts" collection. A positive ttl is
// applied as an expiry index on updated_at by CreateIndexes.
func NewMongoStore(db *mongo.Database, ttl time.Duration) *MongoStore {
	return &MongoStore{
		collection: db.Collection("carts"),
		ttl:        ttl,
	}
}

func (m *MongoStore) Load(ctx context.Context, userID string) (domain.Cart, error) {
	var doc cartDocument

	err := m.collection.FindOne(ctx, bson.M{"_id": cartKey(userID)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.NewCart(userID), nil
		}
		return domain.Cart{}, fmt.Errorf("failed to get cart: %w", err)
	}

	return normalize(userID, domain.Cart{UserID: doc.UserID, Items: doc.Items}), nil
}

func (m *MongoStore) Save(ctx context.Context, userID string, cart domain.Cart) error {
	cart = normalize(userID, cart)
	doc := cartDocument{
		ID:        cartKey(userID),
		UserID:    userID,
		Items:     cart.Items,
		UpdatedAt: time.Now(),
	}

	opts := options.Replace().SetUpsert(true)
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts)
	if err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}

	return nil
}

func (m *MongoStore) Delete(ctx context.Context, userID string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"_id": cartKey(userID)}); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

func (m *MongoStore) Ping(ctx context.Context) error {
	return m.collection.Database().Client().Ping(ctx, nil)
}

func (m *MongoStore) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if m.ttl > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(expireAfterSeconds(m.ttl)),
		})
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// expireAfterSeconds rounds ttl up to whole seconds. A sub-second ttl would
// otherwise become 0, which expires documents on the next TTL sweep.
func expireAfterSeconds(ttl time.Duration) int32 {
	secs := int64(ttl / time.Second)
	if ttl%time.Second > 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	if secs > math.MaxInt32 {
		secs = math.MaxInt32
	}
	return int32(secs)
}
