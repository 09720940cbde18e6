package remotestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dkoval/cartsync/internal/domain"
)

// The adapter owns its document schema: money travels as strings so decimal
// precision survives the round trip.
type cartDoc struct {
	ID           string    `bson:"_id"`
	UserID       string    `bson:"user_id"`
	SessionToken string    `bson:"session_token"`
	Items        []itemDoc `bson:"items"`
	GuestEmail   string    `bson:"guest_email,omitempty"`
	GuestPhone   string    `bson:"guest_phone,omitempty"`
	Status       string    `bson:"status"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type itemDoc struct {
	ProductID        string    `bson:"product_id"`
	VariantID        string    `bson:"variant_id,omitempty"`
	Quantity         int       `bson:"quantity"`
	UnitPrice        string    `bson:"unit_price"`
	Name             string    `bson:"name"`
	ImageRef         string    `bson:"image_ref,omitempty"`
	Slug             string    `bson:"slug,omitempty"`
	ShortDescription string    `bson:"short_description,omitempty"`
	AddedAt          time.Time `bson:"added_at"`
}

type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection("carts")}
}

func ConnectMongoDB(ctx context.Context, uri, dbName string) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return client.Database(dbName), nil
}

func (m *MongoStore) FetchActiveCart(ctx context.Context, userID string) (*domain.Cart, error) {
	filter := bson.M{"user_id": userID, "status": string(domain.StatusActive)}
	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}})

	var doc cartDoc
	err := m.collection.FindOne(ctx, filter, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoActiveCart
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active cart: %w", err)
	}

	return fromDoc(&doc)
}

func (m *MongoStore) ReplaceCart(ctx context.Context, userID string, cart *domain.Cart) (string, error) {
	id := cart.ID
	if id == "" {
		// Reuse the id of an existing active cart for this user so repeated
		// replacements from a cart that never learned its id stay one document.
		var existing struct {
			ID string `bson:"_id"`
		}
		filter := bson.M{"user_id": userID, "status": string(domain.StatusActive)}
		err := m.collection.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Decode(&existing)
		switch {
		case err == nil:
			id = existing.ID
		case errors.Is(err, mongo.ErrNoDocuments):
			id = uuid.NewString()
		default:
			return "", fmt.Errorf("failed to look up cart id: %w", err)
		}
	}

	doc := toDoc(cart, userID, id)
	opts := options.Replace().SetUpsert(true)
	if _, err := m.collection.ReplaceOne(ctx, bson.M{"_id": id}, doc, opts); err != nil {
		return "", fmt.Errorf("failed to replace cart: %w", err)
	}

	return id, nil
}

func (m *MongoStore) MarkAbandoned(ctx context.Context, cartID string) error {
	update := bson.M{"$set": bson.M{
		"status":     string(domain.StatusAbandoned),
		"updated_at": time.Now(),
	}}

	result, err := m.collection.UpdateByID(ctx, cartID, update)
	if err != nil {
		return fmt.Errorf("failed to mark cart abandoned: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

// CreateIndexes sets up the lookup index and a TTL on stale carts.
func (m *MongoStore) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}, {Key: "updated_at", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func toDoc(cart *domain.Cart, userID, id string) *cartDoc {
	now := time.Now()
	createdAt := cart.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := &cartDoc{
		ID:           id,
		UserID:       userID,
		SessionToken: cart.SessionToken,
		Items:        make([]itemDoc, len(cart.Items)),
		GuestEmail:   cart.Guest.Email,
		GuestPhone:   cart.Guest.Phone,
		Status:       string(cart.Status),
		CreatedAt:    createdAt,
		UpdatedAt:    now,
	}

	for i, item := range cart.Items {
		doc.Items[i] = itemDoc{
			ProductID:        item.ProductID,
			VariantID:        item.VariantID,
			Quantity:         item.Quantity,
			UnitPrice:        item.UnitPrice.String(),
			Name:             item.Snapshot.Name,
			ImageRef:         item.Snapshot.ImageRef,
			Slug:             item.Snapshot.Slug,
			ShortDescription: item.Snapshot.ShortDescription,
			AddedAt:          item.AddedAt,
		}
	}

	return doc
}

func fromDoc(doc *cartDoc) (*domain.Cart, error) {
	cart := &domain.Cart{
		ID:           doc.ID,
		UserID:       doc.UserID,
		SessionToken: doc.SessionToken,
		Items:        make([]domain.CartItem, len(doc.Items)),
		Guest:        domain.GuestInfo{Email: doc.GuestEmail, Phone: doc.GuestPhone},
		Status:       domain.Status(doc.Status),
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}

	for i, item := range doc.Items {
		price, err := decimal.NewFromString(item.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("bad unit price %q on cart %s: %w", item.UnitPrice, doc.ID, err)
		}
		cart.Items[i] = domain.CartItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: price,
			Snapshot: domain.ProductSnapshot{
				Name:             item.Name,
				ImageRef:         item.ImageRef,
				Slug:             item.Slug,
				ShortDescription: item.ShortDescription,
			},
			AddedAt: item.AddedAt,
		}
		cart.Items[i].LineTotal = domain.LineTotalFor(cart.Items[i])
	}

	cart.Totals = domain.ComputeTotals(cart.Items)
	return cart, nil
}
