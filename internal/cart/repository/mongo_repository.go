package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fjod/coffee_saga/internal/cart/domain"
)

// cartDocument is the stored shape; prices are kept as Decimal128.
type cartDocument struct {
	CustomerID string         `bson:"customer_id"`
	Lines      []lineDocument `bson:"lines"`
	CreatedAt  time.Time      `bson:"created_at"`
	UpdatedAt  time.Time      `bson:"updated_at"`
}

type lineDocument struct {
	ProductID           int64                `bson:"product_id"`
	ProductName         string               `bson:"product_name"`
	UnitPrice           primitive.Decimal128 `bson:"unit_price"`
	Quantity            int                  `bson:"quantity"`
	SpecialInstructions string               `bson:"special_instructions,omitempty"`
	AddedAt             time.Time            `bson:"added_at"`
}

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection(cartsCollection),
	}
}

func (m *MongoRepository) GetCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	var doc cartDocument

	err := m.collection.FindOne(ctx, bson.M{"customer_id": customerID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return fromDocument(&doc)
}

func (m *MongoRepository) UpsertCart(ctx context.Context, cart *domain.Cart) error {
	now := time.Now()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now

	doc, err := toDocument(cart)
	if err != nil {
		return err
	}

	filter := bson.M{"customer_id": cart.CustomerID}
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

func (m *MongoRepository) RemoveLine(ctx context.Context, customerID string, productID int64) error {
	filter := bson.M{"customer_id": customerID}
	update := bson.M{
		"$pull": bson.M{
			"lines": bson.M{"product_id": productID},
		},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to remove line: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *MongoRepository) DeleteCart(ctx context.Context, customerID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"customer_id": customerID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func toDocument(cart *domain.Cart) (*cartDocument, error) {
	doc := &cartDocument{
		CustomerID: cart.CustomerID,
		Lines:      make([]lineDocument, 0, len(cart.Lines)),
		CreatedAt:  cart.CreatedAt,
		UpdatedAt:  cart.UpdatedAt,
	}
	for _, l := range cart.Lines {
		price, err := primitive.ParseDecimal128(l.UnitPrice.String())
		if err != nil {
			return nil, fmt.Errorf("encode unit price %s: %w", l.UnitPrice, err)
		}
		doc.Lines = append(doc.Lines, lineDocument{
			ProductID:           l.ProductID,
			ProductName:         l.ProductName,
			UnitPrice:           price,
			Quantity:            l.Quantity,
			SpecialInstructions: l.SpecialInstructions,
			AddedAt:             l.AddedAt,
		})
	}
	return doc, nil
}

func fromDocument(doc *cartDocument) (*domain.Cart, error) {
	cart := &domain.Cart{
		CustomerID: doc.CustomerID,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
	for _, l := range doc.Lines {
		price, err := decimal.NewFromString(l.UnitPrice.String())
		if err != nil {
			return nil, fmt.Errorf("decode unit price %s: %w", l.UnitPrice, err)
		}
		cart.Lines = append(cart.Lines, domain.CartLine{
			ProductID:           l.ProductID,
			ProductName:         l.ProductName,
			UnitPrice:           price,
			Quantity:            l.Quantity,
			SpecialInstructions: l.SpecialInstructions,
			AddedAt:             l.AddedAt,
		})
	}
	return cart, nil
}
