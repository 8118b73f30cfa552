package subscriptions

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/eternisai/devotional-push/internal/webpush"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultCollection is the Firestore collection holding subscription documents.
const DefaultCollection = "push_subscriptions"

// FirestoreStore keeps one document per record, with the record key as document ID.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

type firestoreRecord struct {
	Subscription webpush.Subscription `firestore:"subscription"`
	Preferences  Preferences          `firestore:"preferences"`
	UpdatedAt    time.Time            `firestore:"updatedAt"`
	ExpiresAt    time.Time            `firestore:"expiresAt"`
}

// NewFirestoreStore wraps a Firestore client.
func NewFirestoreStore(client *firestore.Client, collection string) (*FirestoreStore, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: firestore client is nil", ErrNoStore)
	}
	if collection == "" {
		collection = DefaultCollection
	}
	return &FirestoreStore{client: client, collection: collection, now: time.Now}, nil
}

func (f *FirestoreStore) List(ctx context.Context) ([]Record, error) {
	docs, err := f.client.Collection(f.collection).
		Where("expiresAt", ">", f.now()).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	out := make([]Record, 0, len(docs))
	for _, doc := range docs {
		var data firestoreRecord
		if err := doc.DataTo(&data); err != nil {
			return nil, fmt.Errorf("failed to parse subscription %s: %w", doc.Ref.ID, err)
		}
		out = append(out, data.toRecord(doc.Ref.ID))
	}
	return out, nil
}

func (f *FirestoreStore) Get(ctx context.Context, key string) (Record, error) {
	doc, err := f.client.Collection(f.collection).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("failed to get subscription: %w", err)
	}

	var data firestoreRecord
	if err := doc.DataTo(&data); err != nil {
		return Record{}, fmt.Errorf("failed to parse subscription %s: %w", key, err)
	}
	rec := data.toRecord(key)
	if rec.Expired(f.now()) {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (f *FirestoreStore) Put(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	_, err := f.client.Collection(f.collection).Doc(rec.Key).Set(ctx, firestoreRecord{
		Subscription: rec.Subscription,
		Preferences:  rec.Preferences,
		UpdatedAt:    rec.UpdatedAt,
		ExpiresAt:    rec.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to store subscription: %w", err)
	}
	return nil
}

func (f *FirestoreStore) Delete(ctx context.Context, key string) error {
	_, err := f.client.Collection(f.collection).Doc(key).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func (d firestoreRecord) toRecord(key string) Record {
	return Record{
		Key:          key,
		Subscription: d.Subscription,
		Preferences:  d.Preferences,
		UpdatedAt:    d.UpdatedAt,
		ExpiresAt:    d.ExpiresAt,
	}
}

