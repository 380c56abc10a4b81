package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"subtrack/m/v2/app/billing"
	"subtrack/m/v2/app/config"
	"subtrack/m/v2/app/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	backoff "gopkg.in/cenkalti/backoff.v1"
)

const (
	MongoUserCollection         = "users"
	MongoSubscriptionCollection = "subscriptions"
)

// ErrNotFound covers both a missing id and an id owned by someone else, so
// non-owners cannot probe for existence.
var ErrNotFound = errors.New("not found")

// Client is a mongo client
type Client struct {
	*mongo.Client

	// ownerLocks serializes read-modify-write sequences per owner; the
	// underlying store has no transactions to lean on.
	ownerLocks sync.Map
}

type MongoClient interface {
	Disconnect(ctx context.Context) error
	Ping(ctx context.Context, rp *readpref.ReadPref) error
	EnsureIndexes(ctx context.Context) error

	UpsertUser(ctx context.Context, user models.User) (*models.User, error)
	GetAllUsers(ctx context.Context) ([]models.User, error)
	GetUsersCount(ctx context.Context) (int64, error)
	GetSubscriptionsCount(ctx context.Context) (int64, error)

	CreateSubscription(ctx context.Context, sub models.Subscription) (*models.Subscription, error)
	GetSubscription(ctx context.Context, ownerID int64, id string) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, ownerID int64) ([]models.Subscription, error)
	UpdateSubscription(ctx context.Context, ownerID int64, id string, apply func(models.Subscription) models.Subscription) (*models.Subscription, error)
	DeleteSubscription(ctx context.Context, ownerID int64, id string) error
	RecordPayment(ctx context.Context, ownerID int64, id string, paidOn time.Time) (*models.Subscription, error)
	MergeSync(ctx context.Context, ownerID int64, incoming []models.Subscription) ([]models.Subscription, error)
}

var MongoDBClient MongoClient

// NewClient creates a new mongo client
func NewClient(connection string) *Client {
	return &Client{
		Client: mustConnect(connection),
	}
}

// mustConnect connects to mongo, retrying briefly, and panics when the
// store never comes up.
func mustConnect(connection string) *mongo.Client {
	client, err := mongo.NewClient(options.Client().ApplyURI(connection).SetMaxConnecting(25))
	if err != nil {
		logrus.WithError(err).Panic("failed to create mongo client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err = client.Connect(ctx)
	if err != nil {
		logrus.WithError(err).Panic("failed to connect to mongo")
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second
	err = backoff.Retry(func() error {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer pingCancel()
		return client.Ping(pingCtx, readpref.Primary())
	}, policy)
	if err != nil {
		logrus.WithError(err).Panic("mongo did not answer ping")
	}

	return client
}

func (c *Client) users() *mongo.Collection {
	return c.Database(config.CONFIG.MongoDBName).Collection(MongoUserCollection)
}

func (c *Client) subscriptions() *mongo.Collection {
	return c.Database(config.CONFIG.MongoDBName).Collection(MongoSubscriptionCollection)
}

// EnsureIndexes backs the list-by-owner query path; safe to call on every
// start, index creation is idempotent.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	_, err := c.subscriptions().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("EnsureIndexes: failed to create owner_id index: %w", err)
	}
	return nil
}

func (c *Client) lockOwner(ownerID int64) func() {
	v, _ := c.ownerLocks.LoadOrStore(ownerID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// UpsertUser refreshes the profile fields and lastActiveAt on every
// session init, creating the record on first contact.
func (c *Client) UpsertUser(ctx context.Context, user models.User) (*models.User, error) {
	now := nowStamp()
	filter := bson.M{"_id": user.ID}
	update := bson.M{
		"$set": bson.M{
			"first_name":     user.FirstName,
			"last_name":      user.LastName,
			"username":       user.Username,
			"language_code":  normalizeLanguage(user.LanguageCode),
			"last_active_at": now,
		},
		"$setOnInsert": bson.M{
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var saved models.User
	err := c.users().FindOneAndUpdate(ctx, filter, update, opts).Decode(&saved)
	if err != nil {
		return nil, fmt.Errorf("UpsertUser: failed to upsert user %d: %w", user.ID, err)
	}
	return &saved, nil
}

func (c *Client) GetAllUsers(ctx context.Context) ([]models.User, error) {
	cursor, err := c.users().Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("GetAllUsers: failed to query users: %w", err)
	}
	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("GetAllUsers: failed to decode users: %w", err)
	}
	return users, nil
}

func (c *Client) GetUsersCount(ctx context.Context) (int64, error) {
	count, err := c.users().CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("GetUsersCount: failed to get users count: %w", err)
	}
	return count, nil
}

func (c *Client) GetSubscriptionsCount(ctx context.Context) (int64, error) {
	count, err := c.subscriptions().CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("GetSubscriptionsCount: failed to get subscriptions count: %w", err)
	}
	return count, nil
}

func (c *Client) CreateSubscription(ctx context.Context, sub models.Subscription) (*models.Subscription, error) {
	unlock := c.lockOwner(sub.OwnerID)
	defer unlock()

	now := nowStamp()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	_, err := c.subscriptions().InsertOne(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("CreateSubscription: failed to insert subscription for owner %d: %w", sub.OwnerID, err)
	}
	return &sub, nil
}

func (c *Client) GetSubscription(ctx context.Context, ownerID int64, id string) (*models.Subscription, error) {
	var sub models.Subscription
	err := c.subscriptions().FindOne(ctx, bson.M{"_id": id, "owner_id": ownerID}).Decode(&sub)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetSubscription: failed to find subscription %s: %w", id, err)
	}
	return &sub, nil
}

func (c *Client) ListSubscriptions(ctx context.Context, ownerID int64) ([]models.Subscription, error) {
	cursor, err := c.subscriptions().Find(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return nil, fmt.Errorf("ListSubscriptions: failed to query subscriptions for owner %d: %w", ownerID, err)
	}
	subs := []models.Subscription{}
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, fmt.Errorf("ListSubscriptions: failed to decode subscriptions for owner %d: %w", ownerID, err)
	}
	return subs, nil
}

// UpdateSubscription runs a read-modify-write under the owner lock: fetch,
// apply the caller's transform, stamp updatedAt and persist.
func (c *Client) UpdateSubscription(ctx context.Context, ownerID int64, id string, apply func(models.Subscription) models.Subscription) (*models.Subscription, error) {
	unlock := c.lockOwner(ownerID)
	defer unlock()

	current, err := c.GetSubscription(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	updated := apply(*current)
	// identity and ownership survive any transform
	updated.ID = current.ID
	updated.OwnerID = current.OwnerID
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = nowStamp()

	_, err = c.subscriptions().ReplaceOne(ctx, bson.M{"_id": id, "owner_id": ownerID}, updated)
	if err != nil {
		return nil, fmt.Errorf("UpdateSubscription: failed to replace subscription %s: %w", id, err)
	}
	return &updated, nil
}

func (c *Client) DeleteSubscription(ctx context.Context, ownerID int64, id string) error {
	unlock := c.lockOwner(ownerID)
	defer unlock()

	result, err := c.subscriptions().DeleteOne(ctx, bson.M{"_id": id, "owner_id": ownerID})
	if err != nil {
		return fmt.Errorf("DeleteSubscription: failed to delete subscription %s: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordPayment advances the schedule with the engine transform and
// persists the result.
func (c *Client) RecordPayment(ctx context.Context, ownerID int64, id string, paidOn time.Time) (*models.Subscription, error) {
	return c.UpdateSubscription(ctx, ownerID, id, func(sub models.Subscription) models.Subscription {
		return billing.RecordPayment(sub, paidOn)
	})
}

// MergeSync reconciles a client snapshot against server state with
// last-writer-wins by updatedAt. Server-only records survive: the bot may
// have mutated them after the client took its snapshot.
func (c *Client) MergeSync(ctx context.Context, ownerID int64, incoming []models.Subscription) ([]models.Subscription, error) {
	unlock := c.lockOwner(ownerID)
	defer unlock()

	existing, err := c.ListSubscriptions(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	merged := MergeSubscriptions(ownerID, existing, incoming, time.Now().UTC())
	for _, sub := range merged {
		opts := options.Replace().SetUpsert(true)
		_, err := c.subscriptions().ReplaceOne(ctx, bson.M{"_id": sub.ID, "owner_id": ownerID}, sub, opts)
		if err != nil {
			return nil, fmt.Errorf("MergeSync: failed to persist subscription %s for owner %d: %w", sub.ID, ownerID, err)
		}
	}
	logrus.Infof("MergeSync: owner %d, %d incoming, %d existing, %d merged", ownerID, len(incoming), len(existing), len(merged))
	return merged, nil
}

func normalizeLanguage(code string) string {
	if code == "ru" {
		return "ru"
	}
	return "en"
}

func nowStamp() string {
	return time.Now().UTC().Format(models.TimestampLayout)
}
