package mongo

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo/readpref"

	"subtrack/m/v2/app/billing"
	"subtrack/m/v2/app/models"
)

// MockMongoDBClient is an in-memory stand-in for the MongoDB client, used
// by api, telegram and notifier tests.
type MockMongoDBClient struct {
	MongoClient

	mu    sync.Mutex
	Users map[int64]models.User
	Subs  map[string]models.Subscription
}

func NewMockMongoDBClient(subs ...models.Subscription) *MockMongoDBClient {
	m := &MockMongoDBClient{
		Users: make(map[int64]models.User),
		Subs:  make(map[string]models.Subscription),
	}
	for _, sub := range subs {
		m.Subs[sub.ID] = sub
	}
	return m
}

func (m *MockMongoDBClient) Disconnect(ctx context.Context) error { return nil }

func (m *MockMongoDBClient) Ping(ctx context.Context, rp *readpref.ReadPref) error { return nil }

func (m *MockMongoDBClient) EnsureIndexes(ctx context.Context) error { return nil }

func (m *MockMongoDBClient) UpsertUser(ctx context.Context, user models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := nowStamp()
	user.LanguageCode = normalizeLanguage(user.LanguageCode)
	if existing, ok := m.Users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
	} else {
		user.CreatedAt = now
	}
	user.LastActiveAt = now
	m.Users[user.ID] = user
	return &user, nil
}

func (m *MockMongoDBClient) GetAllUsers(ctx context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := []models.User{}
	for _, user := range m.Users {
		users = append(users, user)
	}
	return users, nil
}

func (m *MockMongoDBClient) GetUsersCount(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.Users)), nil
}

func (m *MockMongoDBClient) GetSubscriptionsCount(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.Subs)), nil
}

func (m *MockMongoDBClient) CreateSubscription(ctx context.Context, sub models.Subscription) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := nowStamp()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	m.Subs[sub.ID] = sub
	return &sub, nil
}

func (m *MockMongoDBClient) GetSubscription(ctx context.Context, ownerID int64, id string) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.Subs[id]
	if !ok || sub.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (m *MockMongoDBClient) ListSubscriptions(ctx context.Context, ownerID int64) ([]models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := []models.Subscription{}
	for _, sub := range m.Subs {
		if sub.OwnerID == ownerID {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (m *MockMongoDBClient) UpdateSubscription(ctx context.Context, ownerID int64, id string, apply func(models.Subscription) models.Subscription) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.Subs[id]
	if !ok || current.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	updated := apply(current)
	updated.ID = current.ID
	updated.OwnerID = current.OwnerID
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = nowStamp()
	m.Subs[id] = updated
	return &updated, nil
}

func (m *MockMongoDBClient) DeleteSubscription(ctx context.Context, ownerID int64, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.Subs[id]
	if !ok || sub.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(m.Subs, id)
	return nil
}

func (m *MockMongoDBClient) RecordPayment(ctx context.Context, ownerID int64, id string, paidOn time.Time) (*models.Subscription, error) {
	return m.UpdateSubscription(ctx, ownerID, id, func(sub models.Subscription) models.Subscription {
		return billing.RecordPayment(sub, paidOn)
	})
}

func (m *MockMongoDBClient) MergeSync(ctx context.Context, ownerID int64, incoming []models.Subscription) ([]models.Subscription, error) {
	existing, err := m.ListSubscriptions(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	merged := MergeSubscriptions(ownerID, existing, incoming, time.Now().UTC())
	for _, sub := range merged {
		m.Subs[sub.ID] = sub
	}
	return merged, nil
}
