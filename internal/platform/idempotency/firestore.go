package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/hcp-portal/api/internal/platform/firestore"
)

const (
	defaultCollection  = "submissionKeys"
	defaultMaxAttempts = 5
)

// FirestoreStore keeps keys in a Firestore collection. Configure a TTL policy on expiresAt to
// have Firestore remove old records.
type FirestoreStore struct {
	provider    *pfirestore.Provider
	collection  string
	maxAttempts int
}

var _ Store = (*FirestoreStore)(nil)

// NewFirestoreStore builds a store on provider. An empty collection selects submissionKeys.
func NewFirestoreStore(provider *pfirestore.Provider, collection string) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("idempotency: firestore provider is required")
	}
	if strings.TrimSpace(collection) == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{provider: provider, collection: collection, maxAttempts: defaultMaxAttempts}, nil
}

type keyDocument struct {
	Fingerprint string              `firestore:"fingerprint"`
	State       string              `firestore:"state"`
	Status      int                 `firestore:"status"`
	Header      map[string][]string `firestore:"header,omitempty"`
	Body        []byte              `firestore:"body,omitempty"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

func (d keyDocument) record() Record {
	return Record{
		Fingerprint: d.Fingerprint,
		State:       State(d.State),
		Status:      d.Status,
		Header:      d.Header,
		Body:        d.Body,
		CreatedAt:   d.CreatedAt,
		ExpiresAt:   d.ExpiresAt,
	}
}

// Reserve implements Store.
func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Record, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	client, ref, err := s.ref(ctx, key)
	if err != nil {
		return 0, Record{}, err
	}

	var (
		outcome Outcome
		result  Record
	)
	err = client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		var doc keyDocument
		if err == nil {
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
		}
		if err != nil || expired(doc.record(), now) {
			doc = keyDocument{Fingerprint: fingerprint, State: string(StatePending), CreatedAt: now, ExpiresAt: now.Add(ttl)}
			outcome, result = OutcomeReserved, doc.record()
			return tx.Set(ref, doc)
		}
		if doc.Fingerprint != fingerprint {
			return ErrKeyReused
		}
		result = doc.record()
		if doc.State == string(StateCompleted) {
			outcome = OutcomeReplay
		} else {
			outcome = OutcomeInFlight
		}
		return nil
	}, firestore.MaxAttempts(s.maxAttempts))
	if errors.Is(err, ErrKeyReused) {
		return 0, Record{}, ErrKeyReused
	}
	if err != nil {
		return 0, Record{}, pfirestore.WrapError("idempotency.reserve", err)
	}
	return outcome, result, nil
}

// Complete implements Store.
func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, record Record, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	client, ref, err := s.ref(ctx, key)
	if err != nil {
		return err
	}

	err = client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		created := now
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var existing keyDocument
			if err := snap.DataTo(&existing); err != nil {
				return err
			}
			if existing.Fingerprint != fingerprint {
				return ErrKeyReused
			}
			if !existing.CreatedAt.IsZero() {
				created = existing.CreatedAt
			}
		case status.Code(err) != codes.NotFound:
			return err
		}
		return tx.Set(ref, keyDocument{
			Fingerprint: fingerprint,
			State:       string(StateCompleted),
			Status:      record.Status,
			Header:      record.Header,
			Body:        record.Body,
			CreatedAt:   created,
			ExpiresAt:   now.Add(ttl),
		})
	}, firestore.MaxAttempts(s.maxAttempts))
	if errors.Is(err, ErrKeyReused) {
		return ErrKeyReused
	}
	return pfirestore.WrapError("idempotency.complete", err)
}

// Release implements Store.
func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	_, ref, err := s.ref(ctx, key)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return pfirestore.WrapError("idempotency.release", err)
	}
	return nil
}

func (s *FirestoreStore) ref(ctx context.Context, key string) (*firestore.Client, *firestore.DocumentRef, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Collection(s.collection).Doc(documentID(key)), nil
}
