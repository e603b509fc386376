package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/Toumari/NorthStar/app/config"
	"github.com/Toumari/NorthStar/app/models"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const usersCollection = "users"

// FirestoreStore keeps the record on users/{uid} documents.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore connects with the service-account fields from cfg, or with
// application default credentials when no private key is configured.
func NewFirestoreStore(ctx context.Context, cfg config.FirebaseConfig) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if cfg.PrivateKey != "" {
		creds, err := serviceAccountJSON(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithCredentialsJSON(creds))
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	log.Info().Str("project_id", cfg.ProjectID).Msg("Connected to Firestore")
	return &FirestoreStore{client: client}, nil
}

func serviceAccountJSON(cfg config.FirebaseConfig) ([]byte, error) {
	if cfg.ClientEmail == "" {
		return nil, errors.New("FIREBASE_CLIENT_EMAIL must be set with FIREBASE_PRIVATE_KEY")
	}
	return json.Marshal(map[string]string{
		"type":         "service_account",
		"project_id":   cfg.ProjectID,
		"client_email": cfg.ClientEmail,
		"private_key":  cfg.PrivateKey,
		"token_uri":    "https://oauth2.googleapis.com/token",
	})
}

func (s *FirestoreStore) doc(userID string) *firestore.DocumentRef {
	return s.client.Collection(usersCollection).Doc(userID)
}

func (s *FirestoreStore) GetSubscription(ctx context.Context, userID string) (models.SubscriptionRecord, error) {
	snap, err := s.doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.SubscriptionRecord{}, ErrNotFound
		}
		return models.SubscriptionRecord{}, fmt.Errorf("get user %s: %w", userID, err)
	}
	return models.RecordFromFields(snap.Data()), nil
}

func (s *FirestoreStore) EnsureProfile(ctx context.Context, userID string) (models.SubscriptionRecord, error) {
	r, err := s.GetSubscription(ctx, userID)
	if !errors.Is(err, ErrNotFound) {
		return r, err
	}

	def := models.DefaultRecord()
	_, err = s.doc(userID).Create(ctx, map[string]any{
		models.FieldTier:   def.Tier,
		models.FieldStatus: def.Status,
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			// A concurrent request created it first.
			return s.GetSubscription(ctx, userID)
		}
		return models.SubscriptionRecord{}, fmt.Errorf("create user %s: %w", userID, err)
	}
	return def, nil
}

func (s *FirestoreStore) MergeSubscription(ctx context.Context, userID string, patch models.SubscriptionPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	if _, err := s.doc(userID).Set(ctx, patch.Fields(), firestore.MergeAll); err != nil {
		return fmt.Errorf("merge user %s: %w", userID, err)
	}
	return nil
}

func (s *FirestoreStore) FindUsersBySubscriptionID(ctx context.Context, subscriptionID string, limit int) ([]string, error) {
	return s.findBy(ctx, models.FieldSubscriptionID, subscriptionID, limit)
}

func (s *FirestoreStore) FindUsersByCustomerID(ctx context.Context, customerID string, limit int) ([]string, error) {
	return s.findBy(ctx, models.FieldCustomerID, customerID, limit)
}

func (s *FirestoreStore) findBy(ctx context.Context, field, value string, limit int) ([]string, error) {
	if value == "" {
		return nil, nil
	}
	q := s.client.Collection(usersCollection).Where(field, "==", value)
	if limit > 0 {
		q = q.Limit(limit)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	var ids []string
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query users by %s: %w", field, err)
		}
		ids = append(ids, snap.Ref.ID)
	}
	return ids, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
