package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

const platformAPNS = "apns"

// FirestoreStore implements dispatch.TokenStore using Google Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
	logger *slog.Logger
}

func NewFirestoreStore(client *firestore.Client, logger *slog.Logger) *FirestoreStore {
	return &FirestoreStore{
		client: client,
		logger: logger.With("component", "FirestoreTokenStore"),
	}
}

// deviceRecord is the internal DB representation.
// The devices collection may be shared with other push platforms.
type deviceRecord struct {
	Platform  string    `firestore:"platform"`
	Token     string    `firestore:"token"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func (s *FirestoreStore) Register(ctx context.Context, user urn.URN, token string) error {
	// Hash of token as Doc ID prevents duplicates and hot-spotting
	record := deviceRecord{
		Platform:  platformAPNS,
		Token:     token,
		UpdatedAt: time.Now(),
	}

	if _, err := s.deviceRef(user, hashToken(token)).Set(ctx, record); err != nil {
		return fmt.Errorf("failed to register apns token: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Unregister(ctx context.Context, user urn.URN, token string) error {
	if _, err := s.deviceRef(user, hashToken(token)).Delete(ctx); err != nil {
		return fmt.Errorf("failed to unregister apns token: %w", err)
	}
	return nil
}

// Fetch returns every APNs token registered for the user.
func (s *FirestoreStore) Fetch(ctx context.Context, user urn.URN) ([]string, error) {
	iter := s.devicesCollection(user).Documents(ctx)
	defer iter.Stop()

	tokens := make([]string, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var record deviceRecord
		if err := doc.DataTo(&record); err != nil {
			s.logger.Warn("Skipping corrupt device record", "doc_id", doc.Ref.ID, "err", err)
			continue
		}
		if record.Platform != platformAPNS || record.Token == "" {
			continue
		}
		tokens = append(tokens, record.Token)
	}

	return tokens, nil
}

// deviceRef: users/{userID}/devices/{tokenHash}
func (s *FirestoreStore) deviceRef(user urn.URN, docID string) *firestore.DocumentRef {
	return s.devicesCollection(user).Doc(docID)
}

func (s *FirestoreStore) devicesCollection(user urn.URN) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(user.String()).Collection("devices")
}

func hashToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
