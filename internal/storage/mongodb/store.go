// Package mongodb implements storage interfaces using MongoDB
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ferderer/EBICS-DocuSign-Gateway/internal/storage"
	"github.com/ferderer/EBICS-DocuSign-Gateway/pkg/cert"
	"github.com/ferderer/EBICS-DocuSign-Gateway/pkg/ebics"
)

// Store implements storage.Store using MongoDB
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	// Collections
	connections  *mongo.Collection
	certificates *mongo.Collection
}

// Config holds MongoDB connection settings
type Config struct {
	URI      string
	Database string
}

// NewStore creates a new MongoDB store
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)

	s := &Store{
		client:       client,
		db:           db,
		connections:  db.Collection("connections"),
		certificates: db.Collection("certificates"),
	}

	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.connections.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "host_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("creating connection indexes: %w", err)
	}

	_, err = s.certificates.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "connection_id", Value: 1}, {Key: "type", Value: 1}, {Key: "usage", Value: 1}, {Key: "active", Value: 1}}},
		{Keys: bson.D{{Key: "fingerprint", Value: 1}}},
		{Keys: bson.D{{Key: "active", Value: 1}, {Key: "not_after", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("creating certificate indexes: %w", err)
	}

	return nil
}

// Close closes the MongoDB connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// ConnectionStore implementation

func (s *Store) CreateConnection(ctx context.Context, conn *storage.ConnectionRecord) error {
	conn.CreatedAt = time.Now()
	conn.UpdatedAt = conn.CreatedAt
	if conn.ID == "" {
		conn.ID = primitive.NewObjectID().Hex()
	}
	if conn.Status == "" {
		conn.Status = ebics.StatusInactive
	}

	_, err := s.connections.InsertOne(ctx, conn)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("connection with host ID %s already exists", conn.HostID)
	}
	return err
}

func (s *Store) GetConnection(ctx context.Context, id string) (*storage.ConnectionRecord, error) {
	var conn storage.ConnectionRecord
	err := s.connections.FindOne(ctx, bson.M{"_id": id}).Decode(&conn)
	if err == mongo.ErrNoDocuments {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (s *Store) GetConnectionByHostID(ctx context.Context, hostID string) (*storage.ConnectionRecord, error) {
	var conn storage.ConnectionRecord
	err := s.connections.FindOne(ctx, bson.M{"host_id": hostID}).Decode(&conn)
	if err == mongo.ErrNoDocuments {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (s *Store) UpdateConnectionStatus(ctx context.Context, id string, status ebics.ConnectionStatus, lastConnected time.Time) error {
	update := bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}
	if !lastConnected.IsZero() {
		update["last_connected"] = lastConnected
	}

	result, err := s.connections.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListConnections(ctx context.Context) ([]*storage.ConnectionRecord, error) {
	cursor, err := s.connections.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "bank_name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var conns []*storage.ConnectionRecord
	if err := cursor.All(ctx, &conns); err != nil {
		return nil, err
	}
	return conns, nil
}

// CertificateStore implementation

func (s *Store) SaveCertificate(ctx context.Context, record *storage.CertificateRecord) error {
	record.CreatedAt = time.Now()
	record.UpdatedAt = record.CreatedAt
	if record.ID == "" {
		record.ID = primitive.NewObjectID().Hex()
	}
	record.Active = true

	// Only one active certificate per (connection, type, usage).
	_, err := s.certificates.UpdateMany(ctx,
		bson.M{
			"connection_id": record.ConnectionID,
			"type":          record.Type,
			"usage":         record.Usage,
			"active":        true,
		},
		bson.M{"$set": bson.M{"active": false, "updated_at": time.Now()}})
	if err != nil {
		return fmt.Errorf("deactivating previous certificates: %w", err)
	}

	_, err = s.certificates.InsertOne(ctx, record)
	return err
}

func (s *Store) GetActiveCertificate(ctx context.Context, connectionID string, certType cert.CertificateType, usage cert.UsageType) (*storage.CertificateRecord, error) {
	var record storage.CertificateRecord
	err := s.certificates.FindOne(ctx, bson.M{
		"connection_id": connectionID,
		"type":          certType,
		"usage":         usage,
		"active":        true,
	}).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) GetCertificateByFingerprint(ctx context.Context, fingerprint string) (*storage.CertificateRecord, error) {
	var record storage.CertificateRecord
	err := s.certificates.FindOne(ctx, bson.M{"fingerprint": fingerprint}).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) FindExpiringBefore(ctx context.Context, deadline time.Time) ([]*storage.CertificateRecord, error) {
	cursor, err := s.certificates.Find(ctx,
		bson.M{"active": true, "not_after": bson.M{"$lt": deadline}},
		options.Find().SetSort(bson.D{{Key: "not_after", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []*storage.CertificateRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) DeactivateCertificate(ctx context.Context, id string) error {
	result, err := s.certificates.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"active": false, "updated_at": time.Now()}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}
