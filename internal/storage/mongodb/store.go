// Package mongodb implements storage interfaces using MongoDB
package mongodb

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/omerasipi/Es-Selam-Banko/internal/storage"
)

// Store implements storage.Store using MongoDB
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	gridfs *gridfs.Bucket

	// Collections
	statements   *mongo.Collection
	transactions *mongo.Collection
	analyses     *mongo.Collection
}

// Config holds MongoDB connection settings
type Config struct {
	URI            string
	Database       string
	GridFSBucket   string
	ChunkSizeBytes int32
	// Timeout bounds connecting and the initial ping
	Timeout time.Duration
}

// NewStore creates a new MongoDB store
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	// Connect to MongoDB
	clientOpts := options.Client().ApplyURI(cfg.URI).SetRegistry(newRegistry())
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	// Verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)

	// Create GridFS bucket for raw files
	bucketName := cfg.GridFSBucket
	if bucketName == "" {
		bucketName = "statements"
	}
	chunkSize := cfg.ChunkSizeBytes
	if chunkSize == 0 {
		chunkSize = 261120 // 255KB
	}
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().
		SetName(bucketName).
		SetChunkSizeBytes(chunkSize))
	if err != nil {
		return nil, fmt.Errorf("creating GridFS bucket: %w", err)
	}

	s := &Store{
		client:       client,
		db:           db,
		gridfs:       bucket,
		statements:   db.Collection("statements"),
		transactions: db.Collection("transactions"),
		analyses:     db.Collection("analyses"),
	}

	// Create indexes
	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	// Statement indexes. Only non-empty checksums are unique.
	_, err := s.statements.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "checksum", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"checksum": bson.M{"$gt": ""}}),
		},
		{Keys: bson.D{{Key: "message_id", Value: 1}}},
		{Keys: bson.D{{Key: "format", Value: 1}, {Key: "received_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("creating statement indexes: %w", err)
	}

	// Transaction indexes
	_, err = s.transactions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "statement_id", Value: 1}}},
		{Keys: bson.D{{Key: "date", Value: 1}, {Key: "type", Value: 1}}},
		{Keys: bson.D{{Key: "debtorname", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("creating transaction indexes: %w", err)
	}

	// Analysis indexes
	_, err = s.analyses.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("creating analysis indexes: %w", err)
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

// Drop removes the database, used by tests
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

// StatementStore implementation

func (s *Store) CreateStatement(ctx context.Context, stmt *storage.Statement) error {
	if stmt.ID == "" {
		stmt.ID = primitive.NewObjectID().Hex()
	}
	if stmt.ReceivedAt.IsZero() {
		stmt.ReceivedAt = time.Now()
	}

	_, err := s.statements.InsertOne(ctx, stmt)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: statement with checksum %s", storage.ErrDuplicate, stmt.Checksum)
	}
	return err
}

func (s *Store) GetStatement(ctx context.Context, id string) (*storage.Statement, error) {
	return s.findStatement(ctx, bson.M{"_id": id})
}

func (s *Store) GetStatementByChecksum(ctx context.Context, checksum string) (*storage.Statement, error) {
	return s.findStatement(ctx, bson.M{"checksum": checksum})
}

func (s *Store) findStatement(ctx context.Context, query bson.M) (*storage.Statement, error) {
	var stmt storage.Statement
	err := s.statements.FindOne(ctx, query).Decode(&stmt)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &stmt, nil
}

func (s *Store) ListStatements(ctx context.Context, filter *storage.StatementFilter) ([]*storage.Statement, error) {
	query := bson.M{}
	if filter != nil {
		if filter.Format != "" {
			query["format"] = filter.Format
		}
		if filter.Since != nil {
			query["received_at"] = bson.M{"$gte": *filter.Since}
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "received_at", Value: -1}, {Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			opts.SetLimit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			opts.SetSkip(int64(filter.Offset))
		}
	}

	cursor, err := s.statements.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	statements := make([]*storage.Statement, 0)
	if err := cursor.All(ctx, &statements); err != nil {
		return nil, err
	}
	return statements, nil
}

func (s *Store) DeleteStatement(ctx context.Context, id string) error {
	res, err := s.statements.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	if _, err := s.transactions.DeleteMany(ctx, bson.M{"statement_id": id}); err != nil {
		return fmt.Errorf("deleting transactions: %w", err)
	}
	return nil
}

// TransactionStore implementation

func (s *Store) SaveTransactions(ctx context.Context, records []*storage.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}

	now := time.Now()
	docs := make([]interface{}, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			r.ID = primitive.NewObjectID().Hex()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		docs = append(docs, r)
	}

	_, err := s.transactions.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err != nil {
		return fmt.Errorf("inserting transactions: %w", err)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, filter *storage.TransactionFilter) ([]*storage.TransactionRecord, error) {
	query := bson.M{}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if filter != nil {
		if filter.StatementID != "" {
			query["statement_id"] = filter.StatementID
		}
		date := bson.M{}
		if !filter.From.IsZero() {
			date["$gte"] = filter.From
		}
		if !filter.To.IsZero() {
			date["$lte"] = filter.To
		}
		if len(date) > 0 {
			query["date"] = date
		}
		if filter.Type != "" {
			query["type"] = filter.Type
		}
		if filter.Debtor != "" {
			query["debtorname"] = bson.M{"$regex": "^" + regexp.QuoteMeta(filter.Debtor) + "$", "$options": "i"}
		}
		if filter.Limit > 0 {
			opts.SetLimit(int64(filter.Limit))
		}
	}

	cursor, err := s.transactions.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := make([]*storage.TransactionRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// AnalysisStore implementation

func (s *Store) SaveAnalysis(ctx context.Context, rec *storage.AnalysisRecord) error {
	if rec.ID == "" {
		rec.ID = primitive.NewObjectID().Hex()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := s.analyses.InsertOne(ctx, rec)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: analysis %s", storage.ErrDuplicate, rec.ID)
	}
	return err
}

func (s *Store) GetAnalysis(ctx context.Context, id string) (*storage.AnalysisRecord, error) {
	var rec storage.AnalysisRecord
	err := s.analyses.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RawFileStore implementation

func (s *Store) StoreRawFile(ctx context.Context, file *storage.RawFile) (string, error) {
	// Calculate checksum if not provided
	if file.Checksum == "" {
		hash := sha256.Sum256(file.Data)
		file.Checksum = hex.EncodeToString(hash[:])
	}

	uploadOpts := options.GridFSUpload().SetMetadata(bson.M{
		"content_type": file.ContentType,
		"compressed":   file.Compressed,
		"checksum":     file.Checksum,
	})

	fileID, err := s.gridfs.UploadFromStream(file.FileName, bytes.NewReader(file.Data), uploadOpts)
	if err != nil {
		return "", fmt.Errorf("uploading raw file: %w", err)
	}

	file.ID = fileID.Hex()
	return file.ID, nil
}

func (s *Store) GetRawFile(ctx context.Context, id string) (*storage.RawFile, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid raw file ID %q", storage.ErrNotFound, id)
	}

	downloadStream, err := s.gridfs.OpenDownloadStream(objID)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("opening download stream: %w", err)
	}
	defer downloadStream.Close()

	data, err := io.ReadAll(downloadStream)
	if err != nil {
		return nil, fmt.Errorf("reading raw file: %w", err)
	}

	file := downloadStream.GetFile()
	metadata := file.Metadata

	contentType, _ := metadata.Lookup("content_type").StringValueOK()
	compressed, _ := metadata.Lookup("compressed").BooleanOK()
	checksum, _ := metadata.Lookup("checksum").StringValueOK()

	return &storage.RawFile{
		ID:          id,
		FileName:    file.Name,
		ContentType: contentType,
		Compressed:  compressed,
		Checksum:    checksum,
		Data:        data,
	}, nil
}

func (s *Store) DeleteRawFile(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: invalid raw file ID %q", storage.ErrNotFound, id)
	}
	err = s.gridfs.Delete(objID)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return storage.ErrNotFound
	}
	return err
}

var _ storage.Store = (*Store)(nil)
