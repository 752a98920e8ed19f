package rag

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
)

// Vector backend names accepted by VECTOR_BACKEND.
const (
	BackendChromem  = "chromem"
	BackendQdrant   = "qdrant"
	BackendPGVector = "pgvector"
)

// StoreConfig selects and configures a vector backend.
type StoreConfig struct {
	// Backend is one of BackendChromem (default), BackendQdrant, BackendPGVector.
	Backend string
	// Collection is the collection or table name.
	Collection string
	// Dimensions is the embedding length (qdrant and pgvector only).
	Dimensions int
	// ChromemPath persists chromem to disk; empty keeps it in memory.
	ChromemPath string
	// Qdrant holds the Qdrant connection settings.
	Qdrant QdrantConfig
	// DB is the Postgres pool used by pgvector.
	DB *sql.DB
}

// StoreConfigFromEnv reads VECTOR_BACKEND, VECTOR_COLLECTION, CHROMEM_PATH
// and QDRANT_*. Dimensions and DB are left for the caller.
func StoreConfigFromEnv() StoreConfig {
	port, _ := strconv.Atoi(os.Getenv("QDRANT_PORT"))
	tls, _ := strconv.ParseBool(os.Getenv("QDRANT_TLS"))
	backend := os.Getenv("VECTOR_BACKEND")
	if backend == "" {
		backend = BackendChromem
	}
	return StoreConfig{
		Backend:     backend,
		Collection:  os.Getenv("VECTOR_COLLECTION"),
		ChromemPath: os.Getenv("CHROMEM_PATH"),
		Qdrant: QdrantConfig{
			Host:   os.Getenv("QDRANT_HOST"),
			Port:   port,
			APIKey: os.Getenv("QDRANT_API_KEY"),
			UseTLS: tls,
		},
	}
}

// OpenStore constructs the configured VectorStore.
func OpenStore(ctx context.Context, cfg StoreConfig) (VectorStore, error) {
	switch cfg.Backend {
	case BackendChromem, "":
		return NewChromemStore(&ChromemConfig{Path: cfg.ChromemPath, Collection: cfg.Collection})
	case BackendQdrant:
		q := cfg.Qdrant
		q.Collection = cfg.Collection
		q.VectorSize = uint64(cfg.Dimensions)
		return NewQdrantStore(ctx, &q)
	case BackendPGVector:
		if cfg.DB == nil {
			return nil, fmt.Errorf("rag: pgvector requires the postgres record store (DATABASE_DRIVER=postgres)")
		}
		return NewPGVectorStore(ctx, cfg.DB, &PGVectorConfig{Table: cfg.Collection, Dimensions: cfg.Dimensions})
	default:
		return nil, fmt.Errorf("rag: unknown vector backend %q (valid values: chromem, qdrant, pgvector)", cfg.Backend)
	}
}
