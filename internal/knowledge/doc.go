// Package knowledge stores embedded knowledge-base passages in PostgreSQL
// (pgvector) and retrieves the passages closest to a question.
//
// Store implements workflow.Retriever. Indexer reads markdown files, splits
// them with Chunk and replaces the stored passages of each file atomically.
package knowledge
