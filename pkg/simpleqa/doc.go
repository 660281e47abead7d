// Package simpleqa provides the question and answer lifecycle with image
// attachments kept in a blob store.
//
// A single Service interface orchestrates users, questions, answers and file
// attachments. Implementations of the metadata repository (memory, Postgres)
// and of blob stores (memory, filesystem, S3) live in subpackages.
//
// # Ownership
//
// Only the user who created a question or answer may change or delete it, and
// only that user may attach files to it or detach files from it. A question
// that has answers cannot be deleted.
//
// # Attachments
//
// Metadata and blobs live in two stores that can fail independently. Attach
// writes the blob before the row; Detach removes the row before the blob. The
// only inconsistency this leaves is a blob without a row, which is reported as
// a *PartialFailureError listing the orphaned keys and sent to the EventSink.
// Nothing is retried or garbage collected automatically.
package simpleqa
