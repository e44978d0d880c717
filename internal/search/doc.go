// Package search ranks notes against a free-text query.
//
// Wine names, tasting notes, and recognized label text are folded to
// lower-case ASCII, tokenized, and compared as TF-IDF weighted vectors so
// rare label words (producer, appellation) outweigh common ones ("wine",
// "red").
package search
