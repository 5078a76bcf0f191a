// Package pipeline connects ingestion to recognition. Speech frames
// flow through a bounded queue into the assembler, which accumulates
// them into a phrase buffer and re-transcribes the buffer on a fixed
// tick until a silence gap closes the phrase.
package pipeline
