// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Chunk types and the wire serialization codec
// Package audio provides fundamental audio types for PCM streaming.
//
// This package defines the core types used throughout the pcmcast library:
//   - Format: Describes a raw PCM stream (sample rate, channels, bit depth, encoding)
//   - Chunk: One sequenced, time-bounded slice of PCM audio with format metadata
//   - Serialized: The text-safe wire form of a Chunk (base64 payload, JSON frame)
//
// It also provides the byte/duration arithmetic shared by the encoder and
// decoder:
//
//	format := audio.DefaultFormat() // 16kHz mono 16-bit s16le
//	size := format.ChunkBytes(100)  // 3200 bytes per 100ms chunk
//	ms := format.Duration(1600)     // 50ms
package audio
