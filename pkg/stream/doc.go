// ABOUTME: Stream pipeline package: encoder, reorder buffer, decoder
// ABOUTME: Converts PCM bytes to ordered chunks and back to a gapless stream
// Package stream implements the chunk pipeline of the pcmcast transport.
//
// The send side uses an Encoder to slice raw PCM bytes into sequenced,
// time-bounded chunks. The receive side feeds chunks (in any arrival order,
// possibly duplicated) to a Decoder, which reorders them through a bounded
// Buffer and exposes a pull-driven, backpressure-aware byte stream whose
// output equals the original PCM byte sequence.
//
//	enc := stream.NewEncoder(stream.EncoderConfig{})
//	chunks := enc.Encode(pcm)
//	chunks = append(chunks, enc.Flush()...)
//
//	dec := stream.NewDecoder(stream.DecoderConfig{})
//	out := dec.CreateStream()
//	for _, c := range chunks {
//	    dec.AddChunk(c)
//	}
//	data, _ := io.ReadAll(out) // data equals pcm
package stream
