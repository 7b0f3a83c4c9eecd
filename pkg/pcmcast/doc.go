// ABOUTME: High-level pcmcast streaming API
// ABOUTME: Provides Sender/Receiver orchestration and Client/Server transport
// Package pcmcast provides the high-level APIs for real-time PCM streaming
// over WebSocket.
//
// This is the main entry point for most library users, providing:
//   - Sender: Encode and pace PCM into chunk emissions
//   - Receiver: Reassemble chunks into a gapless output stream
//   - Client: Connect to servers with auto-reconnect and play streams
//   - Server: Fan a PCM source out to one or more clients
//
// For lower-level control, see the audio, stream, and pace packages.
//
// Example Server:
//
//	server, err := pcmcast.NewServer(pcmcast.ServerConfig{Port: 9240})
//	go server.Start()
//	server.StreamToAll(pcmBytes)
//
// Example Client:
//
//	client := pcmcast.NewClient(pcmcast.ClientConfig{ServerAddr: "localhost:9240"})
//	err := client.Connect()
//	out, format, err := client.WaitForStream(ctx)
package pcmcast
