package meshkeep

// LibraryVersion is the semantic version of this module, independent of
// the wire-level identity.Version.ProtocolVersion that peers exchange
// during the handshake.
const LibraryVersion = "0.1.0"
