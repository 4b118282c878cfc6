package protocol

// Codec converts application messages to and from USER frame payloads.
// Out is the type a runtime sends and In the type it receives.
type Codec[Out, In any] interface {
	// Encode appends the encoding of msg to dst and returns the extended
	// buffer.
	Encode(dst []byte, msg Out) ([]byte, error)

	// Decode decodes a complete payload. The payload aliases a connection
	// buffer that is reused after Decode returns, so implementations must
	// copy anything they retain.
	Decode(payload []byte) (In, error)
}
