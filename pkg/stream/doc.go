// Package stream turns a vendor's streaming HTTP response body into a
// sequence of api.ChatDelta values.
//
// Decoding happens in three stages. A LineFramer cuts the raw byte stream
// into newline-delimited frames regardless of how the transport chunked it.
// A Dialect classifies each frame (payload, sentinel, or ignorable) and
// decodes payloads into an Outcome. The Stream ties the stages together
// behind a pull API:
//
//	s := stream.New(resp.Body, stream.NewPrefixedDialect())
//	defer s.Close()
//	for delta, err := range s.All() {
//		if err != nil {
//			return err
//		}
//		fmt.Print(delta.Content)
//	}
//
// The body is read only while the consumer asks for the next delta. There
// are no goroutines: a consumer that stops pulling stops all reads.
package stream
