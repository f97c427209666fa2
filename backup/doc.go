// Package backup copies an ngf store to and from a compressed stream.
//
// A backup is a 16-byte preamble followed by the store image (header page
// and heap) run through the chosen codec:
//
//	0x00 magic "NGFB"   0x04 version u8   0x05 codec u8   0x06 reserved u16
//	0x08 image length u64
//
// The image is taken under a reader scope, so it is a state some writer
// scope left behind, and its header is marked as synced. Restore writes the
// image to a new file and opens it to validate the header and heap before
// reporting success.
package backup
