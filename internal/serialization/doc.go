// Package serialization implements the .born container used for model
// checkpoints.
//
// Layout (all integers little-endian):
//
//	0x00  [4]byte  magic "BORN"
//	0x04  uint32   format version (2)
//	0x08  uint32   flags
//	0x0C  uint32   reserved
//	0x10  uint64   JSON header size
//	0x18  uint64   data section size
//	0x20  [32]byte SHA-256 of the data section
//	0x40  JSON header
//	      zero padding to a 64-byte boundary
//	      tensor data, in header order
//
// Tensors are stored in name order, so the same state dict always produces
// the same data section and checksum.
package serialization
