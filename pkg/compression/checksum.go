package compression

import "hash/crc32"

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Checksum returns the CRC-32C of data. It is computed over uncompressed
// bytes and checked on every decompression.
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

func Verify(data []byte, sum uint32) bool {
	return Checksum(data) == sum
}
