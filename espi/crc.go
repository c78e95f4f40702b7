package espi

// CRC32 is a software table-driven CRC-32 (IEEE polynomial) fallback for
// boards with no hardware CRC accelerator wired up; same two-method
// Update/Sum32 shape as the accelerator-backed implementation it stands
// in for, so espi call sites don't care which one they're holding.
type CRC32 struct {
	crc uint32
}

const crc32Poly = 0xEDB88320

var crc32Table [256]uint32

func init() {
	for i := range crc32Table {
		c := uint32(i)
		for range 8 {
			if c&1 != 0 {
				c = crc32Poly ^ (c >> 1)
			} else {
				c >>= 1
			}
		}
		crc32Table[i] = c
	}
}

// NewCRC32 returns a CRC32 ready to accumulate bytes.
func NewCRC32() *CRC32 { return &CRC32{crc: 0xFFFFFFFF} }

// Update folds data into the running CRC, supporting split/incremental
// calculation across multiple calls.
func (c *CRC32) Update(data []byte) {
	crc := c.crc
	for _, b := range data {
		crc = crc32Table[byte(crc)^b] ^ (crc >> 8)
	}
	c.crc = crc
}

// Sum32 returns the finalized CRC of everything accumulated so far.
func (c *CRC32) Sum32() uint32 { return c.crc ^ 0xFFFFFFFF }

// Reset clears accumulated state so the CRC32 can be reused.
func (c *CRC32) Reset() { c.crc = 0xFFFFFFFF }
