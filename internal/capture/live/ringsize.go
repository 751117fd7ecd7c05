package live

import "fmt"

const (
	tpacketAlignment = 16 // TPACKET_ALIGNMENT
	tpacketHdrLen    = 52 // TPACKET3_HDRLEN, approximate
	maxBlockSize     = 4 * 1024 * 1024
)

// ringSize derives AF_PACKET ring geometry from a memory budget.
// PACKET_MMAP requires frameSize to be TPACKET_ALIGNMENT-aligned, blockSize to be a
// multiple of both the page size and frameSize, and blockSize*numBlocks to
// approximate the budget.
func ringSize(bufferSizeMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	if bufferSizeMB <= 0 {
		return 0, 0, 0, fmt.Errorf("buffer_size_mb must be positive, got %d", bufferSizeMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snap_len must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("page size must be a positive multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	frameSize = alignUp(tpacketHdrLen+snapLen, tpacketAlignment)

	blockSize = lcm(pageSize, frameSize)
	if blockSize > maxBlockSize {
		// Page-align the frame so whole frames also fill whole pages.
		frameSize = alignUp(frameSize, pageSize)
		frames := maxBlockSize / frameSize
		if frames < 1 {
			frames = 1
		}
		blockSize = frames * frameSize
	}

	numBlocks = bufferSizeMB * 1024 * 1024 / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}
