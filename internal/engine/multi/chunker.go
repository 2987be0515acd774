package multi

// BuildChunks splits the gaps that still need downloading into Chunks
// sized so that, as closely as possible, concurrency workers each get an
// equal share of the total remaining work, without ever producing a
// chunk smaller than minChunkSize (unless a gap itself is smaller than
// minChunkSize, in which case it is kept whole). This is the chunking
// half of the multi-range engine's algorithm in SPEC_FULL.md §4.7,
// generalized from the teacher's calculateChunkSize/createTasks
// (internal/engine/concurrent/downloader.go), which chunked the whole
// file; here the input is the inverted progress set's gaps so that a
// resumed task only requests what it doesn't already have.
func BuildChunks(gaps []Gap, concurrency int, minChunkSize int64) []Chunk {
	if concurrency < 1 {
		concurrency = 1
	}
	if minChunkSize < 1 {
		minChunkSize = 1
	}

	var total int64
	for _, g := range gaps {
		total += g.End - g.Start
	}
	if total == 0 {
		return nil
	}

	target := total / int64(concurrency)
	if target < minChunkSize {
		target = minChunkSize
	}

	var chunks []Chunk
	for _, g := range gaps {
		start := g.Start
		remaining := g.End - g.Start
		for remaining > 0 {
			size := target
			if remaining-size < minChunkSize && remaining-size > 0 {
				// Avoid leaving a final sliver smaller than minChunkSize:
				// fold it into this chunk instead.
				size = remaining
			}
			if size > remaining {
				size = remaining
			}
			chunks = append(chunks, Chunk{Start: start, End: start + size})
			start += size
			remaining -= size
		}
	}
	return chunks
}

// Gap is a half-open byte range still needing to be downloaded. It is
// the same shape as ranges.Range; kept as a distinct type here so this
// package does not need to import internal/ranges just for one field
// pair, the way the teacher's own engine/concurrent package defines its
// own Task type rather than reusing a shared one.
type Gap struct {
	Start int64
	End   int64
}
