package batching

const defaultBatchSize = 8

// Batcher groups ordered frames into consecutive fixed-size batches.
type Batcher struct {
	Size int
}

func NewBatcher(size int) *Batcher {
	if size <= 0 {
		size = defaultBatchSize
	}
	return &Batcher{Size: size}
}

// Split returns ceil(len(items)/Size) groups; only the last may be short.
func (b *Batcher) Split(items []string) [][]string {
	if len(items) == 0 {
		return nil
	}
	size := b.Size
	if size <= 0 {
		size = defaultBatchSize
	}

	out := make([][]string, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end:end])
	}
	return out
}

// Count is the number of batches Split would produce for n items.
func (b *Batcher) Count(n int) int {
	if n <= 0 {
		return 0
	}
	size := b.Size
	if size <= 0 {
		size = defaultBatchSize
	}
	return (n + size - 1) / size
}
