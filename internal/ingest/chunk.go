package ingest

// Chunk splits text into contiguous windows of length size starting every
// step characters, where step = max(size-overlap, 1). The final chunk may be
// shorter. The step floor guarantees forward progress even when overlap >=
// size, so the function can never loop forever or emit zero-length windows.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 || len(text) == 0 {
		return nil
	}

	step := size - overlap
	if step < 1 {
		step = 1
	}

	var chunks []string
	for i := 0; i < len(text); i += step {
		end := i + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[i:end])
	}
	return chunks
}
