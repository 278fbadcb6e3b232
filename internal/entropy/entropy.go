// Package entropy computes Shannon entropy over byte streams.
//
// Entropy is measured in bits per byte, so the result is always in the
// range [0, 8]. The calculation is streaming: bytes are accumulated into a
// 256-bucket frequency histogram, and the final value depends only on the
// histogram, never on how the input was chunked.
package entropy

import (
	"fmt"
	"io"
	"math"
	"os"
)

// DefaultChunkSize is the read size used when streaming files.
const DefaultChunkSize = 8192

// MaxBits is the maximum possible entropy for byte-valued data.
const MaxBits = 8.0

// Calculator accumulates byte frequencies incrementally.
// The zero value is ready to use.
type Calculator struct {
	counts [256]int64
	total  int64
}

// Write adds a chunk of bytes to the histogram. It never fails; the error
// return exists to satisfy io.Writer so a Calculator can sit behind
// io.Copy or io.TeeReader.
func (c *Calculator) Write(p []byte) (int, error) {
	for _, b := range p {
		c.counts[b]++
	}
	c.total += int64(len(p))
	return len(p), nil
}

// Total returns the number of bytes accumulated so far.
func (c *Calculator) Total() int64 { return c.total }

// UniqueBytes returns the number of distinct byte values observed.
func (c *Calculator) UniqueBytes() int {
	n := 0
	for _, count := range c.counts {
		if count > 0 {
			n++
		}
	}
	return n
}

// Value computes the Shannon entropy of everything written so far.
// An empty input has entropy 0.
func (c *Calculator) Value() float64 {
	if c.total == 0 {
		return 0.0
	}

	var h float64
	total := float64(c.total)
	for _, count := range c.counts {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		h -= p * math.Log2(p)
	}

	// Guard against float drift pushing the result out of range.
	if h < 0 {
		return 0.0
	}
	if h > MaxBits {
		return MaxBits
	}
	return h
}

// Reset clears the histogram so the Calculator can be reused.
func (c *Calculator) Reset() {
	c.counts = [256]int64{}
	c.total = 0
}

// Bytes computes the entropy of an in-memory sample.
func Bytes(data []byte) float64 {
	var c Calculator
	_, _ = c.Write(data)
	return c.Value()
}

// Reader streams r through a Calculator and returns the entropy along with
// the number of bytes consumed.
func Reader(r io.Reader) (float64, int64, error) {
	var c Calculator
	buf := make([]byte, DefaultChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = c.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, c.Total(), err
		}
	}
	return c.Value(), c.Total(), nil
}

// FileChunks computes a file's overall entropy plus the entropy of each
// fixed-size chunk. Chunk-level values expose local structure (a uniform
// archive vs. a file with one encrypted region) that the aggregate hides.
func FileChunks(path string, chunkSize int) (float64, []float64, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var total Calculator
	var chunks []float64
	buf := make([]byte, chunkSize)
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			_, _ = total.Write(buf[:n])
			chunks = append(chunks, Bytes(buf[:n]))
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return 0, nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return total.Value(), chunks, nil
}

// File computes the entropy of a file's full contents, reading in fixed-size
// chunks to bound memory on large files.
func File(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h, _, err := Reader(f)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	return h, nil
}
