// Package hashpool computes streaming content hashes in fixed-size
// chunks, offloaded to a small fixed worker pool so hashing large files
// doesn't stall the download pipeline that requested it.
package hashpool

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"
)

// Algorithm names recorded in backup_metadata so a store's hash column is
// never read under the wrong algorithm.
//
// AlgoXXH3_128 is the default: a 128-bit non-cryptographic digest, wide
// enough that collisions between distinct files are not a practical
// dedup concern at archive scale.
const (
	AlgoXXH3_128 = "xxh3-128"
	AlgoSHA256   = "sha256"
)

const chunkSize = 64 * 1024

// Pool offloads file hashing onto a bounded number of worker goroutines.
type Pool struct {
	algorithm string
	jobs      chan hashJob
	done      chan struct{}
}

type hashJob struct {
	path   string
	result chan<- hashResult
}

type hashResult struct {
	sum string
	err error
}

// New starts a Pool with workers goroutines computing digests under
// algorithm ("xxh3-128" or "sha256"); any value other than "sha256"
// hashes with xxh3-128.
func New(algorithm string, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		algorithm: algorithm,
		jobs:      make(chan hashJob, workers*2),
		done:      make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for job := range p.jobs {
		sum, err := p.hashFile(job.path)
		job.result <- hashResult{sum: sum, err: err}
	}
}

// Close stops accepting new jobs. Pending jobs already queued still run.
func (p *Pool) Close() {
	close(p.jobs)
}

// Hash computes the content digest of path, streaming it in chunkSize
// chunks through the pool's configured algorithm.
func (p *Pool) Hash(path string) (string, error) {
	result := make(chan hashResult, 1)
	p.jobs <- hashJob{path: path, result: result}
	r := <-result
	return r.sum, r.err
}

func (p *Pool) hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for hashing: %w", err)
	}
	defer f.Close()

	buf := make([]byte, chunkSize)

	if p.algorithm == AlgoSHA256 {
		h := sha256.New()
		if _, err := io.CopyBuffer(h, f, buf); err != nil {
			return "", fmt.Errorf("read for hashing: %w", err)
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	h := xxh3.New()
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("read for hashing: %w", err)
	}
	sum := h.Sum128().Bytes()
	return hex.EncodeToString(sum[:]), nil
}
