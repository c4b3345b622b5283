// Package circuits manages the external zkSNARK circuit artifacts: it keeps a
// local content-addressed cache and downloads missing artifacts from their
// remote URLs, verifying a sha256 hash on every load.
package circuits

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/anonvote/anonvote/log"
	"github.com/anonvote/anonvote/types"
)

// CheckHashes determines if the hashes of the artifacts are verified when
// they are loaded or downloaded. It can be disabled by setting the
// ANONVOTE_CHECK_HASHES environment variable to false or 0.
var CheckHashes = true

// BaseDir is the path where the artifact cache lives. Artifacts not found
// there are downloaded and stored. Defaults to the ANONVOTE_ARTIFACTS_DIR
// environment variable or the user cache directory.
var BaseDir string

func init() {
	if checkHashes := os.Getenv("ANONVOTE_CHECK_HASHES"); checkHashes != "" {
		if strings.ToLower(checkHashes) == "false" || checkHashes == "0" {
			CheckHashes = false
		}
	}
	if dir := os.Getenv("ANONVOTE_ARTIFACTS_DIR"); dir != "" {
		BaseDir = dir
	} else {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			log.Warnf("unable to access user home directory, using temporary directory: %v", err)
			BaseDir = filepath.Join(os.TempDir(), "anonvote-artifacts")
		} else {
			BaseDir = filepath.Join(home, ".cache", "anonvote-artifacts")
		}
	}
	if err := os.MkdirAll(BaseDir, 0o755); err != nil {
		log.Errorf("failed to create BaseDir %s: %v", BaseDir, err)
	}
}

// Artifact holds the remote URL of a circuit artifact, the expected sha256
// hash of its content, and the content itself once loaded.
type Artifact struct {
	RemoteURL string
	Hash      types.HexBytes
	Content   []byte
}

// Load checks if the artifact content is already in memory and, if not,
// loads it from the local cache, verifying the content hash.
func (a *Artifact) Load() error {
	if len(a.Content) != 0 {
		return nil
	}
	if len(a.Hash) == 0 {
		return fmt.Errorf("artifact hash not provided")
	}
	content, err := load(a.Hash)
	if err != nil {
		return err
	}
	if content == nil {
		return fmt.Errorf("no content found")
	}
	a.Content = content
	return nil
}

// Download fetches the artifact content from its remote URL, verifies the
// hash and stores it in the local cache. It is a no-op if the artifact is
// already cached.
func (a *Artifact) Download(ctx context.Context) error {
	if a.RemoteURL == "" {
		return fmt.Errorf("artifact not cached and remote url not provided")
	}
	if content, err := load(a.Hash); err == nil && content != nil {
		return nil
	}
	return downloadAndStore(ctx, a.Hash, a.RemoteURL)
}

// CircuitArtifacts holds the artifacts of a zkSNARK circuit: the circuit
// definition (circom wasm), the proving key and the verification key. Any of
// them may be nil when a deployment does not need it.
type CircuitArtifacts struct {
	circuitDefinition *Artifact
	provingKey        *Artifact
	verifyingKey      *Artifact
}

// NewCircuitArtifacts creates a new CircuitArtifacts with the artifacts
// provided.
func NewCircuitArtifacts(circuit, provingKey, verifyingKey *Artifact) *CircuitArtifacts {
	return &CircuitArtifacts{
		circuitDefinition: circuit,
		provingKey:        provingKey,
		verifyingKey:      verifyingKey,
	}
}

// LoadAll loads the circuit artifacts into memory from the local cache.
func (ca *CircuitArtifacts) LoadAll() error {
	if ca.circuitDefinition != nil {
		if err := ca.circuitDefinition.Load(); err != nil {
			return fmt.Errorf("error loading circuit definition: %w", err)
		}
	}
	if ca.provingKey != nil {
		if err := ca.provingKey.Load(); err != nil {
			return fmt.Errorf("error loading proving key: %w", err)
		}
	}
	if ca.verifyingKey != nil {
		if err := ca.verifyingKey.Load(); err != nil {
			return fmt.Errorf("error loading verifying key: %w", err)
		}
	}
	return nil
}

// DownloadAll downloads the circuit artifacts into the local cache with the
// provided context.
func (ca *CircuitArtifacts) DownloadAll(ctx context.Context) error {
	if ca.circuitDefinition != nil {
		if err := ca.circuitDefinition.Download(ctx); err != nil {
			return fmt.Errorf("error downloading circuit definition: %w", err)
		}
	}
	if ca.provingKey != nil {
		if err := ca.provingKey.Download(ctx); err != nil {
			return fmt.Errorf("error downloading proving key: %w", err)
		}
	}
	if ca.verifyingKey != nil {
		if err := ca.verifyingKey.Download(ctx); err != nil {
			return fmt.Errorf("error downloading verification key: %w", err)
		}
	}
	return nil
}

// CircuitDefinition returns the content of the circuit definition, or nil if
// it is not loaded.
func (ca *CircuitArtifacts) CircuitDefinition() types.HexBytes {
	if ca.circuitDefinition == nil {
		return nil
	}
	return ca.circuitDefinition.Content
}

// ProvingKey returns the content of the proving key, or nil if it is not
// loaded.
func (ca *CircuitArtifacts) ProvingKey() types.HexBytes {
	if ca.provingKey == nil {
		return nil
	}
	return ca.provingKey.Content
}

// VerifyingKey returns the content of the verification key, or nil if it is
// not loaded.
func (ca *CircuitArtifacts) VerifyingKey() types.HexBytes {
	if ca.verifyingKey == nil {
		return nil
	}
	return ca.verifyingKey.Content
}

func load(hash []byte) ([]byte, error) {
	if err := os.MkdirAll(BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating the base directory: %w", err)
	}
	path := filepath.Join(BaseDir, hex.EncodeToString(hash))
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading file %s: %w", path, err)
	}
	if CheckHashes {
		fileHash := sha256.Sum256(content)
		if !bytes.Equal(fileHash[:], hash) {
			return nil, fmt.Errorf("hash mismatch for file %s: expected %x, got %x", path, hash, fileHash)
		}
	}
	return content, nil
}

// progressReader wraps an io.Reader and keeps track of the total bytes read.
type progressReader struct {
	reader        io.Reader
	total         int64 // updated atomically
	contentLength int64
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	atomic.AddInt64(&pr.total, int64(n))
	return n, err
}

// downloadAndStore downloads a file from a URL, verifies its hash and stores
// it in the local cache under its hex-encoded hash.
func downloadAndStore(ctx context.Context, expectedHash []byte, fileUrl string) error {
	if _, err := url.Parse(fileUrl); err != nil {
		return fmt.Errorf("error parsing the file URL provided: %w", err)
	}
	path := filepath.Join(BaseDir, hex.EncodeToString(expectedHash))
	partialPath := path + ".partial"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileUrl, nil)
	if err != nil {
		return fmt.Errorf("error creating the file request: %w", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("error performing the request: %w", err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			log.Warnw("failed to close response body", "error", err.Error())
		}
	}()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("error downloading file %s: http status: %d", fileUrl, res.StatusCode)
	}

	fd, err := os.OpenFile(partialPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("error opening artifact file: %w", err)
	}
	hasher := sha256.New()
	pr := &progressReader{reader: res.Body, contentLength: res.ContentLength}
	mw := io.MultiWriter(fd, hasher)

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(mw, pr)
		done <- err
	}()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
copying:
	for {
		select {
		case err := <-done:
			if cerr := fd.Close(); cerr != nil && err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("error copying data to file: %w", err)
			}
			break copying
		case <-ticker.C:
			total := atomic.LoadInt64(&pr.total)
			var percentage float64
			if pr.contentLength > 0 {
				percentage = (float64(total) / float64(pr.contentLength)) * 100
			}
			log.Debugw("downloading artifact", "url", fileUrl,
				"downloaded", fmt.Sprintf("%.2fMiB", float64(total)/(1024*1024)),
				"progress", fmt.Sprintf("%.1f%%", percentage))
		}
	}
	if CheckHashes {
		fileHash := hasher.Sum(nil)
		if !bytes.Equal(fileHash, expectedHash) {
			if err := os.Remove(partialPath); err != nil {
				log.Warnw("failed to remove corrupt partial download", "path", partialPath)
			}
			return fmt.Errorf("hash mismatch for %s: expected %x, got %x", fileUrl, expectedHash, fileHash)
		}
	}
	if err := os.Rename(partialPath, path); err != nil {
		return fmt.Errorf("error renaming partial file: %w", err)
	}
	log.Infow("artifact downloaded", "url", fileUrl, "stored", path)
	return nil
}
