package onnx

import (
	"io"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/gomlx/onnx-shapes/internal/protos"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// externalDataInfo describes where the contents of a tensor stored outside the model file are.
type externalDataInfo struct {
	location string
	offset   int64
	length   int64
}

// parseExternalData reads the "location", "offset" and "length" entries of a tensor's external_data.
// It returns nil if the tensor has no external data. length is -1 if not given.
func parseExternalData(proto *protos.TensorProto) (*externalDataInfo, error) {
	if len(proto.ExternalData) == 0 {
		return nil, nil
	}
	info := &externalDataInfo{length: -1}
	for _, entry := range proto.ExternalData {
		var err error
		switch entry.Key {
		case "location":
			info.location = entry.Value
		case "offset":
			info.offset, err = strconv.ParseInt(entry.Value, 10, 64)
		case "length":
			info.length, err = strconv.ParseInt(entry.Value, 10, 64)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "tensor %q: invalid %s %q in external data", proto.Name, entry.Key, entry.Value)
		}
	}
	if info.location == "" {
		return nil, errors.Errorf("tensor %q: external data missing required 'location'", proto.Name)
	}
	if !filepath.IsLocal(info.location) {
		return nil, errors.Errorf("tensor %q: external data location %q is not relative to the model directory",
			proto.Name, info.location)
	}
	return info, nil
}

// ExternalDataReader manages memory-mapped external data files.
// It caches mmap regions by file path since multiple tensors often share the same external file.
type ExternalDataReader struct {
	baseDir  string
	mappings map[string]*mmap.ReaderAt
	mu       sync.Mutex
}

// NewExternalDataReader creates a reader for the given model directory.
// baseDir is the directory containing the ONNX model file, used to resolve external data paths.
func NewExternalDataReader(baseDir string) *ExternalDataReader {
	return &ExternalDataReader{
		baseDir:  baseDir,
		mappings: make(map[string]*mmap.ReaderAt),
	}
}

// getOrCreateMapping returns the mmap region for the given file path, creating it if necessary.
func (r *ExternalDataReader) getOrCreateMapping(location string) (*mmap.ReaderAt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reader, ok := r.mappings[location]; ok {
		return reader, nil
	}
	externalPath := filepath.Join(r.baseDir, location)
	reader, err := mmap.Open(externalPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap external data file %q", externalPath)
	}
	r.mappings[location] = reader
	return reader, nil
}

// ReadInto reads external data directly into the provided byte slice, which must have exactly the size of the
// tensor's data.
func (r *ExternalDataReader) ReadInto(info *externalDataInfo, dst []byte) error {
	if r.baseDir == "" {
		return errors.New("base directory is required for reading external data")
	}
	if info.length >= 0 && info.length != int64(len(dst)) {
		return errors.Errorf("external data length %d doesn't match destination size %d", info.length, len(dst))
	}
	reader, err := r.getOrCreateMapping(info.location)
	if err != nil {
		return err
	}
	n, err := reader.ReadAt(dst, info.offset)
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "failed to read %d bytes at offset %d from external data file %q",
			len(dst), info.offset, info.location)
	}
	if n != len(dst) {
		return errors.Errorf("read %d bytes but expected %d from external data file %q", n, len(dst), info.location)
	}
	return nil
}

// Close unmaps all memory regions and releases resources.
// After Close is called, the reader should not be used.
func (r *ExternalDataReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for path, reader := range r.mappings {
		if err := reader.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "failed to close mmap for %q", path)
		}
	}
	r.mappings = nil
	return firstErr
}
