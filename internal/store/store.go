// Package store keeps named .npy arrays in a directory, optionally wrapped in
// a compression container, and caches their parsed headers.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/golang/groupcache/lru"

	"github.com/samcharles93/npyfile/internal/compress"
	"github.com/samcharles93/npyfile/internal/logger"
	"github.com/samcharles93/npyfile/pkg/npy"
)

const (
	fileExt = ".npy"

	DefaultCacheSize = 256
)

var (
	ErrNotFound    = errors.New("store: array not found")
	ErrInvalidName = errors.New("store: invalid array name")
)

// containers is the lookup order when resolving a name to a file.
var containers = []compress.Type{compress.None, compress.Zstd, compress.S2, compress.LZ4, compress.Gzip}

type Options struct {
	// Compression wraps newly saved files. Existing files keep theirs.
	Compression compress.Type
	// Strict makes Load reject arrays whose data block does not match the
	// shape and the element size implied by the descriptor.
	Strict bool
	// CacheSize bounds the header cache. Zero means DefaultCacheSize.
	CacheSize int
	Logger    logger.Logger
}

// Entry describes one stored array.
type Entry struct {
	Name        string
	Path        string
	Size        int64
	ModTime     time.Time
	Compression compress.Type
	Header      npy.Header
}

type Store struct {
	fs   billy.Filesystem
	opts Options
	log  logger.Logger

	mu      sync.Mutex
	headers *lru.Cache
}

func New(fs billy.Filesystem, opts Options) *Store {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Store{
		fs:      fs,
		opts:    opts,
		log:     log.With("component", "store"),
		headers: lru.New(opts.CacheSize),
	}
}

// ValidateName reports ErrInvalidName for names that could escape the store
// directory or collide with temporary files.
func ValidateName(name string) error {
	switch {
	case name == "", strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, "/\\\x00"), strings.Contains(name, ".."):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func fileName(name string, t compress.Type) string {
	return name + fileExt + t.Ext()
}

// parseFileName is the inverse of fileName.
func parseFileName(file string) (string, compress.Type, bool) {
	t := compress.TypeForPath(file)
	base := compress.TrimExt(file)
	if !strings.HasSuffix(base, fileExt) {
		return "", compress.None, false
	}
	name := strings.TrimSuffix(base, fileExt)
	if ValidateName(name) != nil {
		return "", compress.None, false
	}
	return name, t, true
}

// locate finds the file holding name.
func (s *Store) locate(name string) (string, os.FileInfo, compress.Type, error) {
	if err := ValidateName(name); err != nil {
		return "", nil, compress.None, err
	}
	for _, t := range containers {
		path := fileName(name, t)
		fi, err := s.fs.Stat(path)
		if err == nil {
			return path, fi, t, nil
		}
		if !os.IsNotExist(err) {
			return "", nil, compress.None, err
		}
	}
	return "", nil, compress.None, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// List returns every readable array in name order. Files whose header does
// not parse are logged and skipped.
func (s *Store) List() ([]Entry, error) {
	infos, err := s.fs.ReadDir(".")
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		name, t, ok := parseFileName(fi.Name())
		if !ok {
			continue
		}
		hdr, err := s.header(fi.Name(), fi, t)
		if err != nil {
			s.log.Warn("skipping unreadable array", "file", fi.Name(), "error", err)
			continue
		}
		entries = append(entries, Entry{
			Name:        name,
			Path:        fi.Name(),
			Size:        fi.Size(),
			ModTime:     fi.ModTime(),
			Compression: t,
			Header:      hdr,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Stat returns the entry for name.
func (s *Store) Stat(name string) (Entry, error) {
	path, fi, t, err := s.locate(name)
	if err != nil {
		return Entry{}, err
	}
	hdr, err := s.header(path, fi, t)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Name:        name,
		Path:        path,
		Size:        fi.Size(),
		ModTime:     fi.ModTime(),
		Compression: t,
		Header:      hdr,
	}, nil
}

// Header returns the parsed header of name without reading its data.
func (s *Store) Header(name string) (npy.Header, error) {
	e, err := s.Stat(name)
	if err != nil {
		return npy.Header{}, err
	}
	return e.Header, nil
}

type cacheKey struct {
	path  string
	size  int64
	mtime int64
}

func (s *Store) header(path string, fi os.FileInfo, t compress.Type) (npy.Header, error) {
	key := cacheKey{path: path, size: fi.Size(), mtime: fi.ModTime().UnixNano()}

	s.mu.Lock()
	v, ok := s.headers.Get(key)
	s.mu.Unlock()
	if ok {
		return cloneHeader(v.(npy.Header)), nil
	}

	var (
		hdr npy.Header
		err error
	)
	if t == compress.None {
		hdr, err = s.readPlainHeader(path)
	} else {
		var raw []byte
		raw, err = s.readDecoded(path)
		if err == nil {
			hdr, err = npy.ReadHeader(bytes.NewReader(raw))
		}
	}
	if err != nil {
		return npy.Header{}, fmt.Errorf("%s: %w", path, err)
	}

	s.mu.Lock()
	s.headers.Add(key, cloneHeader(hdr))
	s.mu.Unlock()
	s.log.Debug("cached header", "file", path, "descr", hdr.Descr, "shape", hdr.Shape)
	return hdr, nil
}

func (s *Store) readPlainHeader(path string) (npy.Header, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return npy.Header{}, err
	}
	defer func() { _ = f.Close() }()
	return npy.ReadHeader(f)
}

func (s *Store) readDecoded(path string) ([]byte, error) {
	raw, err := util.ReadFile(s.fs, path)
	if err != nil {
		return nil, err
	}
	return compress.Decode(path, raw)
}

func cloneHeader(h npy.Header) npy.Header {
	h.Shape = append([]int(nil), h.Shape...)
	return h
}

// Load decodes the array called name.
func (s *Store) Load(name string) (*npy.Array, error) {
	path, _, t, err := s.locate(name)
	if err != nil {
		return nil, err
	}

	var arr *npy.Array
	if t == compress.None {
		arr, err = s.decodePlain(path)
	} else {
		var raw []byte
		raw, err = s.readDecoded(path)
		if err == nil {
			arr, err = npy.Decode(bytes.NewReader(raw))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if s.opts.Strict {
		elemSize, err := npy.ElemSize(arr.Descr)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := arr.Validate(elemSize); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return arr, nil
}

func (s *Store) decodePlain(path string) (*npy.Array, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return npy.Decode(f)
}

// Save encodes a under name using the store's compression. The file is
// written to a temporary name and renamed into place; copies of name under
// other containers are removed afterwards.
func (s *Store) Save(name string, a *npy.Array, elemSize int) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := npy.Encode(&buf, a, elemSize); err != nil {
		return err
	}
	codec, err := compress.GetCodec(s.opts.Compression)
	if err != nil {
		return err
	}
	payload, err := codec.Compress(buf.Bytes())
	if err != nil {
		return fmt.Errorf("%s compress %s: %w", s.opts.Compression, name, err)
	}

	target := fileName(name, s.opts.Compression)
	if err := s.writeAtomic(target, payload); err != nil {
		return err
	}

	for _, t := range containers {
		if t == s.opts.Compression {
			continue
		}
		if err := s.fs.Remove(fileName(name, t)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	s.log.Info("saved array", "name", name, "file", target, "bytes", len(payload))
	return nil
}

func (s *Store) writeAtomic(target string, payload []byte) (err error) {
	tmp, err := s.fs.TempFile(".", "."+target+".")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = s.fs.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(payload); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return s.fs.Rename(tmp.Name(), target)
}

// Remove deletes the array called name.
func (s *Store) Remove(name string) error {
	path, _, _, err := s.locate(name)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(path); err != nil {
		return err
	}
	s.log.Info("removed array", "name", name, "file", path)
	return nil
}

// Checksum returns the xxhash64 of the data block of name, after any
// compression container has been removed.
func (s *Store) Checksum(name string) (uint64, error) {
	path, _, t, err := s.locate(name)
	if err != nil {
		return 0, err
	}

	if t != compress.None {
		raw, err := s.readDecoded(path)
		if err != nil {
			return 0, err
		}
		hdr, err := npy.ReadHeader(bytes.NewReader(raw))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
		return xxhash.Sum64(raw[hdr.DataOffset:]), nil
	}

	f, err := s.fs.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	if _, err := npy.ReadHeader(f); err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// Open returns a reader positioned at the data block of name along with its
// header. The caller closes the reader.
func (s *Store) Open(name string) (io.ReadCloser, npy.Header, error) {
	path, _, t, err := s.locate(name)
	if err != nil {
		return nil, npy.Header{}, err
	}

	if t != compress.None {
		raw, err := s.readDecoded(path)
		if err != nil {
			return nil, npy.Header{}, err
		}
		r := bytes.NewReader(raw)
		hdr, err := npy.ReadHeader(r)
		if err != nil {
			return nil, npy.Header{}, fmt.Errorf("%s: %w", path, err)
		}
		return io.NopCloser(r), hdr, nil
	}

	f, err := s.fs.Open(path)
	if err != nil {
		return nil, npy.Header{}, err
	}
	hdr, err := npy.ReadHeader(f)
	if err != nil {
		_ = f.Close()
		return nil, npy.Header{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, hdr, nil
}
