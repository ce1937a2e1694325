// Package grf reads Ragnarok Online GRF archives.
//
// An Archive implements fs.FS, fs.ReadFileFS, fs.ReadDirFS and fs.StatFS.
// Paths inside the archive are matched case-insensitively; names are listed
// in lower case with forward slashes.
package grf

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Faultbox/midgard-shape/pkg/encoding"
)

const (
	grfMagic   = "Master of Magic"
	headerSize = 46
	version200 = 0x200
	entrySize  = 17
)

// Entry flags.
const (
	FlagFile       = 0x01
	FlagMixCrypt   = 0x02
	FlagDESHeader  = 0x04
	flagsEncrypted = FlagMixCrypt | FlagDESHeader
)

var (
	ErrInvalidMagic       = errors.New("grf: invalid magic")
	ErrUnsupportedVersion = errors.New("grf: unsupported version")
	ErrCorruptTable       = errors.New("grf: corrupt file table")
	ErrEncrypted          = errors.New("grf: encrypted entries are not supported")
)

// Archive represents an opened GRF archive.
type Archive struct {
	r       io.ReaderAt
	size    int64
	closer  io.Closer
	header  Header
	entries map[string]*Entry
	dirs    map[string][]fs.DirEntry
}

// Header contains GRF file header information.
type Header struct {
	Magic         [15]byte
	EncryptionKey [15]byte
	TableOffset   uint32
	Seed          uint32
	FileCount     uint32
	Version       uint32
}

// Entry represents a file entry in the archive.
type Entry struct {
	Name             string
	CompressedSize   uint32
	AlignedSize      uint32
	UncompressedSize uint32
	Flags            uint8
	Offset           uint32
}

// Open opens a GRF archive file for reading.
func Open(name string) (*Archive, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, "opening archive")
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "opening archive")
	}
	a, err := NewReader(f, st.Size())
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "opening %s", name)
	}
	a.closer = f
	return a, nil
}

// NewReader reads the archive stored in r, which holds size bytes. Reads go
// through ReadAt only, so one archive can serve concurrent readers.
func NewReader(r io.ReaderAt, size int64) (*Archive, error) {
	a := &Archive{
		r:       r,
		size:    size,
		entries: make(map[string]*Entry),
	}
	if err := a.readHeader(); err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	if err := a.readFileTable(); err != nil {
		return nil, errors.Wrap(err, "reading file table")
	}
	a.buildDirs()
	return a, nil
}

// Close closes the underlying file, if the archive owns one.
func (a *Archive) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// Header returns the archive header.
func (a *Archive) Header() Header {
	return a.header
}

func (a *Archive) readHeader() error {
	sr := io.NewSectionReader(a.r, 0, a.size)
	if err := binary.Read(sr, binary.LittleEndian, &a.header); err != nil {
		return err
	}
	if string(a.header.Magic[:]) != grfMagic {
		return ErrInvalidMagic
	}
	if a.header.Version != version200 {
		return errors.Wrapf(ErrUnsupportedVersion, "0x%x", a.header.Version)
	}
	return nil
}

func (a *Archive) readFileTable() error {
	tableOffset := int64(a.header.TableOffset) + headerSize
	sr := io.NewSectionReader(a.r, tableOffset, a.size-tableOffset)

	var sizes struct {
		Compressed   uint32
		Uncompressed uint32
	}
	if err := binary.Read(sr, binary.LittleEndian, &sizes); err != nil {
		return errors.Wrap(ErrCorruptTable, err.Error())
	}
	if int64(sizes.Compressed) > sr.Size()-8 {
		return errors.Wrapf(ErrCorruptTable, "table of %d bytes past end of archive", sizes.Compressed)
	}

	zr, err := zlib.NewReader(io.LimitReader(sr, int64(sizes.Compressed)))
	if err != nil {
		return errors.Wrap(ErrCorruptTable, err.Error())
	}
	defer zr.Close()

	table := make([]byte, sizes.Uncompressed)
	if _, err := io.ReadFull(zr, table); err != nil {
		return errors.Wrap(ErrCorruptTable, err.Error())
	}

	if a.header.FileCount < a.header.Seed+7 {
		return errors.Wrapf(ErrCorruptTable, "file count %d below seed %d", a.header.FileCount, a.header.Seed)
	}
	fileCount := a.header.FileCount - a.header.Seed - 7

	offset := 0
	for i := uint32(0); i < fileCount; i++ {
		nameEnd := bytes.IndexByte(table[offset:], 0)
		if nameEnd < 0 {
			return errors.Wrapf(ErrCorruptTable, "entry %d: unterminated name", i)
		}
		name := encoding.EUCKRToUTF8(table[offset : offset+nameEnd])
		offset += nameEnd + 1

		if offset+entrySize > len(table) {
			return errors.Wrapf(ErrCorruptTable, "entry %d: truncated", i)
		}
		entry := &Entry{
			Name:             encoding.NormalizePath(name),
			CompressedSize:   binary.LittleEndian.Uint32(table[offset:]),
			AlignedSize:      binary.LittleEndian.Uint32(table[offset+4:]),
			UncompressedSize: binary.LittleEndian.Uint32(table[offset+8:]),
			Flags:            table[offset+12],
			Offset:           binary.LittleEndian.Uint32(table[offset+13:]),
		}
		offset += entrySize

		if entry.Flags&FlagFile != 0 && fs.ValidPath(entry.Name) {
			a.entries[entry.Name] = entry
		}
	}
	return nil
}

// buildDirs derives the directory tree from the file paths.
func (a *Archive) buildDirs() {
	children := map[string]map[string]fs.DirEntry{".": {}}
	for name, e := range a.entries {
		dir := path.Dir(name)
		child := fs.FileInfoToDirEntry(fileInfo{name: path.Base(name), size: int64(e.UncompressedSize)})
		for {
			if children[dir] == nil {
				children[dir] = make(map[string]fs.DirEntry)
			}
			children[dir][child.Name()] = child
			if dir == "." {
				break
			}
			child = fs.FileInfoToDirEntry(fileInfo{name: path.Base(dir), dir: true})
			dir = path.Dir(dir)
		}
	}

	a.dirs = make(map[string][]fs.DirEntry, len(children))
	for dir, set := range children {
		list := make([]fs.DirEntry, 0, len(set))
		for _, e := range set {
			list = append(list, e)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
		a.dirs[dir] = list
	}
}

// List returns all file paths in the archive, sorted.
func (a *Archive) List() []string {
	result := make([]string, 0, len(a.entries))
	for name := range a.entries {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Contains checks if a file exists.
func (a *Archive) Contains(name string) bool {
	_, ok := a.entries[encoding.NormalizePath(name)]
	return ok
}

// Entry returns the table entry of a file.
func (a *Archive) Entry(name string) (Entry, bool) {
	e, ok := a.entries[encoding.NormalizePath(name)]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// lookup validates name and returns its normalized form.
func lookup(op, name string) (string, error) {
	if !fs.ValidPath(name) {
		return "", &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	if name == "." {
		return name, nil
	}
	return encoding.NormalizePath(name), nil
}

// ReadFile returns the decompressed contents of a file.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	key, err := lookup("readfile", name)
	if err != nil {
		return nil, err
	}
	e, ok := a.entries[key]
	if !ok {
		if _, isDir := a.dirs[key]; isDir {
			return nil, &fs.PathError{Op: "readfile", Path: name, Err: errors.New("is a directory")}
		}
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrNotExist}
	}
	data, err := a.read(e)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	return data, nil
}

func (a *Archive) read(e *Entry) ([]byte, error) {
	if e.Flags&flagsEncrypted != 0 {
		return nil, ErrEncrypted
	}
	sr := io.NewSectionReader(a.r, int64(e.Offset)+headerSize, int64(e.AlignedSize))

	if e.CompressedSize == e.UncompressedSize {
		data := make([]byte, e.UncompressedSize)
		if _, err := io.ReadFull(sr, data); err != nil {
			return nil, errors.Wrap(err, "reading stored entry")
		}
		return data, nil
	}

	zr, err := zlib.NewReader(io.LimitReader(sr, int64(e.CompressedSize)))
	if err != nil {
		return nil, errors.Wrap(err, "inflating entry")
	}
	defer zr.Close()

	data := make([]byte, e.UncompressedSize)
	if _, err := io.ReadFull(zr, data); err != nil {
		return nil, errors.Wrap(err, "inflating entry")
	}
	return data, nil
}

// Open implements fs.FS. Files are decompressed in full on open.
func (a *Archive) Open(name string) (fs.File, error) {
	key, err := lookup("open", name)
	if err != nil {
		return nil, err
	}
	if e, ok := a.entries[key]; ok {
		data, err := a.read(e)
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
		return &file{
			Reader: bytes.NewReader(data),
			info:   fileInfo{name: path.Base(key), size: int64(len(data))},
		}, nil
	}
	if entries, ok := a.dirs[key]; ok {
		return &dir{info: fileInfo{name: path.Base(key), dir: true}, entries: entries}, nil
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// ReadDir implements fs.ReadDirFS.
func (a *Archive) ReadDir(name string) ([]fs.DirEntry, error) {
	key, err := lookup("readdir", name)
	if err != nil {
		return nil, err
	}
	entries, ok := a.dirs[key]
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	return append([]fs.DirEntry(nil), entries...), nil
}

// Stat implements fs.StatFS.
func (a *Archive) Stat(name string) (fs.FileInfo, error) {
	key, err := lookup("stat", name)
	if err != nil {
		return nil, err
	}
	if e, ok := a.entries[key]; ok {
		return fileInfo{name: path.Base(key), size: int64(e.UncompressedSize)}, nil
	}
	if _, ok := a.dirs[key]; ok {
		return fileInfo{name: path.Base(key), dir: true}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

type fileInfo struct {
	name string
	size int64
	dir  bool
}

func (fi fileInfo) Name() string       { return fi.name }
func (fi fileInfo) Size() int64        { return fi.size }
func (fi fileInfo) ModTime() time.Time { return time.Time{} }
func (fi fileInfo) IsDir() bool        { return fi.dir }
func (fi fileInfo) Sys() any           { return nil }

func (fi fileInfo) Mode() fs.FileMode {
	if fi.dir {
		return fs.ModeDir | 0o555
	}
	return 0o444
}

type file struct {
	*bytes.Reader
	info fileInfo
}

func (f *file) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *file) Close() error               { return nil }

type dir struct {
	info    fileInfo
	entries []fs.DirEntry
	offset  int
}

func (d *dir) Stat() (fs.FileInfo, error) { return d.info, nil }
func (d *dir) Close() error               { return nil }

func (d *dir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.info.name, Err: errors.New("is a directory")}
}

func (d *dir) ReadDir(n int) ([]fs.DirEntry, error) {
	rest := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return append([]fs.DirEntry(nil), rest...), nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	if n > len(rest) {
		n = len(rest)
	}
	d.offset += n
	return append([]fs.DirEntry(nil), rest[:n]...), nil
}

// IsArchive reports whether name has the .grf extension.
func IsArchive(name string) bool {
	return strings.EqualFold(path.Ext(name), ".grf")
}
