package scanner

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/standardbeagle/grtags/internal/types"
)

// BinaryDetector rejects files that cannot hold source code. Binary files
// are still tracked so their removal is noticed, but never parsed.
type BinaryDetector struct {
	binaryExtensions map[string]bool
}

var magicNumbers = [][]byte{
	{0x1F, 0x8B},             // gzip
	{0x50, 0x4B, 0x03, 0x04}, // zip
	{0x50, 0x4B, 0x05, 0x06}, // empty zip
	{0x89, 0x50, 0x4E, 0x47}, // png
	{0xFF, 0xD8, 0xFF},       // jpeg
	{0x47, 0x49, 0x46, 0x38}, // gif
	{0x25, 0x50, 0x44, 0x46}, // pdf
	{0x7F, 0x45, 0x4C, 0x46}, // elf
	{0x4D, 0x5A},             // dos/windows executable
	{0xCA, 0xFE, 0xBA, 0xBE}, // mach-o / java class
	{0x77, 0x4F, 0x46, 0x46}, // woff
	{0x77, 0x4F, 0x46, 0x32}, // woff2
}

func NewBinaryDetector() *BinaryDetector {
	exts := []string{
		// fonts
		".woff", ".woff2", ".ttf", ".otf", ".eot",
		// images
		".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".webp", ".tiff", ".tif",
		// archives
		".zip", ".tar", ".gz", ".bz2", ".xz", ".7z", ".rar", ".jar", ".war", ".ear",
		// objects and executables
		".exe", ".dll", ".so", ".dylib", ".a", ".o", ".obj", ".bin",
		// media
		".mp3", ".mp4", ".avi", ".mov", ".wmv", ".flv", ".wav", ".flac", ".ogg",
		// documents
		".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
		// databases
		".db", ".sqlite", ".sqlite3",
		// bytecode
		".pyc", ".pyo", ".class", ".pickle", ".pkl",
	}
	m := make(map[string]bool, len(exts))
	for _, ext := range exts {
		m[ext] = true
	}
	return &BinaryDetector{binaryExtensions: m}
}

// IsBinaryByExtension checks the lower-cased extension only, no I/O.
func (bd *BinaryDetector) IsBinaryByExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	return bd.binaryExtensions[ext]
}

// IsBinaryByMagicNumber inspects at most the first BinaryPreCheckBytes of
// content for a known signature, null bytes or a high share of control
// characters. Bytes >= 0x80 are not counted so UTF-8 text passes.
func (bd *BinaryDetector) IsBinaryByMagicNumber(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	sample := content[:min(len(content), types.BinaryPreCheckBytes)]

	for _, magic := range magicNumbers {
		if bytes.HasPrefix(sample, magic) {
			return true
		}
	}

	nullBytes, control := 0, 0
	for _, b := range sample {
		if b == 0 {
			nullBytes++
		}
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			control++
		}
	}

	if nullBytes > len(sample)/100 {
		return true
	}
	return control > len(sample)*30/100
}

// IsBinary combines the extension and content checks.
func (bd *BinaryDetector) IsBinary(path string, content []byte) bool {
	if bd.IsBinaryByExtension(path) {
		return true
	}
	return bd.IsBinaryByMagicNumber(content)
}

// preCheckFile reads the head of path without loading the whole file.
// Unreadable files count as binary.
func (bd *BinaryDetector) preCheckFile(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return true
	}
	defer file.Close()

	buffer := make([]byte, types.BinaryPreCheckBytes)
	n, err := io.ReadFull(file, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return true
	}
	return bd.IsBinaryByMagicNumber(buffer[:n])
}
