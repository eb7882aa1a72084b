package sources

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/i474232898/grid-profile-aggregation/internal/grid"
)

// compressedVariants are tried after the plain file, in order.
var compressedVariants = []struct {
	suffix   string
	encoding string
}{
	{"", ""},
	{".zst", "zstd"},
	{".gz", "gzip"},
}

// FileSource implements grid.RecordSource over a directory laid out as one
// file per date. A day may also be stored as <file>.zst or <file>.gz.
type FileSource struct {
	name    string
	dir     string
	pattern string
	log     *zap.Logger
}

// NewFileSource creates a FileSource rooted at dir.
func NewFileSource(name, dir, pattern string, log *zap.Logger) *FileSource {
	return &FileSource{
		name:    name,
		dir:     dir,
		pattern: pattern,
		log:     log,
	}
}

func (s *FileSource) Name() string {
	return s.name
}

// FetchDay reads and decodes one date's file.
func (s *FileSource) FetchDay(ctx context.Context, dateKey string) ([]grid.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(s.name, dateKey, err)
	}

	base := filepath.Join(s.dir, fmt.Sprintf(s.pattern, dateKey))
	for _, v := range compressedVariants {
		f, err := os.Open(base + v.suffix)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, unavailable(s.name, dateKey, err)
		}

		text, err := readPayload(f, v.encoding)
		f.Close()
		if err != nil {
			return nil, unavailable(s.name, dateKey, err)
		}
		return decodePayload(s.log, s.name, dateKey, text)
	}
	return nil, unavailable(s.name, dateKey, fs.ErrNotExist)
}
