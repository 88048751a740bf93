// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package snapshot frames serialized databases for storage or transfer,
// optionally compressing them.
//
// A snapshot is a fixed header followed by the compressed database image:
//
//	magic   [8]byte  "SQLSNAP1"
//	codec   uint8
//	length  uint64   big-endian length of the uncompressed image
//
// Decoding verifies the image length.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/productsupcom/go-sqlite-async/metrics"
	"github.com/productsupcom/go-sqlite-async/sqlitedb"
)

// Codec is a compression codec of a snapshot.
type Codec uint8

const (
	None Codec = iota
	Gzip
	Snappy
	Zstandard
)

var codecNames = map[Codec]string{
	None:      "none",
	Gzip:      "gzip",
	Snappy:    "snappy",
	Zstandard: "zstd",
}

func (c Codec) String() string {
	if s, ok := codecNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Codec(%d)", uint8(c))
}

// ParseCodec returns the Codec named |s|.
func ParseCodec(s string) (Codec, error) {
	for c, name := range codecNames {
		if name == s {
			return c, nil
		}
	}
	return None, fmt.Errorf("unsupported codec %q", s)
}

var magic = [8]byte{'S', 'Q', 'L', 'S', 'N', 'A', 'P', '1'}

const headerLen = len(magic) + 1 + 8

// ErrBadHeader is returned when decoding input which is not a snapshot.
var ErrBadHeader = errors.New("not a snapshot")

// Encode writes |image| to |w| as a snapshot compressed with |codec|.
func Encode(w io.Writer, image []byte, codec Codec) error {
	var hdr [headerLen]byte
	copy(hdr[:], magic[:])
	hdr[len(magic)] = byte(codec)
	binary.BigEndian.PutUint64(hdr[len(magic)+1:], uint64(len(image)))

	if _, err := w.Write(hdr[:]); err != nil {
		return errors.WithMessage(err, "writing header")
	}
	cw, err := newCodecWriter(w, codec)
	if err != nil {
		return err
	}
	if _, err = cw.Write(image); err != nil {
		return errors.WithMessage(err, "writing image")
	} else if err = cw.Close(); err != nil {
		return errors.WithMessage(err, "closing compressor")
	}

	metrics.SnapshotBytesTotal.WithLabelValues(metrics.Encode, codec.String()).Add(float64(len(image)))
	return nil
}

// Decode reads a snapshot from |r|, returning its image and codec.
func Decode(r io.Reader) ([]byte, Codec, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil, None, ErrBadHeader
	} else if err != nil {
		return nil, None, errors.WithMessage(err, "reading header")
	} else if [8]byte(hdr[:len(magic)]) != magic {
		return nil, None, ErrBadHeader
	}
	var codec = Codec(hdr[len(magic)])
	var size = binary.BigEndian.Uint64(hdr[len(magic)+1:])

	cr, err := newCodecReader(r, codec)
	if err != nil {
		return nil, codec, err
	}
	defer cr.Close()

	// Read one byte beyond |size| to detect overlong images.
	image, err := io.ReadAll(io.LimitReader(cr, int64(size)+1))
	if err != nil {
		return nil, codec, errors.WithMessagef(err, "reading %d byte image", size)
	} else if uint64(len(image)) != size {
		return nil, codec, errors.Errorf("image has length %d, not %d", len(image), size)
	}

	metrics.SnapshotBytesTotal.WithLabelValues(metrics.Decode, codec.String()).Add(float64(size))
	return image, codec, nil
}

// Write serializes the main schema of |db| and encodes it to |w|.
func Write(w io.Writer, db *sqlitedb.Database, codec Codec) (int, error) {
	image, err := db.Serialize("main")
	if err != nil {
		return 0, errors.WithMessage(err, "serializing database")
	}
	var bw = bufio.NewWriter(w)
	if err = Encode(bw, image, codec); err != nil {
		return 0, err
	}
	return len(image), bw.Flush()
}

// Restore decodes a snapshot from |r| into a new in-memory Database.
func Restore(r io.Reader, opts *sqlitedb.Options) (*sqlitedb.Database, error) {
	image, _, err := Decode(bufio.NewReader(r))
	if err != nil {
		return nil, err
	}
	return sqlitedb.Deserialize(image, opts)
}

// Decompressor is a ReadCloser where Close releases decompressor state, but
// does not Close the underlying Reader.
type Decompressor io.ReadCloser

// Compressor is a WriteCloser where Close flushes final content to the
// underlying Writer, but does not Close it.
type Compressor io.WriteCloser

func newCodecReader(r io.Reader, codec Codec) (Decompressor, error) {
	switch codec {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		return gzip.NewReader(r)
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case Zstandard:
		return zstdNewReader(r)
	default:
		return nil, fmt.Errorf("unsupported codec %s", codec)
	}
}

func newCodecWriter(w io.Writer, codec Codec) (Compressor, error) {
	switch codec {
	case None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case Zstandard:
		return zstdNewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported codec %s", codec)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

var (
	zstdNewReader = func(io.Reader) (io.ReadCloser, error) {
		return nil, fmt.Errorf("zstd was not enabled at compile time")
	}
	zstdNewWriter = func(io.Writer) (io.WriteCloser, error) {
		return nil, fmt.Errorf("zstd was not enabled at compile time")
	}
)
