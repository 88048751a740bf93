// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package snapshot

import (
	"bytes"
	"testing"

	"github.com/productsupcom/go-sqlite-async/sqlitedb"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRestore(t *testing.T) {
	db, err := sqlitedb.Open(":memory:", nil)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Exec(`
		CREATE TABLE kv (id INTEGER PRIMARY KEY, v TEXT);
		WITH RECURSIVE n(i) AS (SELECT 1 UNION ALL SELECT i + 1 FROM n WHERE i < 500)
		INSERT INTO kv SELECT i, printf('value-%d', i) FROM n;
	`))
	expect, err := db.All("SELECT id, v FROM kv ORDER BY id", nil)
	require.NoError(t, err)

	for _, codec := range []Codec{None, Gzip, Snappy, Zstandard} {
		t.Run(codec.String(), func(t *testing.T) {
			var buf bytes.Buffer
			n, err := Write(&buf, db, codec)
			require.NoError(t, err)
			require.NotZero(t, n)

			if codec == None {
				require.Equal(t, headerLen+n, buf.Len())
			} else {
				require.Less(t, buf.Len(), headerLen+n)
			}

			restored, err := Restore(&buf, nil)
			require.NoError(t, err)
			defer restored.Close()

			rows, err := restored.All("SELECT id, v FROM kv ORDER BY id", nil)
			require.NoError(t, err)
			require.Equal(t, expect, rows)

			// The restored database is independent of its source.
			_, err = restored.Run("DELETE FROM kv", nil)
			require.NoError(t, err)
			row, err := db.Get("SELECT count(*) AS n FROM kv", nil)
			require.NoError(t, err)
			require.Equal(t, int64(500), row["n"])
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	var image = bytes.Repeat([]byte("an image "), 100)

	_, _, err := Decode(bytes.NewReader(nil))
	require.Equal(t, ErrBadHeader, err)
	_, _, err = Decode(bytes.NewReader([]byte("SQLSNAP")))
	require.Equal(t, ErrBadHeader, err)
	_, _, err = Decode(bytes.NewReader(bytes.Repeat([]byte("x"), 64)))
	require.Equal(t, ErrBadHeader, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, image, Gzip))
	var encoded = buf.Bytes()

	out, codec, err := Decode(bytes.NewReader(encoded))
	require.NoError(t, err)
	require.Equal(t, Gzip, codec)
	require.Equal(t, image, out)

	// Truncated content.
	_, _, err = Decode(bytes.NewReader(encoded[:len(encoded)-10]))
	require.Error(t, err)

	// Declared lengths which disagree with the image.
	buf.Reset()
	require.NoError(t, Encode(&buf, image, None))
	var short = append([]byte(nil), buf.Bytes()...)
	short[headerLen-1]--
	_, _, err = Decode(bytes.NewReader(short))
	require.EqualError(t, err, "image has length 900, not 899")

	var long = append([]byte(nil), buf.Bytes()...)
	long[headerLen-1]++
	_, _, err = Decode(bytes.NewReader(long))
	require.EqualError(t, err, "image has length 900, not 901")

	// Unknown codecs.
	var unknown = append([]byte(nil), buf.Bytes()...)
	unknown[len(magic)] = 9
	_, codec, err = Decode(bytes.NewReader(unknown))
	require.EqualError(t, err, "unsupported codec Codec(9)")
	require.Equal(t, Codec(9), codec)

	require.EqualError(t, Encode(&buf, image, Codec(9)), "unsupported codec Codec(9)")
}

func TestParseCodec(t *testing.T) {
	for _, codec := range []Codec{None, Gzip, Snappy, Zstandard} {
		parsed, err := ParseCodec(codec.String())
		require.NoError(t, err)
		require.Equal(t, codec, parsed)
	}
	_, err := ParseCodec("lz4")
	require.EqualError(t, err, `unsupported codec "lz4"`)
}
