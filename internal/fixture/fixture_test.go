package fixture

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zeebo/assert"

	phmaperrors "github.com/tamirms/phmap/errors"
)

func TestGenerate(t *testing.T) {
	entries := Generate(DefaultCount, 1)
	assert.Equal(t, len(entries), DefaultCount)

	keys := make(map[string]bool, len(entries))
	for _, e := range entries {
		assert.That(t, strings.Contains(e.Key, "-test-key-"))
		assert.That(t, strings.HasPrefix(e.Value, "test-val-"))
		assert.That(t, !keys[e.Key])
		keys[e.Key] = true
	}

	assert.DeepEqual(t, Generate(100, 1), Generate(100, 1))
	assert.NotEqual(t, Generate(1, 1)[0].Key, Generate(1, 2)[0].Key)
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.phfx")
	entries := Generate(DefaultCount, 7)

	assert.NoError(t, WriteFile(path, entries))

	got, err := ReadFile(path)
	assert.NoError(t, err)
	assert.DeepEqual(t, got, entries)
}

func TestOpenAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.phfx")
	entries := Generate(50, 3)
	assert.NoError(t, WriteFile(path, entries))

	fx, err := Open(path)
	assert.NoError(t, err)
	assert.Equal(t, fx.Len(), len(entries))

	i := 0
	for k, v := range fx.All() {
		assert.Equal(t, k, entries[i].Key)
		assert.Equal(t, v, entries[i].Value)
		i++
		if i == 10 {
			break
		}
	}
	assert.Equal(t, i, 10)

	assert.NoError(t, fx.Close())
	assert.NoError(t, fx.Close())
}

func TestEmptyFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.phfx")
	assert.NoError(t, WriteFile(path, nil))

	got, err := ReadFile(path)
	assert.NoError(t, err)
	assert.Equal(t, len(got), 0)
}

func TestCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.phfx")
	assert.NoError(t, WriteFile(path, Generate(20, 5)))
	data, err := os.ReadFile(path)
	assert.NoError(t, err)

	corrupt := func(mutate func([]byte) []byte) []byte {
		buf := append([]byte(nil), data...)
		return mutate(buf)
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"magic", corrupt(func(b []byte) []byte { b[0] ^= 0xff; return b }), phmaperrors.ErrInvalidMagic},
		{"version", corrupt(func(b []byte) []byte { b[4] = 9; return b }), phmaperrors.ErrInvalidVersion},
		{"record", corrupt(func(b []byte) []byte { b[headerSize+3] ^= 0x01; return b }), phmaperrors.ErrChecksumFailed},
		{"checksum", corrupt(func(b []byte) []byte { b[len(b)-1] ^= 0x80; return b }), phmaperrors.ErrChecksumFailed},
		{"short", data[:headerSize+footerSize-1], phmaperrors.ErrTruncatedFile},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := OpenBytes(tc.data)
			assert.That(t, errors.Is(err, tc.want))
		})
	}
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.phfx"))
	assert.That(t, errors.Is(err, os.ErrNotExist))
}

func TestWriteRejectsLongField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.phfx")
	err := WriteFile(path, []Entry{{Key: strings.Repeat("k", maxFieldLen+1), Value: "v"}})
	assert.Error(t, err)

	_, statErr := os.Stat(path)
	assert.That(t, errors.Is(statErr, os.ErrNotExist))
}
