// Package phmap implements static, rebuildable key-value maps backed by a
// minimal perfect hash index.
//
// A map holds a known key set. Each key is hashed once and the index maps
// the hash to a dense slot in [0, n), so values live directly in a slot
// array with no probing and no tombstones. Every mutation rebuilds the
// whole index, which suits sets that are written rarely and read often.
//
// # Basic Usage
//
// Building a string map:
//
//	m, err := phmap.NewStrMap[int](phmap.WithWorkers(4))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
//
//	err = m.Extend(maps.All(map[string]int{
//	    "user:1001": 1,
//	    "user:1002": 2,
//	}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	v, ok := m.Get("user:1002")
//
// StrMap only hashes the byte range that distinguishes its keys (here the
// last byte), found with FindRange. Map is the generic form; a Keyer
// supplies the hash and the borrowed lookup view:
//
//	m, err := phmap.New[[]byte, []byte, *Conn](phmap.BytesKeyer{})
//
// Values implementing io.Closer are closed exactly once by Close.
//
// # Package Structure
//
//   - Maps: map.go (Map), strmap.go (StrMap), findrange.go (FindRange)
//   - Configuration: options.go (Option, With* functions)
//   - Hashing: keyer.go (Keyer, StringKeyer, BytesKeyer, Murmur3Keyer)
//   - Index dispatch: algorithm.go (IndexFunction, IndexBuilder, Algorithm)
//   - Index functions: internal/ptrhash/ (PTRHash), internal/sorted/ (rank baseline)
//   - Test data: internal/fixture/ (generated key-value files)
package phmap
