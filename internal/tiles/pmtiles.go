package tiles

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// PMTiles v3 constants. https://github.com/protomaps/PMTiles/blob/main/spec/v3/spec.md
const (
	headerLen       = 127
	compressionGzip = 2
	tileTypeMVT     = 1
)

var errNotPMTiles = errors.New("not a PMTiles v3 archive")

// Header is the part of a PMTiles header the server reports.
type Header struct {
	MinZoom   uint8
	MaxZoom   uint8
	Tiles     uint64
	Bound     orb.Bound
	Clustered bool
}

// Archive collects gzipped MVT tiles and writes them as a single clustered
// PMTiles v3 file with one root directory.
type Archive struct {
	name  string
	tiles map[uint64][]byte
	bound orb.Bound
	min   maptile.Zoom
	max   maptile.Zoom
	empty bool
}

// NewArchive creates an empty archive named after the exported layer.
func NewArchive(name string) *Archive {
	return &Archive{name: name, tiles: map[uint64][]byte{}, empty: true}
}

// Add stores the tile data. Adding the same tile twice keeps the last data.
func (a *Archive) Add(t maptile.Tile, data []byte) {
	a.tiles[tileID(t)] = data
	b := t.Bound()
	if a.empty {
		a.bound, a.min, a.max, a.empty = b, t.Z, t.Z, false
		return
	}
	a.bound = a.bound.Union(b)
	if t.Z < a.min {
		a.min = t.Z
	}
	if t.Z > a.max {
		a.max = t.Z
	}
}

// Len returns the number of stored tiles.
func (a *Archive) Len() int { return len(a.tiles) }

// WriteTo writes the archive.
func (a *Archive) WriteTo(w io.Writer) (int64, error) {
	if a.empty {
		return 0, errors.New("no tiles to write")
	}

	ids := make([]uint64, 0, len(a.tiles))
	for id := range a.tiles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var data bytes.Buffer
	entries := make([]entry, 0, len(ids))
	for _, id := range ids {
		t := a.tiles[id]
		entries = append(entries, entry{id: id, offset: uint64(data.Len()), length: uint32(len(t)), run: 1})
		data.Write(t)
	}

	dir, err := gzipBytes(encodeDirectory(entries))
	if err != nil {
		return 0, err
	}
	meta, err := json.Marshal(map[string]any{
		"name":          a.name,
		"format":        "pbf",
		"vector_layers": []map[string]any{{"id": a.name, "minzoom": a.min, "maxzoom": a.max}},
	})
	if err != nil {
		return 0, err
	}
	if meta, err = gzipBytes(meta); err != nil {
		return 0, err
	}

	h := make([]byte, headerLen)
	copy(h, "PMTiles")
	h[7] = 3
	le := binary.LittleEndian
	rootOff := uint64(headerLen)
	metaOff := rootOff + uint64(len(dir))
	dataOff := metaOff + uint64(len(meta))
	le.PutUint64(h[8:], rootOff)
	le.PutUint64(h[16:], uint64(len(dir)))
	le.PutUint64(h[24:], metaOff)
	le.PutUint64(h[32:], uint64(len(meta)))
	// No leaf directories.
	le.PutUint64(h[56:], dataOff)
	le.PutUint64(h[64:], uint64(data.Len()))
	le.PutUint64(h[72:], uint64(len(entries)))
	le.PutUint64(h[80:], uint64(len(entries)))
	le.PutUint64(h[88:], uint64(len(entries)))
	h[96] = 1
	h[97] = compressionGzip
	h[98] = compressionGzip
	h[99] = tileTypeMVT
	h[100] = uint8(a.min)
	h[101] = uint8(a.max)
	le.PutUint32(h[102:], uint32(e7(a.bound.Min.Lon())))
	le.PutUint32(h[106:], uint32(e7(a.bound.Min.Lat())))
	le.PutUint32(h[110:], uint32(e7(a.bound.Max.Lon())))
	le.PutUint32(h[114:], uint32(e7(a.bound.Max.Lat())))
	c := a.bound.Center()
	h[118] = uint8(a.min)
	le.PutUint32(h[119:], uint32(e7(c.Lon())))
	le.PutUint32(h[123:], uint32(e7(c.Lat())))

	var n int64
	for _, part := range [][]byte{h, dir, meta, data.Bytes()} {
		m, err := w.Write(part)
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// ReadHeader decodes the fixed header at the start of an archive.
func ReadHeader(r io.Reader) (Header, error) {
	h := make([]byte, headerLen)
	if _, err := io.ReadFull(r, h); err != nil {
		return Header{}, fmt.Errorf("%w: %v", errNotPMTiles, err)
	}
	if string(h[:7]) != "PMTiles" || h[7] != 3 {
		return Header{}, errNotPMTiles
	}
	le := binary.LittleEndian
	fromE7 := func(b []byte) float64 { return float64(int32(le.Uint32(b))) / 1e7 }
	return Header{
		MinZoom:   h[100],
		MaxZoom:   h[101],
		Tiles:     le.Uint64(h[72:]),
		Clustered: h[96] == 1,
		Bound: orb.Bound{
			Min: orb.Point{fromE7(h[102:]), fromE7(h[106:])},
			Max: orb.Point{fromE7(h[110:]), fromE7(h[114:])},
		},
	}, nil
}

type entry struct {
	id     uint64
	offset uint64
	length uint32
	run    uint32
}

// encodeDirectory writes entries column-wise as varints: count, id deltas,
// run lengths, lengths, then offsets (0 when contiguous with the previous
// tile, offset+1 otherwise).
func encodeDirectory(entries []entry) []byte {
	var buf bytes.Buffer
	tmp := make([]byte, binary.MaxVarintLen64)
	put := func(v uint64) {
		n := binary.PutUvarint(tmp, v)
		buf.Write(tmp[:n])
	}

	put(uint64(len(entries)))
	last := uint64(0)
	for _, e := range entries {
		put(e.id - last)
		last = e.id
	}
	for _, e := range entries {
		put(uint64(e.run))
	}
	for _, e := range entries {
		put(uint64(e.length))
	}
	for i, e := range entries {
		if i > 0 && e.offset == entries[i-1].offset+uint64(entries[i-1].length) {
			put(0)
			continue
		}
		put(e.offset + 1)
	}
	return buf.Bytes()
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func e7(v float64) int32 { return int32(v * 1e7) }

// tileID maps a tile to its position on the Hilbert curve of its zoom level,
// offset by the number of tiles on all lower levels.
func tileID(t maptile.Tile) uint64 {
	z := uint8(t.Z)
	x, y := t.X, t.Y
	acc := (uint64(1)<<(2*z) - 1) / 3
	for s := uint32(1) << z >> 1; s > 0; s >>= 1 {
		var rx, ry uint64
		if x&s > 0 {
			rx = 1
		}
		if y&s > 0 {
			ry = 1
		}
		acc += uint64(s) * uint64(s) * ((3 * rx) ^ ry)
		if ry == 0 {
			if rx == 1 {
				x = s - 1 - (x & (s - 1))
				y = s - 1 - (y & (s - 1))
			}
			x, y = y, x
		}
	}
	return acc
}
