package datasets

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	_ "modernc.org/sqlite"

	"github.com/Noofbiz/batchfeed/minibatch"
)

const sqliteSchema = `
CREATE TABLE streams (
	name           TEXT PRIMARY KEY,
	id             INTEGER NOT NULL UNIQUE,
	storage_format TEXT NOT NULL,
	element_type   TEXT NOT NULL,
	shape          TEXT NOT NULL,
	is_sequence    INTEGER NOT NULL
);

CREATE TABLE chunks (
	id          INTEGER PRIMARY KEY,
	num_samples INTEGER NOT NULL
);

CREATE TABLE samples (
	chunk_id    INTEGER NOT NULL REFERENCES chunks(id),
	stream_name TEXT NOT NULL REFERENCES streams(name),
	position    INTEGER NOT NULL,
	data        BLOB NOT NULL,
	PRIMARY KEY (chunk_id, stream_name, position)
);
`

// SQLiteSource is a ChunkSource backed by a single SQLite file written by
// CreateSQLite. It uses modernc.org/sqlite, which needs no CGO.
type SQLiteSource struct {
	db        *sql.DB
	path      string
	streams   map[string]minibatch.StreamDescriptor
	numChunks int
}

// CreateSQLite snapshots every chunk of src into a new SQLite file at path.
// The file must not exist yet. Chunks are read in id order inside a single
// transaction, so a failure leaves no partial dataset behind.
func CreateSQLite(path string, src minibatch.ChunkSource) (err error) {
	if _, statErr := os.Stat(path); statErr == nil {
		return fmt.Errorf("sqlite dataset %s already exists", path)
	}

	db, err := openSQLiteDB(path)
	if err != nil {
		return err
	}
	defer func() {
		db.Close()
		if err != nil {
			os.Remove(path)
		}
	}()

	if _, err = db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	streams := src.StreamDescriptors()
	for _, d := range streams {
		shape, jsonErr := json.Marshal(d.SampleShape)
		if jsonErr != nil {
			return fmt.Errorf("encoding shape of %q: %w", d.Name, jsonErr)
		}
		_, err = tx.Exec(`INSERT INTO streams (name, id, storage_format, element_type, shape, is_sequence)
			VALUES (?, ?, ?, ?, ?, ?)`,
			d.Name, int64(d.ID), d.StorageFormat.String(), d.ElementType.String(), string(shape), d.IsSequence)
		if err != nil {
			return fmt.Errorf("inserting stream %q: %w", d.Name, err)
		}
	}

	insertChunk, err := tx.Prepare(`INSERT INTO chunks (id, num_samples) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer insertChunk.Close()
	insertSample, err := tx.Prepare(`INSERT INTO samples (chunk_id, stream_name, position, data) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing sample insert: %w", err)
	}
	defer insertSample.Close()

	for id := range src.NumChunks() {
		chunk, chunkErr := src.Chunk(id)
		if chunkErr != nil {
			return fmt.Errorf("reading chunk %d: %w", id, chunkErr)
		}
		if _, err = insertChunk.Exec(id, chunk.Len()); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", id, err)
		}
		for name, samples := range chunk {
			if _, ok := streams[name]; !ok {
				return fmt.Errorf("chunk %d holds undeclared stream %q", id, name)
			}
			for pos, s := range samples {
				if _, err = insertSample.Exec(id, name, pos, encodeSample(s)); err != nil {
					return fmt.Errorf("inserting chunk %d stream %q sample %d: %w", id, name, pos, err)
				}
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing dataset: %w", err)
	}
	return nil
}

// OpenSQLite opens a dataset written by CreateSQLite.
func OpenSQLite(path string) (*SQLiteSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening sqlite dataset: %w", err)
	}

	db, err := openSQLiteDB(path)
	if err != nil {
		return nil, err
	}

	s := &SQLiteSource{db: db, path: path}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func openSQLiteDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// load reads the stream declarations and chunk count.
func (s *SQLiteSource) load() error {
	rows, err := s.db.Query(`SELECT name, id, storage_format, element_type, shape, is_sequence FROM streams`)
	if err != nil {
		return fmt.Errorf("reading streams: %w", err)
	}
	defer rows.Close()

	s.streams = make(map[string]minibatch.StreamDescriptor)
	for rows.Next() {
		var d minibatch.StreamDescriptor
		var id int64
		var format, elemType, shape string
		if err := rows.Scan(&d.Name, &id, &format, &elemType, &shape, &d.IsSequence); err != nil {
			return fmt.Errorf("scanning stream: %w", err)
		}
		d.ID = uint32(id)
		if d.StorageFormat, err = minibatch.ParseStorageFormat(format); err != nil {
			return err
		}
		if d.ElementType, err = minibatch.ParseElementType(elemType); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(shape), &d.SampleShape); err != nil {
			return fmt.Errorf("decoding shape of %q: %w", d.Name, err)
		}
		s.streams[d.Name] = d
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading streams: %w", err)
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&s.numChunks); err != nil {
		return fmt.Errorf("counting chunks: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteSource) Path() string {
	return s.path
}

func (s *SQLiteSource) StreamDescriptors() map[string]minibatch.StreamDescriptor {
	return s.streams
}

func (s *SQLiteSource) NumChunks() int {
	return s.numChunks
}

// Chunk loads the samples of chunk id, in their original order.
func (s *SQLiteSource) Chunk(id int) (minibatch.Chunk, error) {
	if id < 0 || id >= s.numChunks {
		return nil, fmt.Errorf("chunk %d out of range [0, %d)", id, s.numChunks)
	}

	rows, err := s.db.Query(`SELECT stream_name, data FROM samples WHERE chunk_id = ? ORDER BY stream_name, position`, id)
	if err != nil {
		return nil, fmt.Errorf("querying chunk %d: %w", id, err)
	}
	defer rows.Close()

	chunk := make(minibatch.Chunk, len(s.streams))
	for name := range s.streams {
		chunk[name] = []minibatch.Sample{}
	}
	for rows.Next() {
		var (
			name string
			data []byte
		)
		if err := rows.Scan(&name, &data); err != nil {
			return nil, fmt.Errorf("scanning chunk %d: %w", id, err)
		}
		sample, err := decodeSample(data)
		if err != nil {
			return nil, fmt.Errorf("chunk %d stream %q: %w", id, name, err)
		}
		chunk[name] = append(chunk[name], sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chunk %d: %w", id, err)
	}
	return chunk, nil
}

// encodeSample stores a sample as little-endian float32 values.
func encodeSample(s minibatch.Sample) []byte {
	buf := make([]byte, 4*len(s))
	for i, v := range s {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

var errCorruptSample = errors.New("corrupt sample blob")

func decodeSample(data []byte) (minibatch.Sample, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", errCorruptSample, len(data))
	}
	s := make(minibatch.Sample, len(data)/4)
	for i := range s {
		s[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return s, nil
}
