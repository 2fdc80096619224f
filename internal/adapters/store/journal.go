package store

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ghalamif/twinfleet/internal/domain"
	"github.com/ghalamif/twinfleet/internal/ports"
)

const (
	frameHeaderLen = 12
	maxFrameLen    = 16 << 20
	readingsFile   = "readings.log"
	snapshotsFile  = "snapshots.log"
)

// JournalStore persists each log as a file of length-prefixed msgpack frames
// and serves queries from an index rebuilt on open.
type JournalStore struct {
	mu        sync.Mutex
	readings  *journal
	snapshots *journal
	index     *MemoryStore
}

// JournalStats describes what is on disk.
type JournalStats struct {
	Readings  uint64
	Snapshots uint64
	SizeBytes int64
}

// OpenJournalStore opens or creates the journal under dir. With fsync set
// every append is synced before it is acknowledged.
func OpenJournalStore(dir string, fsync bool) (*JournalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	index := NewMemoryStore()

	readings, err := openJournal(filepath.Join(dir, readingsFile), fsync, replayReading(index))
	if err != nil {
		return nil, err
	}

	snapshots, err := openJournal(filepath.Join(dir, snapshotsFile), fsync, replaySnapshot(index))
	if err != nil {
		_ = readings.close()
		return nil, err
	}

	return &JournalStore{readings: readings, snapshots: snapshots, index: index}, nil
}

// ReadJournal loads a journal directory without modifying it: files are
// opened read-only, nothing is created, and a torn tail is skipped rather
// than truncated. Both log files must exist.
func ReadJournal(dir string) (*MemoryStore, JournalStats, error) {
	var stats JournalStats
	info, err := os.Stat(dir)
	if err != nil {
		return nil, stats, err
	}
	if !info.IsDir() {
		return nil, stats, fmt.Errorf("%s is not a directory", dir)
	}

	index := NewMemoryStore()
	for _, f := range []struct {
		name   string
		replay func([]byte) error
		count  *uint64
	}{
		{readingsFile, replayReading(index), &stats.Readings},
		{snapshotsFile, replaySnapshot(index), &stats.Snapshots},
	} {
		lastID, size, err := readFrames(filepath.Join(dir, f.name), f.replay)
		if err != nil {
			return nil, JournalStats{}, err
		}
		*f.count = lastID
		stats.SizeBytes += size
	}
	return index, stats, nil
}

func readFrames(path string, replay func([]byte) error) (uint64, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	return scanFrames(f, filepath.Base(path), replay)
}

func replayReading(index *MemoryStore) func([]byte) error {
	return func(body []byte) error {
		var r domain.Reading
		if err := msgpack.Unmarshal(body, &r); err != nil {
			return fmt.Errorf("decode reading: %w", err)
		}
		return index.AppendReading(context.Background(), r)
	}
}

func replaySnapshot(index *MemoryStore) func([]byte) error {
	return func(body []byte) error {
		var s domain.Snapshot
		if err := msgpack.Unmarshal(body, &s); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		return index.AppendSnapshot(context.Background(), s)
	}
}

func (j *JournalStore) Name() string { return "journal" }

func (j *JournalStore) AppendReading(ctx context.Context, r domain.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := msgpack.Marshal(&r)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.readings.append(body); err != nil {
		return fmt.Errorf("journal reading %s: %w", r.SensorID, err)
	}
	return j.index.AppendReading(ctx, r)
}

func (j *JournalStore) AppendSnapshot(ctx context.Context, s domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := msgpack.Marshal(&s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.snapshots.append(body); err != nil {
		return fmt.Errorf("journal snapshot %s: %w", s.EquipmentID, err)
	}
	return j.index.AppendSnapshot(ctx, s)
}

func (j *JournalStore) QueryReadings(ctx context.Context, sensorID string, limit int) ([]domain.Reading, error) {
	return j.index.QueryReadings(ctx, sensorID, limit)
}

func (j *JournalStore) QuerySnapshots(ctx context.Context, equipmentID string, limit int) ([]domain.Snapshot, error) {
	return j.index.QuerySnapshots(ctx, equipmentID, limit)
}

func (j *JournalStore) Stats() JournalStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JournalStats{
		Readings:  j.readings.lastID,
		Snapshots: j.snapshots.lastID,
		SizeBytes: j.readings.size + j.snapshots.size,
	}
}

func (j *JournalStore) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return errors.Join(j.readings.close(), j.snapshots.close())
}

// journal is one append-only frame file: [8 bytes id][4 bytes len][body].
type journal struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	fsync  bool
	lastID uint64
	size   int64
}

func openJournal(path string, fsync bool, replay func(body []byte) error) (*journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	j := &journal{path: path, file: f, fsync: fsync}
	if err := j.scan(replay); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(j.size, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	j.writer = bufio.NewWriterSize(f, 64<<10)
	return j, nil
}

// scan replays complete frames and truncates a torn tail left by a crash.
func (j *journal) scan(replay func(body []byte) error) error {
	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	lastID, offset, err := scanFrames(j.file, filepath.Base(j.path), replay)
	if err != nil {
		return err
	}
	if err := j.file.Truncate(offset); err != nil {
		return err
	}
	j.lastID = lastID
	j.size = offset
	return nil
}

// scanFrames replays complete frames from r and returns the last frame id
// and the offset just past it. A torn or oversized tail ends the scan.
func scanFrames(r io.Reader, name string, replay func(body []byte) error) (uint64, int64, error) {
	reader := bufio.NewReader(r)
	var (
		lastID uint64
		offset int64
	)

	for {
		var hdr [frameHeaderLen]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return 0, 0, fmt.Errorf("journal scan header: %w", err)
		}
		id := binary.BigEndian.Uint64(hdr[0:8])
		length := binary.BigEndian.Uint32(hdr[8:12])
		if length > maxFrameLen {
			break
		}

		body := make([]byte, length)
		if _, err := io.ReadFull(reader, body); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return 0, 0, fmt.Errorf("journal scan body: %w", err)
		}
		if err := replay(body); err != nil {
			return 0, 0, fmt.Errorf("journal %s frame %d: %w", name, id, err)
		}
		offset += frameHeaderLen + int64(length)
		lastID = id
	}
	return lastID, offset, nil
}

func (j *journal) append(body []byte) (uint64, error) {
	id := j.lastID + 1

	var hdr [frameHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], id)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(body)))

	if _, err := j.writer.Write(hdr[:]); err != nil {
		return 0, j.rollback(err)
	}
	if _, err := j.writer.Write(body); err != nil {
		return 0, j.rollback(err)
	}
	if err := j.writer.Flush(); err != nil {
		return 0, j.rollback(err)
	}
	if j.fsync {
		if err := j.file.Sync(); err != nil {
			return 0, j.rollback(err)
		}
	}

	j.lastID = id
	j.size += int64(frameHeaderLen + len(body))
	return id, nil
}

// rollback drops a partially written frame so readers never see it.
func (j *journal) rollback(cause error) error {
	j.writer.Reset(j.file)
	if err := j.file.Truncate(j.size); err != nil {
		return errors.Join(cause, err)
	}
	if _, err := j.file.Seek(j.size, io.SeekStart); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (j *journal) close() error {
	if j.file == nil {
		return nil
	}
	err := j.writer.Flush()
	err = errors.Join(err, j.file.Close())
	j.file = nil
	return err
}

var _ ports.Store = (*JournalStore)(nil)
