package saves

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/framelink/framelink-go/internal/net/wire"
	"github.com/framelink/framelink-go/internal/telemetry/logger"
)

// Magic bytes identify save slot files.
var magicBytes = []byte("FLNKSAVE")

const (
	filePrefix    = "save-"
	fileExtension = ".flsav"
	checksumSize  = 32
	headerVersion = 1
)

var (
	ErrInvalidMagic     = errors.New("saves: invalid magic bytes")
	ErrChecksumMismatch = errors.New("saves: checksum mismatch")
	ErrNotFound         = errors.New("saves: slot not found")
	ErrKeyRequired      = errors.New("saves: slot is encrypted and no key is configured")
	ErrNotEncrypted     = errors.New("saves: slot is unencrypted but a key is configured")
)

type slotHeader struct {
	Version   int    `json:"version"`
	CreatedAt int64  `json:"created_at"`
	ROMHash   uint64 `json:"rom_hash"`
	Slot      uint8  `json:"slot"`
	Encrypted bool   `json:"encrypted"`
	DataSize  uint32 `json:"data_size"`
}

// Config configures the save store.
type Config struct {
	Dir string

	// Key enables XChaCha20-Poly1305 sealing of payloads when set.
	Key []byte
}

// Store reads and writes save slot files under a single directory.
type Store struct {
	dir    string
	cipher *Cipher
	log    logger.Logger
}

// NewStore creates a store rooted at cfg.Dir, creating the directory if
// needed.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("saves: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("saves: create dir: %w", err)
	}

	var cipher *Cipher
	if len(cfg.Key) > 0 {
		c, err := NewCipher(cfg.Key)
		if err != nil {
			return nil, err
		}
		cipher = c
	}

	return &Store{
		dir:    cfg.Dir,
		cipher: cipher,
		log:    logger.Default(),
	}, nil
}

// Encrypted reports whether the store seals payloads.
func (s *Store) Encrypted() bool {
	return s.cipher != nil
}

// Info describes a stored save slot.
type Info struct {
	ROMHash   uint64 `json:"rom_hash"`
	Slot      uint8  `json:"slot"`
	CreatedAt int64  `json:"created_at"`
	Size      int64  `json:"size"`
	Path      string `json:"path"`
	Checksum  string `json:"checksum"`
	Encrypted bool   `json:"encrypted"`
}

// Put writes a save slot atomically, replacing any previous contents.
func (s *Store) Put(romHash uint64, slot uint8, data []byte) (*Info, error) {
	now := time.Now()
	finalPath := s.slotPath(romHash, slot)
	tempPath := finalPath + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("saves: create temp file: %w", err)
	}
	defer os.Remove(tempPath)

	payload := data
	if s.cipher != nil {
		payload, err = s.cipher.Seal(data)
		if err != nil {
			file.Close()
			return nil, err
		}
	}

	hdr := slotHeader{
		Version:   headerVersion,
		CreatedAt: now.UnixMilli(),
		ROMHash:   romHash,
		Slot:      slot,
		Encrypted: s.cipher != nil,
		DataSize:  uint32(len(payload)),
	}
	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("saves: marshal header: %w", err)
	}

	hash := sha256.New()
	w := io.MultiWriter(file, hash)

	if _, err := w.Write(magicBytes); err != nil {
		file.Close()
		return nil, fmt.Errorf("saves: write magic: %w", err)
	}
	var hdrLen [4]byte
	binary.BigEndian.PutUint32(hdrLen[:], uint32(len(hdrJSON)))
	if _, err := w.Write(hdrLen[:]); err != nil {
		file.Close()
		return nil, fmt.Errorf("saves: write header length: %w", err)
	}
	if _, err := w.Write(hdrJSON); err != nil {
		file.Close()
		return nil, fmt.Errorf("saves: write header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		file.Close()
		return nil, fmt.Errorf("saves: write payload: %w", err)
	}

	// Checksum trailer covers everything before it.
	sum := hash.Sum(nil)
	if _, err := file.Write(sum); err != nil {
		file.Close()
		return nil, fmt.Errorf("saves: write checksum: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("saves: sync: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("saves: close: %w", err)
	}

	stat, err := os.Stat(tempPath)
	if err != nil {
		return nil, err
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return nil, fmt.Errorf("saves: rename: %w", err)
	}

	return &Info{
		ROMHash:   romHash,
		Slot:      slot,
		CreatedAt: hdr.CreatedAt,
		Size:      stat.Size(),
		Path:      finalPath,
		Checksum:  hex.EncodeToString(sum),
		Encrypted: hdr.Encrypted,
	}, nil
}

// Get reads a save slot, verifying the checksum trailer before
// returning data. Encrypted payloads are opened with the configured key.
func (s *Store) Get(romHash uint64, slot uint8) ([]byte, *Info, error) {
	path := s.slotPath(romHash, slot)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if stat.Size() < int64(len(magicBytes))+checksumSize {
		return nil, nil, ErrChecksumMismatch
	}

	bodyLen := stat.Size() - checksumSize
	expected := make([]byte, checksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, bodyLen, checksumSize), expected); err != nil {
		return nil, nil, err
	}
	h := sha256.New()
	if _, err := io.CopyN(h, io.NewSectionReader(f, 0, bodyLen), bodyLen); err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(h.Sum(nil), expected) {
		return nil, nil, ErrChecksumMismatch
	}

	br := bufio.NewReader(io.NewSectionReader(f, 0, bodyLen))

	magic := make([]byte, len(magicBytes))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(magic, magicBytes) {
		return nil, nil, ErrInvalidMagic
	}

	var hdrLenBuf [4]byte
	if _, err := io.ReadFull(br, hdrLenBuf[:]); err != nil {
		return nil, nil, err
	}
	hdrLen := binary.BigEndian.Uint32(hdrLenBuf[:])
	if hdrLen == 0 {
		return nil, nil, fmt.Errorf("saves: empty header")
	}
	hdrJSON := make([]byte, hdrLen)
	if _, err := io.ReadFull(br, hdrJSON); err != nil {
		return nil, nil, err
	}
	var hdr slotHeader
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return nil, nil, fmt.Errorf("saves: unmarshal header: %w", err)
	}

	payload := make([]byte, hdr.DataSize)
	if _, err := io.ReadFull(br, payload); err != nil {
		return nil, nil, err
	}

	data := payload
	switch {
	case hdr.Encrypted && s.cipher == nil:
		return nil, nil, ErrKeyRequired
	case hdr.Encrypted:
		data, err = s.cipher.Open(payload)
		if err != nil {
			return nil, nil, err
		}
	case s.cipher != nil:
		return nil, nil, ErrNotEncrypted
	}

	info := &Info{
		ROMHash:   hdr.ROMHash,
		Slot:      hdr.Slot,
		CreatedAt: hdr.CreatedAt,
		Size:      stat.Size(),
		Path:      path,
		Checksum:  hex.EncodeToString(expected),
		Encrypted: hdr.Encrypted,
	}
	return data, info, nil
}

// Delete removes a save slot.
func (s *Store) Delete(romHash uint64, slot uint8) error {
	err := os.Remove(s.slotPath(romHash, slot))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

// List lists stored slots (metadata only), sorted by file name.
func (s *Store) List() ([]*Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileExtension) {
			paths = append(paths, filepath.Join(s.dir, name))
		}
	}
	sort.Strings(paths)

	var infos []*Info
	for _, p := range paths {
		var romHash uint64
		var slot uint8
		if !parseSlotName(filepath.Base(p), &romHash, &slot) {
			continue
		}
		stat, err := os.Stat(p)
		if err != nil {
			continue
		}
		infos = append(infos, &Info{
			ROMHash: romHash,
			Slot:    slot,
			Size:    stat.Size(),
			Path:    p,
		})
	}
	return infos, nil
}

// SaveConfigFor builds the session-start save config for a slot. In
// synchronized mode the slot contents are loaded into the config so the
// host can distribute them; a missing slot falls back to a fresh game.
func (s *Store) SaveConfigFor(romHash uint64, mode wire.SaveMode, slot uint8) (*wire.SaveConfig, error) {
	cfg := &wire.SaveConfig{SlotIndex: slot, Mode: mode}
	if mode != wire.SaveSynchronized {
		return cfg, nil
	}

	data, _, err := s.Get(romHash, slot)
	if errors.Is(err, ErrNotFound) {
		s.log.Info("synchronized save slot empty, starting fresh",
			"rom_hash", fmt.Sprintf("%016x", romHash), "slot", slot)
		cfg.Mode = wire.SaveNewGame
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	cfg.SynchronizedSave = data
	return cfg, nil
}

// ApplySynchronized persists save data received from the host. Configs
// without synchronized data are a no-op.
func (s *Store) ApplySynchronized(romHash uint64, cfg *wire.SaveConfig) error {
	if cfg == nil || cfg.Mode != wire.SaveSynchronized || len(cfg.SynchronizedSave) == 0 {
		return nil
	}
	_, err := s.Put(romHash, cfg.SlotIndex, cfg.SynchronizedSave)
	return err
}

func (s *Store) slotPath(romHash uint64, slot uint8) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%016x-%02d%s", filePrefix, romHash, slot, fileExtension))
}

func parseSlotName(name string, romHash *uint64, slot *uint8) bool {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExtension)
	var h uint64
	var sl uint8
	if _, err := fmt.Sscanf(trimmed, "%16x-%d", &h, &sl); err != nil {
		return false
	}
	*romHash = h
	*slot = sl
	return true
}
