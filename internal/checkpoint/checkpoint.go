package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lion-dev/lion/internal/domain"
	"github.com/lion-dev/lion/internal/lionerr"
)

const metaSuffix = ".meta"
const tmpSuffix = ".tmp"

// Metadata describes one stored checkpoint without needing to load and
// deserialize its payload.
type Metadata struct {
	ID         string            `json:"id"`
	WorkflowID domain.WorkflowID `json:"workflow_id"`
	Version    string            `json:"version"`
	CreatedAt  time.Time         `json:"created_at"`
	Size       int               `json:"size"`
	Checksum   string            `json:"checksum"`
}

// Manager is the checkpoint coordinator of spec.md §4.I: it persists
// arbitrary workflow state atomically, verifies it on load via a SHA-256
// checksum and schema version, and prunes older checkpoints per workflow.
type Manager struct {
	backend       Backend
	schemaVersion string

	locksMu sync.Mutex
	locks   map[domain.WorkflowID]*sync.Mutex
}

// New constructs a Manager backed by backend, stamping every checkpoint it
// writes with schemaVersion.
func New(backend Backend, schemaVersion string) *Manager {
	return &Manager{
		backend:       backend,
		schemaVersion: schemaVersion,
		locks:         make(map[domain.WorkflowID]*sync.Mutex),
	}
}

func (m *Manager) lockFor(workflowID domain.WorkflowID) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	lock, ok := m.locks[workflowID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[workflowID] = lock
	}
	return lock
}

// Save serializes state as JSON, writes it to a temp key, writes its
// metadata, then atomically renames the temp key into place, per spec.md
// §4.I "Checkpointing". Save refuses to run concurrently for the same
// workflow ID, returning a CheckpointInProgress error instead of blocking.
func (m *Manager) Save(ctx context.Context, workflowID domain.WorkflowID, state any) (string, error) {
	lock := m.lockFor(workflowID)
	if !lock.TryLock() {
		return "", lionerr.NewCheckpointError(lionerr.CheckpointInProgress, string(workflowID), nil)
	}
	defer lock.Unlock()

	data, err := json.Marshal(state)
	if err != nil {
		return "", lionerr.NewCheckpointError(lionerr.CheckpointStorageError, "serialize checkpoint state", err)
	}

	id := fmt.Sprintf("%s-%d-%s", workflowID, time.Now().UnixMilli(), uuid.NewString())
	checksum := checksum(data)

	meta := Metadata{
		ID:         id,
		WorkflowID: workflowID,
		Version:    m.schemaVersion,
		CreatedAt:  time.Now(),
		Size:       len(data),
		Checksum:   checksum,
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return "", lionerr.NewCheckpointError(lionerr.CheckpointStorageError, "serialize checkpoint metadata", err)
	}

	if err := m.backend.Store(ctx, id+tmpSuffix, data); err != nil {
		return "", lionerr.NewCheckpointError(lionerr.CheckpointStorageError, "write checkpoint data", err)
	}
	if err := m.backend.Store(ctx, id+metaSuffix, metaData); err != nil {
		return "", lionerr.NewCheckpointError(lionerr.CheckpointStorageError, "write checkpoint metadata", err)
	}
	if err := m.backend.Rename(ctx, id+tmpSuffix, id); err != nil {
		return "", lionerr.NewCheckpointError(lionerr.CheckpointStorageError, "finalize checkpoint", err)
	}
	return id, nil
}

// Load reads a checkpoint by ID, verifying its schema version and
// checksum before deserializing it into out.
func (m *Manager) Load(ctx context.Context, id string, out any) (Metadata, error) {
	meta, err := m.loadMetadata(ctx, id)
	if err != nil {
		return Metadata{}, err
	}
	if meta.Version != m.schemaVersion {
		return Metadata{}, lionerr.NewCheckpointError(lionerr.CheckpointSchemaVersionMismatch,
			fmt.Sprintf("checkpoint %s: expected schema version %s, found %s", id, m.schemaVersion, meta.Version), nil)
	}

	data, err := m.backend.Load(ctx, id)
	if err != nil {
		return Metadata{}, lionerr.NewCheckpointError(lionerr.CheckpointNotFound, id, err)
	}
	if checksum(data) != meta.Checksum {
		return Metadata{}, lionerr.NewCheckpointError(lionerr.CheckpointValidationFailed,
			fmt.Sprintf("checkpoint %s: checksum mismatch", id), nil)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return Metadata{}, lionerr.NewCheckpointError(lionerr.CheckpointValidationFailed,
				fmt.Sprintf("checkpoint %s: deserialize", id), err)
		}
	}
	return meta, nil
}

func (m *Manager) loadMetadata(ctx context.Context, id string) (Metadata, error) {
	data, err := m.backend.Load(ctx, id+metaSuffix)
	if err != nil {
		return Metadata{}, lionerr.NewCheckpointError(lionerr.CheckpointNotFound, id, err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, lionerr.NewCheckpointError(lionerr.CheckpointStorageError,
			fmt.Sprintf("checkpoint %s: corrupt metadata", id), err)
	}
	return meta, nil
}

// LoadLatest loads the most recently created checkpoint for a workflow.
func (m *Manager) LoadLatest(ctx context.Context, workflowID domain.WorkflowID, out any) (Metadata, error) {
	all, err := m.List(ctx, workflowID)
	if err != nil {
		return Metadata{}, err
	}
	if len(all) == 0 {
		return Metadata{}, lionerr.NewCheckpointError(lionerr.CheckpointNotFound,
			fmt.Sprintf("no checkpoints for workflow %s", workflowID), nil)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return m.Load(ctx, all[0].ID, out)
}

// List returns the metadata of every checkpoint stored for a workflow.
func (m *Manager) List(ctx context.Context, workflowID domain.WorkflowID) ([]Metadata, error) {
	keys, err := m.backend.List(ctx)
	if err != nil {
		return nil, lionerr.NewCheckpointError(lionerr.CheckpointStorageError, "list checkpoints", err)
	}

	var result []Metadata
	for _, key := range keys {
		if !strings.HasSuffix(key, metaSuffix) {
			continue
		}
		id := strings.TrimSuffix(key, metaSuffix)
		meta, err := m.loadMetadata(ctx, id)
		if err != nil {
			continue
		}
		if meta.WorkflowID == workflowID {
			result = append(result, meta)
		}
	}
	return result, nil
}

// Delete removes a checkpoint's data and metadata.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.backend.Delete(ctx, id); err != nil {
		return lionerr.NewCheckpointError(lionerr.CheckpointStorageError, fmt.Sprintf("delete checkpoint %s", id), err)
	}
	if err := m.backend.Delete(ctx, id+metaSuffix); err != nil {
		return lionerr.NewCheckpointError(lionerr.CheckpointStorageError, fmt.Sprintf("delete checkpoint %s metadata", id), err)
	}
	return nil
}

// Prune keeps only the keepCount newest checkpoints for a workflow,
// deleting the rest, and returns how many were deleted.
func (m *Manager) Prune(ctx context.Context, workflowID domain.WorkflowID, keepCount int) (int, error) {
	all, err := m.List(ctx, workflowID)
	if err != nil {
		return 0, err
	}
	if len(all) <= keepCount {
		return 0, nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	deleted := 0
	for _, meta := range all[keepCount:] {
		if err := m.Delete(ctx, meta.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
