package channel

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/njfio/tau/internal/atomicfile"
	"github.com/njfio/tau/tauerrors"
)

// Direction is the closed tag set for ChannelLogEntry.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	DirectionSystem   Direction = "system"
)

// ChannelLogEntry is one line of log.jsonl.
type ChannelLogEntry struct {
	TimestampUnixMs int64     `json:"timestamp_unix_ms"`
	Direction       Direction `json:"direction"`
	EventKey        string    `json:"event_key,omitempty"`
	Source          string    `json:"source"`
	Payload         any       `json:"payload"`
}

// ChannelContextEntry is one line of context.jsonl, suitable for LLM
// prompt replay.
type ChannelContextEntry struct {
	TimestampUnixMs int64  `json:"timestamp_unix_ms"`
	Role            string `json:"role"`
	Text            string `json:"text"`
}

// Visibility is the closed tag set for artifact visibility.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityShared  Visibility = "shared"
)

// ArtifactRecord is one manifest entry in artifacts/index.jsonl.
type ArtifactRecord struct {
	ID             string     `json:"id"`
	ArtifactType   string     `json:"artifact_type"`
	Visibility     Visibility `json:"visibility"`
	RunID          string     `json:"run_id,omitempty"`
	CreatedUnixMs  int64      `json:"created_unix_ms"`
	ExpiresUnixMs  *int64     `json:"expires_unix_ms,omitempty"`
	ChecksumSHA256 string     `json:"checksum_sha256"`
	Bytes          int64      `json:"bytes"`
	RelativePath   string     `json:"relative_path"`
	Extension      string     `json:"extension"`
}

// PolicyDecision is the closed tag set for attachment ingress decisions.
type PolicyDecision string

const (
	PolicyAccepted PolicyDecision = "accepted"
	PolicyDenied   PolicyDecision = "denied"
)

// AttachmentManifestEntry records one downloaded/ingested attachment.
type AttachmentManifestEntry struct {
	EventKey         string         `json:"event_key"`
	FileName         string         `json:"file_name"`
	PolicyDecision   PolicyDecision `json:"policy_decision"`
	PolicyReasonCode string         `json:"policy_reason_code,omitempty"`
	ExpiresUnixMs    *int64         `json:"expires_unix_ms,omitempty"`
}

// Store is the per-(transport, conversation_id) append-only log and
// artifact directory described in §3/§6.
type Store struct {
	root string
}

// OpenStore opens (without creating files eagerly) the channel store
// rooted at <root>/channels/<transport>/<conversationID>.
func OpenStore(root string, transport Transport, conversationID string) *Store {
	dir := filepath.Join(root, "channels", string(transport), sanitizePathSegment(conversationID))
	return &Store{root: dir}
}

func sanitizePathSegment(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return replacer.Replace(s)
}

func (s *Store) logPath() string          { return filepath.Join(s.root, "log.jsonl") }
func (s *Store) contextPath() string      { return filepath.Join(s.root, "context.jsonl") }
func (s *Store) artifactsDir() string     { return filepath.Join(s.root, "artifacts") }
func (s *Store) artifactsIndex() string   { return filepath.Join(s.artifactsDir(), "index.jsonl") }
func (s *Store) attachmentsDir() string   { return filepath.Join(s.root, "attachments") }
func (s *Store) attachmentsIndex() string { return filepath.Join(s.attachmentsDir(), "index.jsonl") }

// AppendLog appends one ChannelLogEntry.
func (s *Store) AppendLog(entry ChannelLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return atomicfile.AppendLine(s.logPath(), data)
}

// AppendContext appends one ChannelContextEntry.
func (s *Store) AppendContext(entry ChannelContextEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return atomicfile.AppendLine(s.contextPath(), data)
}

// PutArtifact writes artifact bytes to artifacts/<id>.<ext> and appends
// its manifest record to artifacts/index.jsonl.
func (s *Store) PutArtifact(record ArtifactRecord, data []byte) error {
	sum := sha256.Sum256(data)
	record.ChecksumSHA256 = hex.EncodeToString(sum[:])
	record.Bytes = int64(len(data))
	record.RelativePath = filepath.Join("artifacts", record.ID+"."+record.Extension)

	fullPath := filepath.Join(s.root, record.RelativePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return err
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return atomicfile.AppendLine(s.artifactsIndex(), encoded)
}

// ArtifactInventory reads artifacts/index.jsonl, tolerating invalid
// lines (counted and skipped) and pruning expired artifacts' bytes on
// disk, per §3's retention rule. It returns the live (non-expired)
// records and the count of invalid lines tolerated.
func (s *Store) ArtifactInventory(nowUnixMs int64) (live []ArtifactRecord, invalidLines int, err error) {
	f, openErr := os.Open(s.artifactsIndex())
	if os.IsNotExist(openErr) {
		return nil, 0, nil
	}
	if openErr != nil {
		return nil, 0, openErr
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var rec ArtifactRecord
		if jsonErr := json.Unmarshal(line, &rec); jsonErr != nil {
			invalidLines++
			continue
		}
		if rec.ExpiresUnixMs != nil && *rec.ExpiresUnixMs <= nowUnixMs {
			path := filepath.Join(s.root, rec.RelativePath)
			_ = os.Remove(path)
			continue
		}
		live = append(live, rec)
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return live, invalidLines, scanErr
	}
	return live, invalidLines, nil
}

// PutAttachment writes an ingress attachment payload under
// attachments/<event_key_sanitized>/<file_name> and appends its
// manifest entry.
func (s *Store) PutAttachment(eventKey EventKey, fileName string, data []byte, entry AttachmentManifestEntry) error {
	dir := filepath.Join(s.attachmentsDir(), sanitizePathSegment(string(eventKey)))
	if entry.PolicyDecision == PolicyAccepted {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, sanitizePathSegment(fileName)), data, 0o644); err != nil {
			return err
		}
	}
	entry.EventKey = string(eventKey)
	entry.FileName = fileName
	encoded, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return atomicfile.AppendLine(s.attachmentsIndex(), encoded)
}

// NowUnixMs is the store's clock, overridable in tests.
var NowUnixMs = func() int64 { return time.Now().UnixMilli() }

// ValidateArtifactExtension is a minimal guard used before PutArtifact
// calls in contexts that accept caller-controlled extensions.
func ValidateArtifactExtension(ext string) error {
	if strings.ContainsAny(ext, "/\\.") {
		return tauerrors.Newf(tauerrors.CodeInvalidPayload, "invalid artifact extension %q", ext)
	}
	return nil
}
