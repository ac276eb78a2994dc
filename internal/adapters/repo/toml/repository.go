// Package toml keeps every group document in one TOML file. Writes replace
// the file atomically and are serialised per path.
package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/bnema/partybot/internal/adapters/repo/document"
	"github.com/bnema/partybot/internal/domain"
	"github.com/bnema/partybot/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	groupsPathKey   = "store.toml.path"
	groupsFileMode  = 0o600
	groupsDirMode   = 0o700
	groupsConfigDir = ".partybot"
	groupsFile      = "groups.toml"
	tempFilePattern = ".groups-*.toml.tmp"
)

type Repository struct {
	groupsPath string
	mu         *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.GroupRepository = (*Repository)(nil)

func NewRepository(cfg *viper.Viper) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	groupsPath := cfg.GetString(groupsPathKey)
	if groupsPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		groupsPath = filepath.Join(homeDir, groupsConfigDir, groupsFile)
	}

	groupsPath, err := normalizeGroupsPath(groupsPath)
	if err != nil {
		return nil, err
	}

	return &Repository{groupsPath: groupsPath, mu: lockForPath(groupsPath)}, nil
}

func (r *Repository) Get(ctx context.Context, id domain.GroupID) (domain.GroupRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.GroupRecord{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.GroupRecord{}, err
	}

	for _, entry := range file.Groups {
		if entry.ID == string(id) {
			return fromSchema(entry), nil
		}
	}

	return domain.GroupRecord{}, document.NotFound(id)
}

func (r *Repository) Upsert(ctx context.Context, record domain.GroupRecord) (domain.GroupRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.GroupRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.GroupRecord{}, err
	}

	idx := slices.IndexFunc(file.Groups, func(g groupSchema) bool { return g.ID == string(record.ID) })
	var current int64
	if idx >= 0 {
		current = file.Groups[idx].Version
	}
	if current != record.Version {
		return domain.GroupRecord{}, document.ConflictError(record.ID, record.Version, current)
	}

	stored := document.Stamp(record)
	encoded := toSchema(stored)
	if idx >= 0 {
		file.Groups[idx] = encoded
	} else {
		file.Groups = append(file.Groups, encoded)
	}

	if err := ctx.Err(); err != nil {
		return domain.GroupRecord{}, err
	}
	if err := r.writeSchema(file); err != nil {
		return domain.GroupRecord{}, err
	}

	return stored, nil
}

func (r *Repository) Delete(ctx context.Context, id domain.GroupID) (domain.GroupRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.GroupRecord{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.GroupRecord{}, false, err
	}

	idx := slices.IndexFunc(file.Groups, func(g groupSchema) bool { return g.ID == string(id) })
	if idx < 0 {
		return domain.GroupRecord{}, false, nil
	}
	removed := fromSchema(file.Groups[idx])
	file.Groups = slices.Delete(file.Groups, idx, idx+1)

	if err := r.writeSchema(file); err != nil {
		return domain.GroupRecord{}, false, err
	}

	return removed, true, nil
}

func (r *Repository) List(ctx context.Context) ([]domain.GroupRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	records := make([]domain.GroupRecord, 0, len(file.Groups))
	for _, entry := range file.Groups {
		records = append(records, fromSchema(entry))
	}

	return records, nil
}

func (r *Repository) Close() error {
	return nil
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.groupsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{}, nil
		}
		return fileSchema{}, fmt.Errorf("%w: read groups file: %w", domain.ErrStoreUnavailable, err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode groups file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func normalizeGroupsPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve groups path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.groupsPath), groupsDirMode); err != nil {
		return fmt.Errorf("create groups directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode groups file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.groupsPath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp groups file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp groups file: %w", err)
	}

	if err := tempFile.Chmod(groupsFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp groups file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp groups file: %w", err)
	}

	if err := os.Rename(tempName, r.groupsPath); err != nil {
		return fmt.Errorf("replace groups file: %w", err)
	}

	cleanup = false
	return nil
}

func toSchema(record domain.GroupRecord) groupSchema {
	parties := make([]partySchema, 0, len(record.Parties))
	for _, p := range record.Parties {
		members := make([]memberSchema, 0, len(p.Members))
		for i, id := range p.Members {
			members = append(members, memberSchema{ID: string(id), Name: p.MemberNames[i]})
		}
		parties = append(parties, partySchema{
			Owner:     string(p.Owner),
			OwnerIcon: p.OwnerIcon,
			Members:   members,
			Occupancy: p.Occupancy,
			Capacity:  p.Capacity,
			Title:     p.Title,
			Game:      p.Game,
			Resources: resourcesSchema{
				VoiceChannel: string(p.Resources.VoiceChannel),
				TextChannel:  string(p.Resources.TextChannel),
				Role:         string(p.Resources.Role),
			},
			Origin: originSchema{
				Channel:      string(p.Origin.Channel),
				Command:      string(p.Origin.Command),
				Announcement: string(p.Origin.Announcement),
			},
			Countdown: p.Countdown,
			CreatedAt: formatTime(p.CreatedAt),
		})
	}

	return groupSchema{
		ID:        string(record.ID),
		OwnerID:   string(record.Admin),
		Version:   record.Version,
		UpdatedAt: formatTime(record.UpdatedAt),
		Parties:   parties,
	}
}

func fromSchema(group groupSchema) domain.GroupRecord {
	parties := make([]domain.Party, 0, len(group.Parties))
	for _, p := range group.Parties {
		party := domain.Party{
			Owner:       domain.UserID(p.Owner),
			OwnerIcon:   p.OwnerIcon,
			Members:     make([]domain.UserID, 0, len(p.Members)),
			MemberNames: make([]string, 0, len(p.Members)),
			Occupancy:   p.Occupancy,
			Capacity:    p.Capacity,
			Title:       p.Title,
			Game:        p.Game,
			Resources: domain.Resources{
				VoiceChannel: domain.ChannelID(p.Resources.VoiceChannel),
				TextChannel:  domain.ChannelID(p.Resources.TextChannel),
				Role:         domain.RoleID(p.Resources.Role),
			},
			Origin: domain.Origin{
				Channel:      domain.ChannelID(p.Origin.Channel),
				Command:      domain.MessageID(p.Origin.Command),
				Announcement: domain.MessageID(p.Origin.Announcement),
			},
			Countdown: p.Countdown,
			CreatedAt: parseTime(p.CreatedAt),
		}
		for _, m := range p.Members {
			party.Members = append(party.Members, domain.UserID(m.ID))
			party.MemberNames = append(party.MemberNames, m.Name)
		}
		parties = append(parties, party)
	}

	return domain.GroupRecord{
		ID:        domain.GroupID(group.ID),
		Admin:     domain.UserID(group.OwnerID),
		Version:   group.Version,
		UpdatedAt: parseTime(group.UpdatedAt),
		Parties:   parties,
	}
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed.UTC()
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.UTC().Format(time.RFC3339Nano)
}
