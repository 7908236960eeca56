package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/sailpolar/polar-service/internal/domain"
	"github.com/sailpolar/polar-service/internal/polar"
)

// boatIDRe limits boat identifiers to something that is safe as a key
// segment and a filename.
var boatIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// polarKeyRe extracts the version number from a stored polar key.
var polarKeyRe = regexp.MustCompile(`/polars/v(\d+)\.pol$`)

// ValidBoatID reports whether id can be used as a boat identifier.
func ValidBoatID(id string) bool { return boatIDRe.MatchString(id) }

// Library organizes a boat's raw logs and versioned polars on top of an
// ObjectStore. Polar versions are immutable; each generation writes the
// next version and never touches earlier ones.
type Library struct {
	store ObjectStore
}

// NewLibrary wraps an ObjectStore with the boats/{boat}/... layout.
func NewLibrary(store ObjectStore) *Library {
	return &Library{store: store}
}

// AddLog stores an uploaded log under a collision-free key and returns it.
func (l *Library) AddLog(ctx context.Context, boat, filename string, r io.Reader) (string, error) {
	if !ValidBoatID(boat) {
		return "", fmt.Errorf("%w: %q", ErrInvalidBoat, boat)
	}
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "", fmt.Errorf("invalid log filename %q", filename)
	}
	key := fmt.Sprintf("boats/%s/logs/%s-%s", boat, uuid.NewString()[:8], base)
	if err := l.store.Put(ctx, key, r); err != nil {
		return "", err
	}
	return key, nil
}

// ListLogs returns the stored log keys for a boat, oldest key first.
func (l *Library) ListLogs(ctx context.Context, boat string) ([]string, error) {
	if !ValidBoatID(boat) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBoat, boat)
	}
	return l.store.List(ctx, fmt.Sprintf("boats/%s/logs/", boat))
}

// OpenLog opens a stored log by key.
func (l *Library) OpenLog(ctx context.Context, key string) (io.ReadCloser, error) {
	return l.store.Get(ctx, key)
}

// SavePolar writes a new polar version: the Expedition text and a JSON
// sidecar carrying the summary and the full table.
func (l *Library) SavePolar(ctx context.Context, boat string, version int, t polar.Table, summary domain.Summary) error {
	if !ValidBoatID(boat) {
		return fmt.Errorf("%w: %q", ErrInvalidBoat, boat)
	}

	var buf bytes.Buffer
	if err := polar.WriteExpedition(&buf, t, boat); err != nil {
		return fmt.Errorf("render polar: %w", err)
	}
	if err := l.store.Put(ctx, polarKey(boat, version), &buf); err != nil {
		return err
	}

	sidecar := struct {
		Summary domain.Summary `json:"summary"`
		Table   polar.Table    `json:"table"`
	}{Summary: summary, Table: t}

	data, err := json.Marshal(sidecar)
	if err != nil {
		return fmt.Errorf("marshal polar sidecar: %w", err)
	}
	return l.store.Put(ctx, summaryKey(boat, version), bytes.NewReader(data))
}

// LatestPolar loads the highest stored polar version for a boat. A boat
// with no polars yet returns a zero table, version 0, and no error.
func (l *Library) LatestPolar(ctx context.Context, boat string) (polar.Table, int, error) {
	versions, err := l.polarVersions(ctx, boat)
	if err != nil || len(versions) == 0 {
		return polar.Table{}, 0, err
	}
	version := versions[len(versions)-1]

	rc, err := l.store.Get(ctx, polarKey(boat, version))
	if err != nil {
		return polar.Table{}, 0, err
	}
	defer rc.Close()

	t, err := polar.ReadExpedition(rc)
	if err != nil {
		return polar.Table{}, 0, fmt.Errorf("load polar v%d: %w", version, err)
	}
	t.Version = version
	return t, version, nil
}

// ListPolars returns the stored generation summaries, newest first.
func (l *Library) ListPolars(ctx context.Context, boat string) ([]domain.Summary, error) {
	versions, err := l.polarVersions(ctx, boat)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.Summary, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		s, err := l.loadSummary(ctx, boat, versions[i])
		switch {
		case errors.Is(err, ErrNotFound):
			// A save interrupted between the .pol and its sidecar leaves a
			// version without diagnostics; the polar itself still serves.
			s = domain.Summary{Boat: boat, Version: versions[i]}
		case err != nil:
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// OpenPolar opens the Expedition text of one polar version.
func (l *Library) OpenPolar(ctx context.Context, boat string, version int) (io.ReadCloser, error) {
	if !ValidBoatID(boat) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBoat, boat)
	}
	return l.store.Get(ctx, polarKey(boat, version))
}

// CheckReadiness verifies the backing store answers a listing.
func (l *Library) CheckReadiness(ctx context.Context) error {
	_, err := l.store.List(ctx, "boats/")
	return err
}

func (l *Library) polarVersions(ctx context.Context, boat string) ([]int, error) {
	if !ValidBoatID(boat) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBoat, boat)
	}
	keys, err := l.store.List(ctx, fmt.Sprintf("boats/%s/polars/", boat))
	if err != nil {
		return nil, err
	}

	var versions []int
	for _, key := range keys {
		m := polarKeyRe.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions, nil
}

func (l *Library) loadSummary(ctx context.Context, boat string, version int) (domain.Summary, error) {
	rc, err := l.store.Get(ctx, summaryKey(boat, version))
	if err != nil {
		return domain.Summary{}, err
	}
	defer rc.Close()

	var sidecar struct {
		Summary domain.Summary `json:"summary"`
	}
	if err := json.NewDecoder(rc).Decode(&sidecar); err != nil {
		return domain.Summary{}, fmt.Errorf("decode polar sidecar v%d: %w", version, err)
	}
	return sidecar.Summary, nil
}

func polarKey(boat string, version int) string {
	return fmt.Sprintf("boats/%s/polars/v%04d.pol", boat, version)
}

func summaryKey(boat string, version int) string {
	return fmt.Sprintf("boats/%s/polars/v%04d.json", boat, version)
}
