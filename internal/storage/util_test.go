package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/pendergraft/deployer/internal/config"
)

func TestGenerateID(t *testing.T) {
	a, b := generateID(), generateID()
	if len(a) != 36 || strings.Count(a, "-") != 4 {
		t.Errorf("generateID() = %q, want a UUID", a)
	}
	if a == b {
		t.Error("generateID() returned the same ID twice")
	}
}

func TestListQuery(t *testing.T) {
	cursor := encodeCursor("2025-01-02T03:04:05.000Z", "b1")
	query, args, limit, err := listQuery("id", DeploymentFilter{ChainID: "1114", Status: "success"}, PaginationParams{Limit: 5, Cursor: cursor},
		func(n int) string { return "$" + strconv.Itoa(n) })
	if err != nil {
		t.Fatalf("listQuery() error = %v", err)
	}

	want := "SELECT id FROM deployments WHERE chain_id = $1 AND status = $2 AND " +
		"(deployed_at < $3 OR (deployed_at = $4 AND id < $5)) ORDER BY deployed_at DESC, id DESC LIMIT $6"
	if query != want {
		t.Errorf("listQuery() =\n%s\nwant\n%s", query, want)
	}
	wantArgs := []any{"1114", "success", "2025-01-02T03:04:05.000Z", "2025-01-02T03:04:05.000Z", "b1", 6}
	if fmt.Sprint(args) != fmt.Sprint(wantArgs) {
		t.Errorf("listQuery() args = %v, want %v", args, wantArgs)
	}
	if limit != 5 {
		t.Errorf("listQuery() limit = %d, want 5", limit)
	}
}

func TestCursor(t *testing.T) {
	deployedAt, id, err := decodeCursor(encodeCursor("2025-01-02T03:04:05.000Z", "a-b-c"))
	if err != nil {
		t.Fatalf("decodeCursor() error = %v", err)
	}
	if deployedAt != "2025-01-02T03:04:05.000Z" || id != "a-b-c" {
		t.Errorf("decodeCursor() = (%q, %q)", deployedAt, id)
	}

	for _, bad := range []string{"not base64!", encodeCursor("", "id"), "MjAyNQ"} {
		if _, _, err := decodeCursor(bad); !errors.Is(err, ErrInvalidCursor) {
			t.Errorf("decodeCursor(%q) error = %v, want ErrInvalidCursor", bad, err)
		}
	}
}

func TestNew(t *testing.T) {
	if _, err := New(config.StorageConfig{Type: "none"}, nil); !errors.Is(err, ErrDisabled) {
		t.Errorf("New(none) error = %v, want ErrDisabled", err)
	}
	if _, err := New(config.StorageConfig{Type: "mongo"}, nil); err == nil {
		t.Error("New(mongo) error = nil, want error")
	}
}
