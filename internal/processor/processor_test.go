package processor

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"ratingpart/internal/config"
	"ratingpart/internal/handlers"
	"ratingpart/internal/partition"
	"ratingpart/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.Path = filepath.Join(t.TempDir(), "ratings.db")
	cfg.Server.Addr = "127.0.0.1:0"
	require.NoError(t, cfg.Validate())
	return cfg
}

// seed loads a small ratings table and range-partitions it into n partitions.
func seed(t *testing.T, cfg *config.Config, n int) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ratings.dat")
	data := "1::122::5::838985046\n1::185::4.5::838983525\n2::231::0::838983392\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	ctx := context.Background()
	db, err := storage.Open(ctx, cfg.Database)
	require.NoError(t, err)
	defer db.Close()

	store, err := partition.NewStore(db, partition.NamesFromConfig(cfg.Partitioning))
	require.NoError(t, err)

	_, err = store.LoadRatings(ctx, cfg.Partitioning.RatingsTable, path)
	require.NoError(t, err)
	require.NoError(t, store.RangePartition(ctx, cfg.Partitioning.RatingsTable, n))
}

func startProcessor(t *testing.T, cfg *config.Config) (*Processor, context.CancelFunc, <-chan error) {
	t.Helper()

	p := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	select {
	case <-p.Ready():
	case err := <-errCh:
		cancel()
		t.Fatalf("Run returned before ready: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("processor did not become ready")
	}
	return p, cancel, errCh
}

func TestProcessorServesRatings(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg, 2)

	p, cancel, errCh := startProcessor(t, cfg)
	base := "http://" + p.Addr()

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := `{"userid":7,"movieid":42,"rating":3.5,"scheme":"range"}`
	resp, err = http.Post(base+"/ratings", "application/json", strings.NewReader(body))
	require.NoError(t, err)

	var out handlers.RatingsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, out.Success)
	require.Equal(t, 1, out.Results[0].Partition)
	require.Equal(t, "range_part1", out.Results[0].Table)

	resp, err = http.Get(base + "/partitions")
	require.NoError(t, err)

	var stats partition.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	require.Equal(t, int64(4), stats.Rows)
	require.Equal(t, []int64{1, 3}, stats.Range)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("processor did not stop")
	}
}

func TestProcessorRoundRobinWithoutPartitions(t *testing.T) {
	cfg := testConfig(t)
	seed(t, cfg, 2)

	p, cancel, errCh := startProcessor(t, cfg)
	defer func() {
		cancel()
		<-errCh
	}()

	body := `[{"userid":7,"movieid":42,"rating":3.5,"scheme":"roundrobin"}]`
	resp, err := http.Post("http://"+p.Addr()+"/ratings", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestProcessorFailsOnBadStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = filepath.Join(t.TempDir(), "missing", "dir", "ratings.db")

	err := New(cfg).Run(context.Background())
	require.Error(t, err)
}
