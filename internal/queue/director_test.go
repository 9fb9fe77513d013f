package queue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyq/internal/job"
	"skyq/internal/journal"
	"skyq/internal/secrets"
	"skyq/internal/sky"
)

// fakeRunner scripts the outcome of one descriptor run. When artifact is
// set, the file is written into destDir so relocation has something to move.
type fakeRunner struct {
	artifact string
	jobID    string
	err      error

	runs []string
}

func (r *fakeRunner) Run(_ context.Context, _ *job.Descriptor, requestFile, destDir string) (string, string, error) {
	r.runs = append(r.runs, requestFile)

	if r.artifact == "" {
		return "", r.jobID, r.err
	}

	path := filepath.Join(destDir, r.artifact)
	if err := os.WriteFile(path, []byte("a,b\n"), 0o644); err != nil {
		return "", r.jobID, err
	}

	return path, r.jobID, r.err
}

type recordingJournal struct {
	entries []journal.Entry
}

func (r *recordingJournal) Event(e journal.Entry) {
	r.entries = append(r.entries, e)
}

func (r *recordingJournal) statuses() []string {
	var out []string
	for _, e := range r.entries {
		out = append(out, e.Status)
	}

	return out
}

func newTestDirector(t *testing.T, runner Runner) (*Director, Dirs, *recordingJournal) {
	t.Helper()

	dirs := Dirs{Base: t.TempDir()}
	require.NoError(t, dirs.EnsureAll())

	rec := &recordingJournal{}
	d := NewDirector(dirs, runner, rec, nil, time.Second, time.Hour, nil)

	return d, dirs, rec
}

func writeDescriptor(t *testing.T, dirs Dirs, name, content string) string {
	t.Helper()

	path := filepath.Join(dirs.Inbound(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

const validDescriptor = `{"id": 42, "product": "RE", "module": "Constituent", "ux_mode": "Synchronous"}`

func TestProcess_SuccessRelocatesDescriptorAndArtifact(t *testing.T) {
	runner := &fakeRunner{artifact: "query_results.csv", jobID: "J1"}
	d, dirs, rec := newTestDirector(t, runner)

	path := writeDescriptor(t, dirs, "export.json", validDescriptor)

	d.Process(context.Background(), path)

	assert.NoFileExists(t, path)
	assert.FileExists(t, filepath.Join(dirs.Completed(), "export.json"))
	assert.FileExists(t, filepath.Join(dirs.Completed(), "query_results.csv"))

	assert.Equal(t, []string{"export.json"}, runner.runs)
	assert.Contains(t, rec.statuses(), "Complete")
}

func TestProcess_FailureRelocatesToFailed(t *testing.T) {
	runner := &fakeRunner{jobID: "J1", err: errors.New("query failed upstream")}
	d, dirs, rec := newTestDirector(t, runner)

	path := writeDescriptor(t, dirs, "export.json", validDescriptor)

	d.Process(context.Background(), path)

	assert.NoFileExists(t, path)
	assert.NoFileExists(t, filepath.Join(dirs.Completed(), "export.json"))
	assert.FileExists(t, filepath.Join(dirs.Failed(), "export.json"))

	var failed *journal.Entry

	for i := range rec.entries {
		if rec.entries[i].Status == "FAILED" {
			failed = &rec.entries[i]
		}
	}

	require.NotNil(t, failed)
	assert.Equal(t, "J1", failed.JobID)
	assert.Contains(t, failed.Detail, "query failed upstream")
}

func TestProcess_PartialArtifactGoesToFailed(t *testing.T) {
	runner := &fakeRunner{artifact: "query_results.csv", jobID: "J1", err: errors.New("stream reset")}
	d, dirs, _ := newTestDirector(t, runner)

	path := writeDescriptor(t, dirs, "export.json", validDescriptor)

	d.Process(context.Background(), path)

	assert.FileExists(t, filepath.Join(dirs.Failed(), "export.json"))
	assert.FileExists(t, filepath.Join(dirs.Failed(), "query_results.csv"))
	assert.NoFileExists(t, filepath.Join(dirs.Completed(), "query_results.csv"))
}

func TestProcess_InvalidJSONFailsWithoutRunning(t *testing.T) {
	runner := &fakeRunner{}
	d, dirs, rec := newTestDirector(t, runner)

	path := writeDescriptor(t, dirs, "broken.json", `{"id": `)

	d.Process(context.Background(), path)

	assert.Empty(t, runner.runs)
	assert.FileExists(t, filepath.Join(dirs.Failed(), "broken.json"))
	assert.Contains(t, rec.statuses(), "FAILED")
}

func TestProcess_StuckDescriptorStaysInboundForRetry(t *testing.T) {
	runner := &fakeRunner{jobID: "J1", err: errors.New("upstream down")}
	d, dirs, _ := newTestDirector(t, runner)

	path := writeDescriptor(t, dirs, "export.json", validDescriptor)

	// With the failed directory gone the terminal move cannot happen, so
	// the descriptor must remain inbound for the next loop iteration.
	require.NoError(t, os.RemoveAll(dirs.Failed()))

	d.Process(context.Background(), path)

	assert.FileExists(t, path)
	assert.Equal(t, path, d.scanInbound())
}

func TestScanInbound(t *testing.T) {
	d, dirs, _ := newTestDirector(t, &fakeRunner{})

	assert.Empty(t, d.scanInbound())

	writeDescriptor(t, dirs, "b.json", "{}")
	writeDescriptor(t, dirs, "a.json", "{}")
	writeDescriptor(t, dirs, ".hidden.json", "{}")
	require.NoError(t, os.WriteFile(filepath.Join(dirs.Inbound(), "notes.txt"), []byte("x"), 0o644))

	// Deterministic order, hidden temp files and non-JSON skipped.
	assert.Equal(t, filepath.Join(dirs.Inbound(), "a.json"), d.scanInbound())
}

func TestWaitForDescriptor_FastPath(t *testing.T) {
	d, dirs, _ := newTestDirector(t, &fakeRunner{})

	path := writeDescriptor(t, dirs, "ready.json", "{}")

	got, err := d.waitForDescriptor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestWaitForDescriptor_PicksUpNewFile(t *testing.T) {
	d, dirs, _ := newTestDirector(t, &fakeRunner{})
	d.scanInterval = 20 * time.Millisecond

	go func() {
		time.Sleep(50 * time.Millisecond)
		writeDescriptor(t, dirs, "late.json", "{}")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := d.waitForDescriptor(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dirs.Inbound(), "late.json"), got)
}

func TestWaitForDescriptor_Canceled(t *testing.T) {
	d, _, _ := newTestDirector(t, &fakeRunner{})
	d.scanInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := d.waitForDescriptor(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_ProcessesThenStopsOnCancel(t *testing.T) {
	runner := &fakeRunner{artifact: "query_results.csv", jobID: "J1"}
	d, dirs, _ := newTestDirector(t, runner)
	d.scanInterval = 10 * time.Millisecond

	writeDescriptor(t, dirs, "export.json", validDescriptor)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)

	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dirs.Completed(), "export.json"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("director did not stop on cancellation")
	}
}

func TestArchiveOld(t *testing.T) {
	d, dirs, _ := newTestDirector(t, &fakeRunner{})

	old := time.Now().Add(-48 * time.Hour)

	oldArtifact := filepath.Join(dirs.Completed(), "stale.csv")
	require.NoError(t, os.WriteFile(oldArtifact, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(oldArtifact, old, old))

	oldDescriptor := filepath.Join(dirs.Completed(), "stale.json")
	require.NoError(t, os.WriteFile(oldDescriptor, []byte("{}"), 0o644))
	require.NoError(t, os.Chtimes(oldDescriptor, old, old))

	fresh := filepath.Join(dirs.Completed(), "fresh.csv")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))

	moved, err := ArchiveOld(dirs, 24*time.Hour, time.Now(), d.logger)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	// Only the old non-descriptor artifact moves, prefixed with its date.
	assert.NoFileExists(t, oldArtifact)
	assert.FileExists(t, filepath.Join(dirs.Archive(), old.Format("2006-01-02")+"_stale.csv"))
	assert.FileExists(t, oldDescriptor)
	assert.FileExists(t, fresh)
}

func TestArchiveOld_CollisionGetsDisambiguator(t *testing.T) {
	d, dirs, _ := newTestDirector(t, &fakeRunner{})

	old := time.Now().Add(-48 * time.Hour)
	dated := old.Format("2006-01-02") + "_stale.csv"

	// An archived file from a previous sweep already holds the dated name.
	require.NoError(t, os.WriteFile(filepath.Join(dirs.Archive(), dated), []byte("earlier"), 0o644))

	src := filepath.Join(dirs.Completed(), "stale.csv")
	require.NoError(t, os.WriteFile(src, []byte("later"), 0o644))
	require.NoError(t, os.Chtimes(src, old, old))

	moved, err := ArchiveOld(dirs, 24*time.Hour, time.Now(), d.logger)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	entries, err := os.ReadDir(dirs.Archive())
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// Neither file was overwritten.
	data, err := os.ReadFile(filepath.Join(dirs.Archive(), dated))
	require.NoError(t, err)
	assert.Equal(t, "earlier", string(data))
}

// scriptedAPI backs an end-to-end run through the real job controller:
// submission returns a job id, two polls report Running, the third reports
// Completed with a signed URL, and the download writes the artifact.
type scriptedAPI struct {
	polls int
}

func (a *scriptedAPI) Request(_ context.Context, method, path string, _ url.Values, _ any) (json.RawMessage, error) {
	if method == "POST" {
		return json.RawMessage(`{"id": "J1", "status": "Running"}`), nil
	}

	a.polls++
	if a.polls < 3 {
		return json.RawMessage(`{"id": "J1", "status": "Running"}`), nil
	}

	return json.RawMessage(`{"id": "J1", "status": "Completed", "sas_uri": "https://signed.example/blob"}`), nil
}

func (a *scriptedAPI) Download(_ context.Context, _, destPath string) (string, error) {
	dest := destPath + ".csv"
	if err := os.WriteFile(dest, []byte("id,name\n1,Alice\n"), 0o644); err != nil {
		return "", err
	}

	return dest, nil
}

// TestProcess_FullStack runs a descriptor through the real controller and
// the real HTTP client against a stub query service: submit, two Running
// polls, Completed with a signed URL, artifact download, relocation.
func TestProcess_FullStack(t *testing.T) {
	var polls int

	mux := http.NewServeMux()

	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("POST /query/queries/executebyid", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "RE", r.URL.Query().Get("product"))
		assert.Equal(t, "Constituent", r.URL.Query().Get("module"))
		assert.Equal(t, "primary-key", r.Header.Get("Bb-Api-Subscription-Key"))

		_, _ = w.Write([]byte(`{"id": "J1", "status": "Running"}`))
	})
	mux.HandleFunc("GET /query/jobs/J1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OnceCompleted", r.URL.Query().Get("include_read_url"))

		polls++
		if polls < 3 {
			_, _ = w.Write([]byte(`{"id": "J1", "status": "Running"}`))
			return
		}

		_, _ = w.Write([]byte(`{"id": "J1", "status": "Completed", "sas_uri": "` + srv.URL + `/artifact"}`))
	})
	mux.HandleFunc("GET /artifact", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("id,name\n1,Alice\n"))
	})

	store := secrets.NewFileStore(filepath.Join(t.TempDir(), "secrets.json"))
	require.NoError(t, store.Set(secrets.KeyAccessToken, "tok-1"))
	require.NoError(t, store.Set(secrets.KeyRefreshToken, "ref-1"))

	creds := sky.Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  sky.DefaultRedirectURL,
		PrimaryKey:   "primary-key",
		SecondaryKey: "secondary-key",
	}

	tokens, err := sky.NewTokenManager(creds, store, nil, "", "", nil)
	require.NoError(t, err)

	client := sky.NewClient(srv.URL, nil, tokens, creds, nil)

	dirs := Dirs{Base: t.TempDir()}
	require.NoError(t, dirs.EnsureAll())

	rec := &recordingJournal{}
	ctrl := job.NewController(client, rec, time.Millisecond, time.Hour, nil)
	d := NewDirector(dirs, ctrl, rec, nil, time.Second, time.Hour, nil)

	path := writeDescriptor(t, dirs, "export.json", validDescriptor)

	d.Process(context.Background(), path)

	assert.Equal(t, 3, polls)
	assert.FileExists(t, filepath.Join(dirs.Completed(), "export.json"))

	artifact := filepath.Join(dirs.Completed(), "query_results.csv")
	require.FileExists(t, artifact)

	data, err := os.ReadFile(artifact)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,Alice\n", string(data))
}

func TestProcess_EndToEndWithController(t *testing.T) {
	dirs := Dirs{Base: t.TempDir()}
	require.NoError(t, dirs.EnsureAll())

	rec := &recordingJournal{}

	ctrl := job.NewController(&scriptedAPI{}, rec, time.Millisecond, time.Hour, nil)

	d := NewDirector(dirs, ctrl, rec, nil, time.Second, time.Hour, nil)

	path := writeDescriptor(t, dirs, "export.json", validDescriptor)

	d.Process(context.Background(), path)

	assert.FileExists(t, filepath.Join(dirs.Completed(), "export.json"))
	assert.FileExists(t, filepath.Join(dirs.Completed(), "query_results.csv"))
	assert.NoFileExists(t, path)

	statuses := rec.statuses()
	assert.Contains(t, statuses, "New request file")
	assert.Contains(t, statuses, "Job created")
	assert.Contains(t, statuses, "File downloaded")
	assert.Contains(t, statuses, "Complete")
}
