package app_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/audiojournal/internal/app"
	"github.com/MrWong99/audiojournal/internal/batch"
	"github.com/MrWong99/audiojournal/internal/config"
	"github.com/MrWong99/audiojournal/internal/entity"
	"github.com/MrWong99/audiojournal/internal/extract"
	"github.com/MrWong99/audiojournal/internal/pipeline"
	embmock "github.com/MrWong99/audiojournal/pkg/provider/embeddings/mock"
	"github.com/MrWong99/audiojournal/pkg/provider/llm"
	llmmock "github.com/MrWong99/audiojournal/pkg/provider/llm/mock"
	"github.com/MrWong99/audiojournal/pkg/provider/stt"
	sttmock "github.com/MrWong99/audiojournal/pkg/provider/stt/mock"
)

// testConfig returns a config whose directories live under t.TempDir and
// whose vectors stay in memory.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Server.ListenAddr = ""
	cfg.Paths.JournalDir = filepath.Join(root, "journal")
	cfg.Paths.EntitiesDir = filepath.Join(root, "entities")
	cfg.Paths.ArchiveDir = filepath.Join(root, "archive")
	cfg.VectorStore.Backend = config.BackendMemory
	cfg.VectorStore.Path = filepath.Join(root, "vectors", "index.db")
	cfg.Watch.Settle = 50 * time.Millisecond
	return cfg
}

// testProviders returns providers whose transcript and improved text are
// fixed.
func testProviders() *app.Providers {
	return &app.Providers{
		STT: &sttmock.Provider{Result: &stt.Result{Text: "met john smith at the market", Language: "en"}},
		LLM: &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
			Content: "# Market\n\nToday I met John Smith at the market.",
		}},
		Embeddings: &embmock.Provider{EmbedResult: []float32{1, 0, 0}, DimensionsValue: 3},
		STTName:    "whisper",
		LLMName:    "ollama",
	}
}

// johnSmith reports "John Smith" whenever the text mentions him.
var johnSmith = extract.Func(func(_ context.Context, text string) ([]entity.Candidate, error) {
	if strings.Contains(text, "John Smith") {
		return []entity.Candidate{{Name: "John Smith"}}, nil
	}
	return nil, nil
})

func newApp(t *testing.T, cfg *config.Config) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, testProviders(), app.WithExtractor(johnSmith))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func writeAudio(t *testing.T, dir, name string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("fake audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// ── New ──────────────────────────────────────────────────────────────────────

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	if _, err := app.New(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for nil providers")
	}
	ps := testProviders()
	ps.Embeddings = nil
	if _, err := app.New(context.Background(), cfg, ps); err == nil {
		t.Fatal("expected error for missing embeddings provider")
	}
}

func TestNew_SQLiteBackend(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.VectorStore.Backend = config.BackendSQLite
	a := newApp(t, cfg)

	if _, err := os.Stat(cfg.VectorStore.Path); err != nil {
		t.Fatalf("sqlite file not created: %v", err)
	}
	if n, err := a.Index().Count(context.Background()); err != nil || n != 0 {
		t.Fatalf("Count = %d, %v; want 0, nil", n, err)
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.VectorStore.Backend = "redis"
	_, err := app.New(context.Background(), cfg, testProviders())
	if err == nil || !strings.Contains(err.Error(), "redis") {
		t.Fatalf("New error = %v, want unknown backend", err)
	}
}

func TestNew_NERWithoutModelFails(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Extractor.Kind = config.ExtractorNER
	cfg.Extractor.ModelPath = filepath.Join(t.TempDir(), "missing-model")
	if _, err := app.New(context.Background(), cfg, testProviders()); err == nil {
		t.Fatal("expected error for missing NER model")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.VectorStore.Backend = config.BackendSQLite
	a, err := app.New(context.Background(), cfg, testProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

// ── Process / Search ─────────────────────────────────────────────────────────

func TestProcess_WritesEntryPageAndVector(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a := newApp(t, cfg)
	ctx := context.Background()
	audio := writeAudio(t, t.TempDir(), "memo.m4a")

	res, err := a.Process(ctx, pipeline.Request{AudioPath: audio, Date: "2024-01-01"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.State != pipeline.StateDone {
		t.Fatalf("State = %v, want %v", res.State, pipeline.StateDone)
	}

	entry, err := a.Journal().Load(ctx, "2024-01-01")
	if err != nil {
		t.Fatalf("Load entry: %v", err)
	}
	if !strings.Contains(entry.Body, "[[John_Smith|John Smith]]") {
		t.Errorf("entry body not linked:\n%s", entry.Body)
	}

	e, err := a.Entities().Get(ctx, "John_Smith")
	if err != nil {
		t.Fatalf("Get entity: %v", err)
	}
	if len(e.Mentions) != 1 || e.Mentions[0].Date != "2024-01-01" {
		t.Errorf("mentions = %+v, want one on 2024-01-01", e.Mentions)
	}

	results, err := a.Search(ctx, "market", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Date != "2024-01-01" {
		t.Errorf("Search = %+v, want the 2024-01-01 entry", results)
	}

	if _, err := os.Stat(filepath.Join(cfg.Paths.ArchiveDir, "processed", "memo.m4a")); err != nil {
		t.Errorf("recording not archived: %v", err)
	}
}

// ── Batch ────────────────────────────────────────────────────────────────────

func TestBatch_Directory(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a := newApp(t, cfg)
	ctx := context.Background()
	inbox := t.TempDir()
	writeAudio(t, inbox, "2024-01-01 morning.wav")
	writeAudio(t, inbox, "2024-01-02.mp3")
	writeAudio(t, inbox, "notes.txt")

	var seen int
	sum, err := a.Batch(ctx, inbox, func(batch.Outcome) { seen++ })
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(sum.Outcomes) != 2 || sum.Failed() != 0 {
		t.Fatalf("outcomes = %d, failed = %d; want 2, 0 (err %v)", len(sum.Outcomes), sum.Failed(), sum.Err())
	}
	if seen != 2 {
		t.Errorf("progress called %d times, want 2", seen)
	}

	dates, err := a.Journal().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := []string{"2024-01-01", "2024-01-02"}; !slices.Equal(dates, want) {
		t.Errorf("dates = %v, want %v", dates, want)
	}

	e, err := a.Entities().Get(ctx, "John_Smith")
	if err != nil {
		t.Fatalf("Get entity: %v", err)
	}
	if len(e.Mentions) != 2 {
		t.Errorf("mentions = %d, want 2", len(e.Mentions))
	}
}

func TestBatch_SkipsArchiveInsideSource(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	recordings := t.TempDir()
	cfg.Paths.ArchiveDir = recordings
	a := newApp(t, cfg)
	ctx := context.Background()

	memo := writeAudio(t, recordings, "memo.wav")
	recorded := time.Date(2024, 1, 1, 8, 0, 0, 0, time.Local)
	if err := os.Chtimes(memo, recorded, recorded); err != nil {
		t.Fatal(err)
	}

	for run := 1; run <= 2; run++ {
		sum, err := a.Batch(ctx, recordings, nil)
		if err != nil {
			t.Fatalf("run %d: Batch: %v", run, err)
		}
		if len(sum.Outcomes) != 1 || sum.Outcomes[0].Item.Path != memo {
			t.Fatalf("run %d: outcomes = %+v, want only %s", run, sum.Outcomes, memo)
		}
	}
	if _, err := os.Stat(filepath.Join(recordings, "processed", "memo.wav")); err != nil {
		t.Fatalf("archived copy: %v", err)
	}

	dates, err := a.Journal().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := []string{"2024-01-01"}; !slices.Equal(dates, want) {
		t.Errorf("dates = %v, want %v", dates, want)
	}
}

func TestBatch_Empty(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(t))
	sum, err := a.Batch(context.Background(), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(sum.Outcomes) != 0 {
		t.Errorf("outcomes = %d, want 0", len(sum.Outcomes))
	}
}

func TestBatch_MissingSource(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(t))
	_, err := a.Batch(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)
	if err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestBatch_TranscriptionFailureCounted(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	ps := testProviders()
	ps.STT = &sttmock.Provider{TranscribeErr: errors.New("server down")}
	a, err := app.New(context.Background(), cfg, ps, app.WithExtractor(johnSmith))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	inbox := t.TempDir()
	writeAudio(t, inbox, "2024-03-01.wav")
	sum, err := a.Batch(context.Background(), inbox, nil)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if sum.Failed() != 1 || !errors.Is(sum.Err(), pipeline.ErrTranscription) {
		t.Fatalf("failed = %d, err = %v; want 1 transcription failure", sum.Failed(), sum.Err())
	}
	if dates, _ := a.Journal().List(context.Background()); len(dates) != 0 {
		t.Errorf("journal has entries %v after failed transcription", dates)
	}
}

// ── HTTP ─────────────────────────────────────────────────────────────────────

func TestHandler_Endpoints(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(t))
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

// ── Watch ────────────────────────────────────────────────────────────────────

func TestWatch_ProcessesArrivals(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a := newApp(t, cfg)
	inbox := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Watch(ctx, inbox) }()

	time.Sleep(50 * time.Millisecond)
	writeAudio(t, inbox, "2024-05-06.ogg")

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := a.Journal().Load(context.Background(), "2024-05-06"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("entry for 2024-05-06 not written")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}

func TestWatch_NoInbox(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Watch.InboxDir = ""
	a := newApp(t, cfg)
	if err := a.Watch(context.Background(), ""); err == nil {
		t.Fatal("expected error without inbox directory")
	}
}
