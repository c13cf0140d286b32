package service

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/mediarise/rubybot/internal/catalog"
	"github.com/mediarise/rubybot/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.json")
	content := `{
		"default_model": "google/gemini-2.5-flash-image-preview",
		"models": [
			{"name": "google/gemini-2.5-flash-image-preview", "display_name": "Nano Banana", "price_rubies": 2, "enabled": true},
			{"name": "openai/dall-e-3", "display_name": "DALL-E 3", "price_rubies": 4, "enabled": true},
			{"name": "legacy/model", "display_name": "Legacy", "price_rubies": 1, "enabled": false}
		]
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	cat, err := catalog.Load(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return cat
}

type fakeBackend struct {
	result    string
	err       error
	fetched   map[string][]byte
	gotPrompt string
	gotModel  string
	gotImages [][]byte
}

func (f *fakeBackend) Generate(_ context.Context, prompt, model string, images [][]byte) (string, error) {
	f.gotPrompt, f.gotModel, f.gotImages = prompt, model, images
	return f.result, f.err
}

func (f *fakeBackend) Fetch(_ context.Context, url string) ([]byte, error) {
	data, ok := f.fetched[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

type fakeLedger struct {
	balance    int
	deductOK   bool
	deductErr  error
	deducted   int
	balanceErr error
}

func (f *fakeLedger) Rubies(context.Context, int64) (int, error) {
	return f.balance, f.balanceErr
}

func (f *fakeLedger) Deduct(_ context.Context, _ int64, amount int) (bool, error) {
	if f.deductErr != nil {
		return false, f.deductErr
	}
	if f.deductOK {
		f.deducted += amount
	}
	return f.deductOK, nil
}

type fakeGenLog struct {
	entries int
	lastURL string
}

func (f *fakeGenLog) Log(_ context.Context, _ int64, _ string, _ int, resultURL string) error {
	f.entries++
	f.lastURL = resultURL
	return nil
}

type fakeArchiver struct {
	url string
	err error
}

func (f *fakeArchiver) Archive(context.Context, int64, []byte, string) (string, error) {
	return f.url, f.err
}

func newGenerationService(backend *fakeBackend, ledger *fakeLedger, genLog *fakeGenLog, archiver ImageArchiver, cat *catalog.Catalog) *GenerationService {
	return NewGenerationService(backend, ledger, genLog, archiver, cat, metrics.New(), discardLogger())
}

func pngDataURL(t *testing.T) (string, []byte) {
	t.Helper()
	raw := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw), raw
}

func TestGenerateChargesDefaultModelPrice(t *testing.T) {
	dataURL, raw := pngDataURL(t)
	backend := &fakeBackend{result: dataURL}
	ledger := &fakeLedger{balance: 4, deductOK: true}
	genLog := &fakeGenLog{}

	svc := newGenerationService(backend, ledger, genLog, nil, testCatalog(t))
	result, err := svc.Generate(context.Background(), 42, "нарисуй кота", "", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(result.Data) != string(raw) {
		t.Error("result bytes do not match decoded image")
	}
	if result.Cost != 2 || result.Remaining != 2 {
		t.Errorf("cost=%d remaining=%d, want 2/2", result.Cost, result.Remaining)
	}
	if ledger.deducted != 2 {
		t.Errorf("deducted = %d, want 2", ledger.deducted)
	}
	if backend.gotModel != "google/gemini-2.5-flash-image-preview" {
		t.Errorf("model = %q", backend.gotModel)
	}
	if genLog.entries != 1 {
		t.Errorf("generation log entries = %d", genLog.entries)
	}
}

func TestGenerateUsesSelectedModelPrice(t *testing.T) {
	dataURL, _ := pngDataURL(t)
	backend := &fakeBackend{result: dataURL}
	ledger := &fakeLedger{balance: 10, deductOK: true}

	svc := newGenerationService(backend, ledger, &fakeGenLog{}, nil, testCatalog(t))
	result, err := svc.Generate(context.Background(), 42, "city at night", "openai/dall-e-3", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Cost != 4 || result.Remaining != 6 {
		t.Errorf("cost=%d remaining=%d, want 4/6", result.Cost, result.Remaining)
	}
}

func TestGenerateStaleSelectionFallsBackToDefault(t *testing.T) {
	// A selection made before the catalog changed (model removed or
	// disabled) must not error: the default model takes over silently.
	for _, stale := range []string{"removed/model", "legacy/model"} {
		dataURL, _ := pngDataURL(t)
		backend := &fakeBackend{result: dataURL}
		ledger := &fakeLedger{balance: 4, deductOK: true}

		svc := newGenerationService(backend, ledger, &fakeGenLog{}, nil, testCatalog(t))
		result, err := svc.Generate(context.Background(), 42, "x", stale, nil)
		if err != nil {
			t.Fatalf("selection %q: Generate: %v", stale, err)
		}
		if backend.gotModel != "google/gemini-2.5-flash-image-preview" {
			t.Errorf("selection %q: backend model = %q, want catalog default", stale, backend.gotModel)
		}
		if result.Cost != 2 {
			t.Errorf("selection %q: cost = %d, want default model price 2", stale, result.Cost)
		}
	}
}

func TestGenerateInsufficientBalanceNeverCallsBackend(t *testing.T) {
	backend := &fakeBackend{result: "data:image/png;base64,AA=="}
	ledger := &fakeLedger{balance: 1, deductOK: true}

	svc := newGenerationService(backend, ledger, &fakeGenLog{}, nil, testCatalog(t))
	_, err := svc.Generate(context.Background(), 42, "x", "", nil)
	if !errors.Is(err, ErrInsufficientRubies) {
		t.Fatalf("err = %v, want ErrInsufficientRubies", err)
	}
	if backend.gotPrompt != "" {
		t.Error("backend was called despite insufficient balance")
	}
}

func TestGenerateBackendFailureDoesNotCharge(t *testing.T) {
	backend := &fakeBackend{err: errors.New("upstream 502")}
	ledger := &fakeLedger{balance: 5, deductOK: true}

	svc := newGenerationService(backend, ledger, &fakeGenLog{}, nil, testCatalog(t))
	_, err := svc.Generate(context.Background(), 42, "x", "", nil)
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	if ledger.deducted != 0 {
		t.Errorf("deducted = %d, want 0", ledger.deducted)
	}
}

func TestGenerateFetchesRemoteImageURL(t *testing.T) {
	raw := []byte{0xff, 0xd8, 0xff, 0xe0, 1, 2, 3}
	backend := &fakeBackend{
		result:  "https://cdn.example.com/out.jpg",
		fetched: map[string][]byte{"https://cdn.example.com/out.jpg": raw},
	}
	ledger := &fakeLedger{balance: 5, deductOK: true}

	svc := newGenerationService(backend, ledger, &fakeGenLog{}, nil, testCatalog(t))
	result, err := svc.Generate(context.Background(), 42, "x", "", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(result.Data) != string(raw) {
		t.Error("fetched bytes do not match")
	}
}

func TestGenerateUnfetchableImageDoesNotCharge(t *testing.T) {
	backend := &fakeBackend{result: "https://cdn.example.com/gone.jpg"}
	ledger := &fakeLedger{balance: 5, deductOK: true}

	svc := newGenerationService(backend, ledger, &fakeGenLog{}, nil, testCatalog(t))
	_, err := svc.Generate(context.Background(), 42, "x", "", nil)
	if !errors.Is(err, ErrImageUnavailable) {
		t.Fatalf("err = %v, want ErrImageUnavailable", err)
	}
	if ledger.deducted != 0 {
		t.Errorf("deducted = %d, want 0", ledger.deducted)
	}
}

func TestGenerateDeductRaceReportsInsufficient(t *testing.T) {
	dataURL, _ := pngDataURL(t)
	backend := &fakeBackend{result: dataURL}
	ledger := &fakeLedger{balance: 5, deductOK: false}

	svc := newGenerationService(backend, ledger, &fakeGenLog{}, nil, testCatalog(t))
	if _, err := svc.Generate(context.Background(), 42, "x", "", nil); !errors.Is(err, ErrInsufficientRubies) {
		t.Fatalf("err = %v, want ErrInsufficientRubies", err)
	}
}

func TestGeneratePassesConditioningImages(t *testing.T) {
	dataURL, _ := pngDataURL(t)
	backend := &fakeBackend{result: dataURL}
	ledger := &fakeLedger{balance: 5, deductOK: true}

	images := [][]byte{{1, 2}, {3, 4}}
	svc := newGenerationService(backend, ledger, &fakeGenLog{}, nil, testCatalog(t))
	if _, err := svc.Generate(context.Background(), 42, "[Multi-Image] collage", "", images); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(backend.gotImages) != 2 {
		t.Errorf("backend saw %d conditioning images, want 2", len(backend.gotImages))
	}
}

func TestGenerateArchiveFailureIsNotFatal(t *testing.T) {
	dataURL, _ := pngDataURL(t)
	backend := &fakeBackend{result: dataURL}
	ledger := &fakeLedger{balance: 5, deductOK: true}
	genLog := &fakeGenLog{}

	svc := newGenerationService(backend, ledger, genLog, &fakeArchiver{err: errors.New("bucket down")}, testCatalog(t))
	result, err := svc.Generate(context.Background(), 42, "x", "", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.ArchiveURL != "" {
		t.Errorf("archive url = %q, want empty", result.ArchiveURL)
	}
}

func TestGenerateRecordsArchiveURL(t *testing.T) {
	dataURL, _ := pngDataURL(t)
	backend := &fakeBackend{result: dataURL}
	ledger := &fakeLedger{balance: 5, deductOK: true}
	genLog := &fakeGenLog{}

	svc := newGenerationService(backend, ledger, genLog, &fakeArchiver{url: "https://cdn/gen/1.png"}, testCatalog(t))
	result, err := svc.Generate(context.Background(), 42, "x", "", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.ArchiveURL != "https://cdn/gen/1.png" {
		t.Errorf("archive url = %q", result.ArchiveURL)
	}
	if genLog.lastURL != "https://cdn/gen/1.png" {
		t.Errorf("logged url = %q", genLog.lastURL)
	}
}

func TestPrice(t *testing.T) {
	svc := newGenerationService(&fakeBackend{}, &fakeLedger{}, &fakeGenLog{}, nil, testCatalog(t))
	if cost, ok := svc.Price(""); !ok || cost != 2 {
		t.Errorf("default price = %d/%v, want 2/true", cost, ok)
	}
	if cost, ok := svc.Price("openai/dall-e-3"); !ok || cost != 4 {
		t.Errorf("selected price = %d/%v, want 4/true", cost, ok)
	}
	if cost, ok := svc.Price("legacy/model"); !ok || cost != 2 {
		t.Errorf("stale selection price = %d/%v, want default's 2/true", cost, ok)
	}
}
