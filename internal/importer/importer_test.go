package importer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"chatdb/internal/analyze"
	"chatdb/internal/plan"
	"chatdb/internal/storage"
)

// fakeRel records every EnsureTarget and InsertBatch call.
type fakeRel struct {
	mu        sync.Mutex
	ensured   []*plan.SchemaPlan
	batches   [][][]any
	columns   []string
	calls     int
	insertErr error
	// failOn fails specific InsertBatch calls by 1-based call number.
	failOn map[int]error
}

func (f *fakeRel) Kind() string             { return "fakerel" }
func (f *fakeRel) Class() plan.BackendClass { return plan.Relational }

func (f *fakeRel) EnsureTarget(_ context.Context, p *plan.SchemaPlan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, p)
	return nil
}

func (f *fakeRel) ListTargets(context.Context) ([]string, error) { return nil, nil }
func (f *fakeRel) SampleData(context.Context, string, int) (*storage.ResultSet, error) {
	return nil, nil
}
func (f *fakeRel) Close() {}

func (f *fakeRel) InsertBatch(_ context.Context, _ string, columns []string, rows [][]any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.failOn[f.calls]; ok {
		return 0, err
	}
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.columns = columns
	cp := make([][]any, len(rows))
	copy(cp, rows)
	f.batches = append(f.batches, cp)
	return int64(len(rows)), nil
}

func (f *fakeRel) Query(context.Context, string) (*storage.ResultSet, error) { return nil, nil }

// fakeDoc records inserted documents.
type fakeDoc struct {
	mu      sync.Mutex
	ensured int
	batches [][]map[string]any
}

func (f *fakeDoc) Kind() string             { return "fakedoc" }
func (f *fakeDoc) Class() plan.BackendClass { return plan.Document }

func (f *fakeDoc) EnsureTarget(context.Context, *plan.SchemaPlan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured++
	return nil
}

func (f *fakeDoc) ListTargets(context.Context) ([]string, error) { return nil, nil }
func (f *fakeDoc) SampleData(context.Context, string, int) (*storage.ResultSet, error) {
	return nil, nil
}
func (f *fakeDoc) Close() {}

func (f *fakeDoc) InsertDocuments(_ context.Context, _ string, docs []map[string]any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]map[string]any, len(docs))
	copy(cp, docs)
	f.batches = append(f.batches, cp)
	return int64(len(docs)), nil
}

func (f *fakeDoc) Aggregate(context.Context, string, []bson.D) (*storage.ResultSet, error) {
	return nil, nil
}

var (
	currentRel *fakeRel
	currentDoc *fakeDoc
)

func init() {
	storage.Register("imprel", func(context.Context, storage.Config) (storage.Repository, error) {
		return currentRel, nil
	})
	storage.Register("impdoc", func(context.Context, storage.Config) (storage.Repository, error) {
		return currentDoc, nil
	})
}

func connect(t *testing.T, kind string) *storage.Conn {
	t.Helper()
	conn, err := storage.NewManager().Connect(context.Background(), storage.Config{Kind: kind, DSN: "fake://"})
	if err != nil {
		t.Fatalf("Connect(%q) err=%v", kind, err)
	}
	return conn
}

func ordersReport(t *testing.T) (*analyze.Report, *plan.SchemaPlan) {
	t.Helper()
	rep := &analyze.Report{
		Fields: []string{"order_id", "order_date", "amount", "active"},
		Rows: [][]string{
			{"1", "2024-01-02", "10.50", "true"},
			{"2", "2024-01-03", "20.00", "false"},
			{"3", "2024-01-04", "not-a-number", "yes"},
		},
		RecordCount: 3,
	}
	rep.Profiles = []analyze.FieldProfile{
		{Name: "order_id", SourceType: analyze.TypeInteger},
		{Name: "order_date", SourceType: analyze.TypeDate, DateLayout: "2006-01-02"},
		{Name: "amount", SourceType: analyze.TypeFloat},
		{Name: "active", SourceType: analyze.TypeBoolean},
	}
	p, err := plan.Build("orders", plan.Relational, rep.Profiles, nil)
	if err != nil {
		t.Fatalf("plan.Build() err=%v", err)
	}
	return rep, p
}

func TestRun_RelationalCoercionAndBatching(t *testing.T) {
	currentRel = &fakeRel{}
	conn := connect(t, "imprel")
	rep, p := ordersReport(t)

	eng := NewEngine(zap.NewNop(), nil)
	eng.SetBatchSize(2)

	res, err := eng.Run(context.Background(), conn, rep, p)
	if err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if res.RecordCount != 3 {
		t.Fatalf("RecordCount=%d, want 3", res.RecordCount)
	}
	if len(currentRel.ensured) != 1 {
		t.Fatalf("EnsureTarget calls=%d, want 1", len(currentRel.ensured))
	}
	if len(currentRel.batches) != 2 {
		t.Fatalf("batches=%d, want 2 (sizes 2+1)", len(currentRel.batches))
	}

	first := currentRel.batches[0][0]
	if v, ok := first[0].(int64); !ok || v != 1 {
		t.Fatalf("order_id=%v (%T), want int64(1)", first[0], first[0])
	}
	if d, ok := first[1].(time.Time); !ok || d.Format("2006-01-02") != "2024-01-02" {
		t.Fatalf("order_date=%v, want 2024-01-02", first[1])
	}
	if f, ok := first[2].(float64); !ok || f != 10.50 {
		t.Fatalf("amount=%v, want 10.5", first[2])
	}
	if b, ok := first[3].(bool); !ok || !b {
		t.Fatalf("active=%v, want true", first[3])
	}

	// Row 3's unparseable amount loads as NULL with one warning.
	if res.WarningCount != 1 || len(res.Warnings) != 1 {
		t.Fatalf("warnings=%d itemized=%d, want 1/1: %v", res.WarningCount, len(res.Warnings), res.Warnings)
	}
	bad := currentRel.batches[1][0]
	if bad[2] != nil {
		t.Fatalf("unparseable amount=%v, want nil", bad[2])
	}
}

func TestRun_EmptyCellsAreNull(t *testing.T) {
	currentRel = &fakeRel{}
	conn := connect(t, "imprel")
	rep, p := ordersReport(t)
	rep.Rows = [][]string{{"1", "", "", ""}}

	res, err := NewEngine(zap.NewNop(), nil).Run(context.Background(), conn, rep, p)
	if err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if res.WarningCount != 0 {
		t.Fatalf("empty cells produced warnings: %v", res.Warnings)
	}
	row := currentRel.batches[0][0]
	if row[1] != nil || row[2] != nil || row[3] != nil {
		t.Fatalf("empty cells not null: %v", row)
	}
}

func TestRun_FailedBatchIsSkipped(t *testing.T) {
	currentRel = &fakeRel{failOn: map[int]error{2: errors.New("value too long")}}
	conn := connect(t, "imprel")
	rep, p := ordersReport(t)
	rep.Rows = [][]string{
		{"1", "2024-01-01", "10.0", "true"},
		{"2", "2024-01-02", "20.0", "true"},
		{"3", "2024-01-03", "30.0", "true"},
		{"4", "2024-01-04", "40.0", "true"},
		{"5", "2024-01-05", "50.0", "true"},
		{"6", "2024-01-06", "60.0", "true"},
	}
	rep.RecordCount = 6

	eng := NewEngine(zap.NewNop(), nil)
	eng.SetBatchSize(2)

	res, err := eng.Run(context.Background(), conn, rep, p)
	if err != nil {
		t.Fatalf("Run() err=%v, want the load to continue past the failed batch", err)
	}
	if res.RecordCount != 4 {
		t.Fatalf("RecordCount=%d, want 4 (batches 1 and 3)", res.RecordCount)
	}
	if res.SkippedCount != 2 {
		t.Fatalf("SkippedCount=%d, want 2", res.SkippedCount)
	}
	if res.WarningCount != 1 || len(res.Warnings) != 1 {
		t.Fatalf("warnings=%d itemized=%d: %v", res.WarningCount, len(res.Warnings), res.Warnings)
	}
	if len(currentRel.batches) != 2 {
		t.Fatalf("successful batches=%d, want 2", len(currentRel.batches))
	}
	// Batch 3 still went in after batch 2 failed.
	if v := currentRel.batches[1][0][0].(int64); v != 5 {
		t.Fatalf("first row of the post-failure batch=%v, want order_id 5", v)
	}
}

func TestRun_AllBatchesFailingIsImportError(t *testing.T) {
	currentRel = &fakeRel{insertErr: errors.New("column type mismatch")}
	conn := connect(t, "imprel")
	rep, p := ordersReport(t)

	_, err := NewEngine(zap.NewNop(), nil).Run(context.Background(), conn, rep, p)
	var ierr *ImportError
	if !errors.As(err, &ierr) {
		t.Fatalf("err=%v, want *ImportError when nothing could be inserted", err)
	}
	if ierr.Target != "orders" {
		t.Fatalf("Target=%q, want orders", ierr.Target)
	}
}

func TestRun_DocumentStoreUsesRawRecords(t *testing.T) {
	currentDoc = &fakeDoc{}
	conn := connect(t, "impdoc")

	rep := &analyze.Report{
		Fields:      []string{"name", "address_city"},
		Rows:        [][]string{{"a", "x"}, {"b", "y"}},
		RecordCount: 2,
		RawRecords: []map[string]any{
			{"name": "a", "address": map[string]any{"city": "x"}},
			{"name": "b", "address": map[string]any{"city": "y"}},
		},
		Profiles: []analyze.FieldProfile{
			{Name: "name", SourceType: analyze.TypeText},
			{Name: "address_city", SourceType: analyze.TypeText},
		},
	}
	p, err := plan.Build("people", plan.Document, rep.Profiles, rep.RawRecords[0])
	if err != nil {
		t.Fatalf("plan.Build() err=%v", err)
	}

	res, err := NewEngine(zap.NewNop(), nil).Run(context.Background(), conn, rep, p)
	if err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if res.RecordCount != 2 {
		t.Fatalf("RecordCount=%d, want 2", res.RecordCount)
	}

	got := currentDoc.batches[0][0]
	nested, ok := got["address"].(map[string]any)
	if !ok || nested["city"] != "x" {
		t.Fatalf("nesting lost on document import: %v", got)
	}
}

func TestRun_DocumentStoreTypesRawDateStrings(t *testing.T) {
	currentDoc = &fakeDoc{}
	conn := connect(t, "impdoc")

	rep := &analyze.Report{
		Fields:      []string{"name", "signup_date"},
		Rows:        [][]string{{"a", "2024-01-02"}, {"b", "not-a-date"}},
		RecordCount: 2,
		RawRecords: []map[string]any{
			{"name": "a", "signup_date": "2024-01-02"},
			{"name": "b", "signup_date": "not-a-date"},
		},
		Profiles: []analyze.FieldProfile{
			{Name: "name", SourceType: analyze.TypeText},
			{Name: "signup_date", SourceType: analyze.TypeDate, DateLayout: "2006-01-02"},
		},
	}
	p, err := plan.Build("people", plan.Document, rep.Profiles, rep.RawRecords[0])
	if err != nil {
		t.Fatalf("plan.Build() err=%v", err)
	}

	if _, err := NewEngine(zap.NewNop(), nil).Run(context.Background(), conn, rep, p); err != nil {
		t.Fatalf("Run() err=%v", err)
	}

	// Date strings become timestamps so pipeline date filters can match them.
	first := currentDoc.batches[0][0]
	if d, ok := first["signup_date"].(time.Time); !ok || d.Format("2006-01-02") != "2024-01-02" {
		t.Fatalf("signup_date=%v (%T), want time.Time", first["signup_date"], first["signup_date"])
	}
	second := currentDoc.batches[0][1]
	if second["signup_date"] != "not-a-date" {
		t.Fatalf("unparseable date=%v, want the original string", second["signup_date"])
	}
	// The source report is not mutated.
	if _, ok := rep.RawRecords[0]["signup_date"].(string); !ok {
		t.Fatalf("RawRecords mutated: %v", rep.RawRecords[0])
	}
}

func TestRun_DocumentStoreCoercesTabularRows(t *testing.T) {
	currentDoc = &fakeDoc{}
	conn := connect(t, "impdoc")
	rep, _ := ordersReport(t)
	p, err := plan.Build("orders", plan.Document, rep.Profiles, nil)
	if err != nil {
		t.Fatalf("plan.Build() err=%v", err)
	}

	res, err := NewEngine(zap.NewNop(), nil).Run(context.Background(), conn, rep, p)
	if err != nil {
		t.Fatalf("Run() err=%v", err)
	}
	if res.RecordCount != 3 {
		t.Fatalf("RecordCount=%d, want 3", res.RecordCount)
	}

	first := currentDoc.batches[0][0]
	if v, ok := first["order_id"].(int64); !ok || v != 1 {
		t.Fatalf("order_id=%v (%T), want int64(1)", first["order_id"], first["order_id"])
	}
	if _, ok := first["order_date"].(time.Time); !ok {
		t.Fatalf("order_date=%T, want time.Time", first["order_date"])
	}
}

func TestCoerce(t *testing.T) {
	t.Parallel()

	date := plan.FieldDef{SourceType: analyze.TypeDate, DateLayout: "2006-01-02"}

	tests := []struct {
		name    string
		raw     string
		fd      plan.FieldDef
		want    any
		wantErr bool
	}{
		{name: "empty_is_null", raw: "", fd: plan.FieldDef{SourceType: analyze.TypeInteger}, want: nil},
		{name: "integer", raw: "42", fd: plan.FieldDef{SourceType: analyze.TypeInteger}, want: int64(42)},
		{name: "bad_integer", raw: "x", fd: plan.FieldDef{SourceType: analyze.TypeInteger}, wantErr: true},
		{name: "float", raw: "3.25", fd: plan.FieldDef{SourceType: analyze.TypeFloat}, want: 3.25},
		{name: "bool_yes", raw: "yes", fd: plan.FieldDef{SourceType: analyze.TypeBoolean}, want: true},
		{name: "bad_bool", raw: "maybe", fd: plan.FieldDef{SourceType: analyze.TypeBoolean}, wantErr: true},
		{name: "bad_date", raw: "not-a-date", fd: date, wantErr: true},
		{name: "text_passthrough", raw: "hello", fd: plan.FieldDef{SourceType: analyze.TypeText}, want: "hello"},
		{name: "text_clamped_to_cap", raw: "abcdefgh", fd: plan.FieldDef{SourceType: analyze.TypeText, TextCap: 5}, want: "abcde"},
		{name: "text_under_cap", raw: "abc", fd: plan.FieldDef{SourceType: analyze.TypeText, TextCap: 5}, want: "abc"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := coerce(tc.raw, tc.fd)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("coerce(%q) err=nil, want error", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("coerce(%q) err=%v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("coerce(%q)=%v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}
