package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"grupoeconomico/classification"
	"grupoeconomico/enrichment"
	"grupoeconomico/importer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

type fakeLookup struct {
	mu         sync.Mutex
	identities map[string]*enrichment.CompanyIdentity
	calls      []string
	panicOn    string
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{identities: make(map[string]*enrichment.CompanyIdentity)}
}

func (f *fakeLookup) add(cnpj, legal, trade string) {
	f.identities[cnpj] = &enrichment.CompanyIdentity{CNPJ: cnpj, LegalName: legal, TradeName: trade, Source: "fake"}
}

func (f *fakeLookup) Lookup(ctx context.Context, raw string) (*enrichment.CompanyIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cnpj := enrichment.NormalizeCNPJ(raw)
	f.calls = append(f.calls, cnpj)
	if cnpj == f.panicOn {
		panic("registry exploded")
	}
	if identity, ok := f.identities[cnpj]; ok {
		return identity, nil
	}
	return nil, enrichment.ErrNotFound
}

func (f *fakeLookup) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeProvider struct {
	name      string
	available bool
	group     string
	err       error
	calls     atomic.Int32
}

func (p *fakeProvider) Name() string      { return p.name }
func (p *fakeProvider) IsAvailable() bool { return p.available }

func (p *fakeProvider) Classify(ctx context.Context, identity *enrichment.CompanyIdentity) (*classification.GroupAssignment, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return &classification.GroupAssignment{
		GroupName:  p.group,
		Confidence: 75,
		Method:     classification.Method{Kind: classification.MethodProviderAI, Provider: p.name, Model: "m"},
		Rationale:  p.name + " says so",
	}, nil
}

type fakeArbiter struct {
	available bool
	pick      int
	calls     atomic.Int32
}

func (a *fakeArbiter) IsAvailable() bool { return a.available }

func (a *fakeArbiter) Arbitrate(ctx context.Context, identity *enrichment.CompanyIdentity, first, second classification.Candidate) *classification.GroupAssignment {
	a.calls.Add(1)
	chosen := first
	if a.pick == 2 {
		chosen = second
	}
	result := chosen.Assignment.Clone()
	result.Method.Kind = classification.MethodArbitrated
	result.ArbitrationNote = chosen.Provider + " chosen"
	return result
}

func newTable(headers []string, rows ...[]string) *importer.Table {
	return &importer.Table{Headers: headers, Rows: rows}
}

func newTestOrchestrator(t *testing.T, config Config) (*Orchestrator, *[]time.Duration) {
	t.Helper()
	o, err := NewOrchestrator(config)
	require.NoError(t, err)

	var sleeps []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return o, &sleeps
}

const (
	valeCNPJ  = "33000167000101"
	otherCNPJ = "11222333000181"
)

func TestRun_InvalidIdentifier(t *testing.T) {
	lookup := newFakeLookup()
	o, _ := newTestOrchestrator(t, Config{Lookup: lookup})

	table := newTable([]string{"cnpj"}, []string{"11.111.111/1111-11"}, []string{"123"}, []string{""}, []string{"33.000.167/0001-011"}, []string{"33.000.167/0001-02"})
	result, err := o.Run(context.Background(), table, "cnpj")
	require.NoError(t, err)

	assert.Zero(t, lookup.Calls(), "invalid identifiers must not reach the registry")
	for _, r := range result.Records {
		assert.Equal(t, ErrMsgInvalidIdentifier, r.Error)
		assert.Empty(t, r.CNPJ)
		assert.Nil(t, r.Identity)
		assert.Nil(t, r.Assignment)
	}
	assert.Equal(t, 5, result.Summary.Failed)
}

func TestRun_RuleMatchScenario(t *testing.T) {
	lookup := newFakeLookup()
	lookup.add(valeCNPJ, "VALE S.A.", "")
	provider := &fakeProvider{name: "Gemini", available: true, group: "GERDAU"}

	o, _ := newTestOrchestrator(t, Config{Lookup: lookup, Providers: []ProviderClassifier{provider}})
	result, err := o.Run(context.Background(), newTable([]string{"cnpj"}, []string{"33.000.167/0001-01"}), "")
	require.NoError(t, err)

	record := result.Records[0]
	require.True(t, record.Succeeded())
	assert.Equal(t, "33.000.167/0001-01", record.RawCNPJ)
	assert.Equal(t, valeCNPJ, record.CNPJ)
	assert.Equal(t, "VALE", record.Assignment.GroupName)
	assert.Equal(t, 85, record.Assignment.Confidence)
	assert.Equal(t, "Rules", record.Assignment.Method.String())
	assert.Zero(t, provider.calls.Load(), "rule match short-circuits providers")
}

func TestRun_DataNotFound(t *testing.T) {
	lookup := newFakeLookup()
	o, _ := newTestOrchestrator(t, Config{Lookup: lookup})

	result, err := o.Run(context.Background(), newTable([]string{"cnpj"}, []string{otherCNPJ}), "cnpj")
	require.NoError(t, err)

	record := result.Records[0]
	assert.Equal(t, ErrMsgDataNotFound, record.Error)
	assert.Equal(t, otherCNPJ, record.CNPJ)
	assert.Nil(t, record.Assignment)
	assert.Nil(t, record.Identity)
}

func TestRun_DefaultWithoutProviders(t *testing.T) {
	lookup := newFakeLookup()
	lookup.add(otherCNPJ, "Padaria Central Ltda", "Pão Quente")
	disabled := &fakeProvider{name: "Perplexity", available: false, group: "VALE"}

	o, _ := newTestOrchestrator(t, Config{
		Lookup:     lookup,
		Providers:  []ProviderClassifier{disabled},
		Arbitrator: &fakeArbiter{available: false},
	})
	result, err := o.Run(context.Background(), newTable([]string{"cnpj"}, []string{otherCNPJ}), "cnpj")
	require.NoError(t, err)

	a := result.Records[0].Assignment
	assert.Equal(t, classification.Independent, a.GroupName)
	assert.Equal(t, 50, a.Confidence)
	assert.Equal(t, "Default", a.Method.String())
	assert.Zero(t, disabled.calls.Load())
}

func TestClassify_Cascade(t *testing.T) {
	identity := &enrichment.CompanyIdentity{CNPJ: otherCNPJ, LegalName: "Comercial Nova Era Ltda"}

	tests := []struct {
		name            string
		first           *fakeProvider
		second          *fakeProvider
		arbiter         *fakeArbiter
		wantGroup       string
		wantKind        classification.MethodKind
		wantFirstCalls  int32
		wantSecondCalls int32
		wantArbiter     int32
	}{
		{
			name:           "first answers, no arbitration",
			first:          &fakeProvider{name: "Perplexity", available: true, group: "JBS"},
			second:         &fakeProvider{name: "Gemini", available: true, group: "VALE"},
			arbiter:        nil,
			wantGroup:      "JBS",
			wantKind:       classification.MethodProviderAI,
			wantFirstCalls: 1,
		},
		{
			name:            "first unavailable, second answers",
			first:           &fakeProvider{name: "Perplexity", available: true, err: classification.ErrUnavailable},
			second:          &fakeProvider{name: "Gemini", available: true, group: "VALE"},
			arbiter:         &fakeArbiter{available: true},
			wantGroup:       "VALE",
			wantKind:        classification.MethodProviderAI,
			wantFirstCalls:  1,
			wantSecondCalls: 1,
		},
		{
			name:            "both answer, arbitration picks second",
			first:           &fakeProvider{name: "Perplexity", available: true, group: "JBS"},
			second:          &fakeProvider{name: "Gemini", available: true, group: "VALE"},
			arbiter:         &fakeArbiter{available: true, pick: 2},
			wantGroup:       "VALE",
			wantKind:        classification.MethodArbitrated,
			wantFirstCalls:  1,
			wantSecondCalls: 1,
			wantArbiter:     1,
		},
		{
			name:            "arbiter not configured",
			first:           &fakeProvider{name: "Perplexity", available: true, group: "JBS"},
			second:          &fakeProvider{name: "Gemini", available: true, group: "VALE"},
			arbiter:         &fakeArbiter{available: false},
			wantGroup:       "JBS",
			wantKind:        classification.MethodProviderAI,
			wantFirstCalls:  1,
			wantSecondCalls: 0,
		},
		{
			name:            "both unavailable",
			first:           &fakeProvider{name: "Perplexity", available: true, err: errors.New("401")},
			second:          &fakeProvider{name: "Gemini", available: true, err: errors.New("timeout")},
			arbiter:         &fakeArbiter{available: true},
			wantGroup:       classification.Independent,
			wantKind:        classification.MethodDefault,
			wantFirstCalls:  1,
			wantSecondCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Config{
				Lookup:    newFakeLookup(),
				Providers: []ProviderClassifier{tt.first, tt.second},
			}
			if tt.arbiter != nil {
				config.Arbitrator = tt.arbiter
			}
			o, _ := newTestOrchestrator(t, config)

			got := o.Classify(context.Background(), identity)
			assert.Equal(t, tt.wantGroup, got.GroupName)
			assert.Equal(t, tt.wantKind, got.Method.Kind)
			assert.Equal(t, tt.wantFirstCalls, tt.first.calls.Load())
			assert.Equal(t, tt.wantSecondCalls, tt.second.calls.Load())
			if tt.arbiter != nil {
				assert.Equal(t, tt.wantArbiter, tt.arbiter.calls.Load())
			}
		})
	}
}

func TestRun_ArbitratedResultIsOneOfInputs(t *testing.T) {
	lookup := newFakeLookup()
	lookup.add(otherCNPJ, "Comercial Nova Era Ltda", "")

	for _, pick := range []int{1, 2} {
		first := &fakeProvider{name: "Perplexity", available: true, group: "JBS"}
		second := &fakeProvider{name: "Gemini", available: true, group: "NATURA"}
		o, _ := newTestOrchestrator(t, Config{
			Lookup:     lookup,
			Providers:  []ProviderClassifier{first, second},
			Arbitrator: &fakeArbiter{available: true, pick: pick},
		})

		result, err := o.Run(context.Background(), newTable([]string{"cnpj"}, []string{otherCNPJ}), "cnpj")
		require.NoError(t, err)

		a := result.Records[0].Assignment
		assert.Contains(t, []string{"JBS", "NATURA"}, a.GroupName)
		assert.NotEmpty(t, a.ArbitrationNote)
	}
}

func TestRun_PauseBetweenRows(t *testing.T) {
	lookup := newFakeLookup()
	lookup.add(valeCNPJ, "Vale S.A.", "")

	o, sleeps := newTestOrchestrator(t, Config{Lookup: lookup, Pause: 2 * time.Second})
	table := newTable([]string{"cnpj"}, []string{valeCNPJ}, []string{"bad"}, []string{valeCNPJ})

	_, err := o.Run(context.Background(), table, "cnpj")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, *sleeps, "no pause after the last row")
}

func TestRun_CancelAbortsBatch(t *testing.T) {
	lookup := newFakeLookup()
	lookup.add(valeCNPJ, "Vale S.A.", "")

	o, err := NewOrchestrator(Config{Lookup: lookup, Pause: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	o.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepContext(ctx, d)
	}

	result, err := o.Run(ctx, newTable([]string{"cnpj"}, []string{valeCNPJ}, []string{valeCNPJ}), "cnpj")
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, lookup.Calls())
}

func TestRun_PanicIsolatedToRow(t *testing.T) {
	lookup := newFakeLookup()
	lookup.add(valeCNPJ, "Vale S.A.", "")
	lookup.panicOn = otherCNPJ

	o, _ := newTestOrchestrator(t, Config{Lookup: lookup})
	table := newTable([]string{"cnpj"}, []string{otherCNPJ}, []string{valeCNPJ})

	result, err := o.Run(context.Background(), table, "cnpj")
	require.NoError(t, err)
	require.Len(t, result.Records, 2)

	assert.Contains(t, result.Records[0].Error, "processing failed: registry exploded")
	assert.Nil(t, result.Records[0].Assignment)
	assert.True(t, result.Records[1].Succeeded())
	assert.Equal(t, "VALE", result.Records[1].Assignment.GroupName)
}

func TestRun_ColumnNotFound(t *testing.T) {
	o, _ := newTestOrchestrator(t, Config{Lookup: newFakeLookup()})

	_, err := o.Run(context.Background(), newTable([]string{"empresa"}, []string{"x"}), "")
	assert.True(t, errors.Is(err, importer.ErrColumnNotFound))

	_, err = o.Run(context.Background(), newTable([]string{"cnpj"}, []string{"x"}), "documento")
	assert.True(t, errors.Is(err, importer.ErrColumnNotFound))
}

func TestRun_PreservesOriginalColumns(t *testing.T) {
	gofakeit.Seed(42)

	lookup := newFakeLookup()
	headers := []string{"Empresa", "CNPJ do Cliente", "cidade", "erro"}
	var rows [][]string
	for i := 0; i < 5; i++ {
		base := fmt.Sprintf("%08d0001", 10000000+i)
		cnpj := base + enrichment.CNPJCheckDigits(base)
		lookup.add(cnpj, gofakeit.Company(), "")
		formatted := enrichment.FormatCNPJ(cnpj)
		rows = append(rows, []string{gofakeit.Company(), formatted, gofakeit.City(), "x"})
	}

	o, _ := newTestOrchestrator(t, Config{Lookup: lookup})
	result, err := o.Run(context.Background(), newTable(headers, rows...), "")
	require.NoError(t, err)

	outHeaders := result.Headers()
	assert.Equal(t, OutputColumns, outHeaders[:len(OutputColumns)])
	assert.Equal(t, []string{"original_Empresa", "original_CNPJ do Cliente", "original_cidade", "original_erro"}, outHeaders[len(OutputColumns):])

	for i, record := range result.Records {
		values := record.Values()
		require.Len(t, values, len(outHeaders))
		assert.Equal(t, rows[i][1], values[0], "raw identifier kept")
		assert.Equal(t, enrichment.NormalizeCNPJ(rows[i][1]), values[1])
		for j := range headers {
			assert.Equal(t, rows[i][j], values[len(OutputColumns)+j])
		}
	}
}

func TestRun_CacheIdempotence(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OK","nome":"VALE S.A.","fantasia":"VALE","situacao":"ATIVA"}`))
	}))
	defer server.Close()

	lookup := enrichment.NewRegistryLookupFromConfig(map[string]*enrichment.EnricherConfig{
		enrichment.ServiceReceitaWS: {BaseURL: server.URL, Enabled: true, Timeout: time.Second},
	}, nil, nil, nil)

	o, _ := newTestOrchestrator(t, Config{Lookup: lookup})
	table := newTable([]string{"cnpj"}, []string{"33.000.167/0001-01"}, []string{valeCNPJ})

	result, err := o.Run(context.Background(), table, "cnpj")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 2, result.Summary.Succeeded)
	assert.Same(t, result.Records[0].Identity, result.Records[1].Identity)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestSummarize(t *testing.T) {
	assignment := func(group string, kind classification.MethodKind) *classification.GroupAssignment {
		return &classification.GroupAssignment{GroupName: group, Method: classification.Method{Kind: kind}}
	}
	identity := &enrichment.CompanyIdentity{}

	records := []*BatchRecord{
		{Identity: identity, Assignment: assignment("VALE", classification.MethodRules)},
		{Identity: identity, Assignment: assignment("AMBEV", classification.MethodRules)},
		{Identity: identity, Assignment: assignment("VALE", classification.MethodProviderAI)},
		{Identity: identity, Assignment: assignment("INDEPENDENTE", classification.MethodDefault)},
		{Error: ErrMsgDataNotFound},
		{Error: ErrMsgInvalidIdentifier},
	}

	s := Summarize(records)
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 4, s.Succeeded)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, []GroupCount{{Group: "VALE", Count: 2}, {Group: "AMBEV", Count: 1}, {Group: "INDEPENDENTE", Count: 1}}, s.Groups)
	assert.Equal(t, 2, s.Methods["Rules"])
}

func TestHeaders_Deduplicates(t *testing.T) {
	result := &BatchResult{InputHeaders: []string{"a", "a", "cnpj_original"}}
	assert.Equal(t, []string{"original_a", "original_a_2", "original_cnpj_original"}, result.Headers()[len(OutputColumns):])
}
