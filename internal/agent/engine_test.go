package agent

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/agent/prompts"
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/retrieval"
	"github.com/Aelhfnawi/Retail-Analytics-Copilot/internal/store"
)

// scriptedLLM replays a fixed sequence of completions and records the system
// prompt of each call.
type scriptedLLM struct {
	t         *testing.T
	responses []string
	calls     []string
}

func (c *scriptedLLM) Complete(_ context.Context, systemPrompt, _ string) (string, error) {
	if len(c.responses) == 0 {
		c.t.Fatalf("unexpected LLM call, system prompt: %.80s", systemPrompt)
	}
	c.calls = append(c.calls, systemPrompt)
	response := c.responses[0]
	c.responses = c.responses[1:]
	return response, nil
}

type fixedRetriever struct {
	chunks []retrieval.Chunk
}

func (r *fixedRetriever) Search(string, int) []retrieval.Chunk { return r.chunks }

var testChunks = []retrieval.Chunk{
	{ID: "product_policy::chunk1", Content: "Returns are accepted within 30 days.", Source: "product_policy.md", Score: 0.8},
	{ID: "marketing_calendar::chunk0", Content: "Summer Beverages campaign runs June through August.", Source: "marketing_calendar.md", Score: 0.3},
}

func testStore(t *testing.T) *store.DB {
	t.Helper()

	path := t.TempDir() + "/test.sqlite"
	raw, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)

	_, err = raw.Exec(`
		CREATE TABLE Orders (OrderID INTEGER PRIMARY KEY, CustomerID TEXT, OrderDate TEXT);
		CREATE TABLE "Order Details" (OrderID INTEGER, ProductID INTEGER, UnitPrice REAL, Quantity INTEGER, Discount REAL);
		CREATE TABLE Products (ProductID INTEGER PRIMARY KEY, ProductName TEXT, CategoryID INTEGER);
		CREATE TABLE Customers (CustomerID TEXT PRIMARY KEY, CompanyName TEXT, Country TEXT);
		INSERT INTO Orders VALUES (1, 'ALFKI', '1997-03-01'), (2, 'BONAP', '1997-08-20'), (3, 'ALFKI', '1998-01-15');
		INSERT INTO "Order Details" VALUES (1, 10, 4.5, 2, 0.0), (2, 11, 10.0, 1, 0.1);
		INSERT INTO Products VALUES (10, 'Chai', 1), (11, 'Chang', 1);
		INSERT INTO Customers VALUES ('ALFKI', 'Alfreds Futterkiste', 'Germany'), ('BONAP', 'Bon app', 'France');
	`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	db, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testEngine(t *testing.T, client *scriptedLLM) *Engine {
	t.Helper()

	p, err := prompts.Load()
	require.NoError(t, err)

	engine, err := New(&Config{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		LLM:       client,
		DB:        testStore(t),
		Retriever: &fixedRetriever{chunks: testChunks},
		Prompts:   p,
	})
	require.NoError(t, err)
	return engine
}

func TestRunSQLPath(t *testing.T) {
	client := &scriptedLLM{t: t, responses: []string{
		"sql",
		"```sql\nSELECT COUNT(*) AS n FROM Orders WHERE YEAR(OrderDate) = '1997'\n```",
		`{"final_answer": 2, "short_explanation": "Counted orders placed in 1997."}`,
	}}
	engine := testEngine(t, client)

	state, err := engine.Run(context.Background(), "How many orders were placed in 1997?", "int")
	require.NoError(t, err)

	require.Equal(t, StrategySQL, state.Strategy)
	require.Empty(t, state.Context)
	require.Contains(t, state.SQLQuery, "strftime('%Y', OrderDate)")
	require.Contains(t, state.SQLQuery, "COUNT(*)")
	require.NotContains(t, state.SQLQuery, "```")

	require.NotNil(t, state.SQLResult)
	require.Empty(t, state.SQLResult.Error)
	require.Equal(t, 1, state.SQLResult.Count)
	require.Equal(t, int64(2), state.SQLResult.Rows[0]["n"])

	require.Equal(t, float64(2), state.FinalAnswer)
	require.Equal(t, "Counted orders placed in 1997.", state.Explanation)
	require.Equal(t, []string{"Orders"}, state.Citations)
	require.Empty(t, state.Errors)
	require.Zero(t, state.RepairCount)

	// Router, generator, synthesizer. Only the generator carries the schema.
	require.Len(t, client.calls, 3)
	require.Contains(t, client.calls[1], "## Database Schema")
}

func TestRunRAGPathSkipsSQL(t *testing.T) {
	client := &scriptedLLM{t: t, responses: []string{
		"rag",
		`{"final_answer": "Within 30 days.", "short_explanation": "Stated in the returns policy."}`,
	}}
	engine := testEngine(t, client)

	state, err := engine.Run(context.Background(), "What is the return window?", "string")
	require.NoError(t, err)

	require.Equal(t, StrategyRAG, state.Strategy)
	require.Empty(t, state.SQLQuery)
	require.Nil(t, state.SQLResult)
	require.Equal(t, "Within 30 days.", state.FinalAnswer)
	require.Equal(t, []string{"product_policy::chunk1", "marketing_calendar::chunk0"}, state.Citations)
	require.Len(t, client.calls, 2)
}

func TestRunHybridPath(t *testing.T) {
	client := &scriptedLLM{t: t, responses: []string{
		"This needs both sql and rag.",
		"SELECT SUM(UnitPrice * Quantity) FROM \"Order Details\"",
		`{"final_answer": 19.0, "short_explanation": "Total revenue from line items."}`,
	}}
	engine := testEngine(t, client)

	state, err := engine.Run(context.Background(), "What was revenue during the summer campaign?", "float")
	require.NoError(t, err)

	require.Equal(t, StrategyHybrid, state.Strategy)
	require.Len(t, state.Context, 2)
	require.NotEmpty(t, state.SQLQuery)
	require.NotNil(t, state.SQLResult)
	require.Empty(t, state.SQLResult.Error)

	// Table citations first, then every retrieved chunk id.
	require.Equal(t, []string{"Order Details", "product_policy::chunk1", "marketing_calendar::chunk0"}, state.Citations)
}

func TestRunRepairThenValid(t *testing.T) {
	client := &scriptedLLM{t: t, responses: []string{
		"sql",
		"SELECT o.TotalAmount FROM Orders o",
		"SELECT CustomerID FROM Orders",
		`{"final_answer": ["ALFKI", "BONAP", "ALFKI"], "short_explanation": "Customer per order."}`,
	}}
	engine := testEngine(t, client)

	state, err := engine.Run(context.Background(), "Which customers placed orders?", "list[str]")
	require.NoError(t, err)

	require.Equal(t, 1, state.RepairCount)
	require.Equal(t, "SELECT CustomerID FROM Orders", state.SQLQuery)
	require.Empty(t, state.Errors)
	require.NotNil(t, state.SQLResult)
	require.Equal(t, 3, state.SQLResult.Count)

	// Router, two generation attempts, synthesizer.
	require.Len(t, client.calls, 4)
}

func TestRunRepairCap(t *testing.T) {
	client := &scriptedLLM{t: t, responses: []string{
		"sql",
		"SELECT * FROM Shipments",
		"SELECT * FROM Shipments",
		"SELECT * FROM Shipments",
		`{"final_answer": null, "short_explanation": "The data needed is not available."}`,
	}}
	engine := testEngine(t, client)

	state, err := engine.Run(context.Background(), "How many shipments went out?", "int")
	require.NoError(t, err)

	// Two repair cycles means exactly three generation attempts, then the
	// synthesizer runs with the errors still in state.
	require.Equal(t, 2, state.RepairCount)
	require.NotEmpty(t, state.Errors)
	require.Len(t, client.calls, 5)

	generations := 0
	for _, call := range client.calls {
		if strings.Contains(call, "## Database Schema") {
			generations++
		}
	}
	require.Equal(t, 3, generations)
}

func TestRunExecutionErrorTriggersRepair(t *testing.T) {
	// Passes validation (known table, known column via the union check) but
	// fails at execution time.
	client := &scriptedLLM{t: t, responses: []string{
		"sql",
		"SELECT CustomerID FROM Orders GROUP BY",
		"SELECT CustomerID FROM Orders",
		`{"final_answer": 3, "short_explanation": "Order rows."}`,
	}}
	engine := testEngine(t, client)

	state, err := engine.Run(context.Background(), "List order customers.", "list[str]")
	require.NoError(t, err)

	require.Equal(t, 1, state.RepairCount)
	require.Empty(t, state.Errors)
	require.Equal(t, 3, state.SQLResult.Count)
}

func TestNewValidatesConfig(t *testing.T) {
	p, err := prompts.Load()
	require.NoError(t, err)
	db := testStore(t)
	client := &scriptedLLM{t: t}
	index := &fixedRetriever{}

	_, err = New(&Config{DB: db, Retriever: index, Prompts: p})
	require.ErrorContains(t, err, "LLM client")

	_, err = New(&Config{LLM: client, Retriever: index, Prompts: p})
	require.ErrorContains(t, err, "database")

	_, err = New(&Config{LLM: client, DB: db, Prompts: p})
	require.ErrorContains(t, err, "retriever")

	_, err = New(&Config{LLM: client, DB: db, Retriever: index})
	require.ErrorContains(t, err, "prompts")

	engine, err := New(&Config{LLM: client, DB: db, Retriever: index, Prompts: p})
	require.NoError(t, err)
	require.Equal(t, 2, engine.cfg.MaxRepairs)
	require.Equal(t, 3, engine.cfg.TopK)
}

func TestNormalizeStrategy(t *testing.T) {
	cases := []struct {
		response string
		want     Strategy
	}{
		{"sql", StrategySQL},
		{"  SQL  ", StrategySQL},
		{"rag", StrategyRAG},
		{"Use SQL and RAG together.", StrategyHybrid},
		{"hybrid", StrategyRAG}, // no recognized keyword
		{"no idea", StrategyRAG},
		{"", StrategyRAG},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, normalizeStrategy(tc.response), "response %q", tc.response)
	}
}

func TestParseSynthesisResponse(t *testing.T) {
	final, explanation := parseSynthesisResponse(`{"final_answer": 42, "short_explanation": "computed"}`)
	require.Equal(t, float64(42), final)
	require.Equal(t, "computed", explanation)

	final, explanation = parseSynthesisResponse("Here you go:\n{\"final_answer\": \"ok\", \"short_explanation\": \"x\"}\nDone.")
	require.Equal(t, "ok", final)
	require.Equal(t, "x", explanation)

	final, explanation = parseSynthesisResponse(`{"final_answer": ["a", "b"], "short_explanation": ""}`)
	require.Equal(t, []any{"a", "b"}, final)
	require.Empty(t, explanation)

	// No JSON at all: the raw text is the answer.
	final, explanation = parseSynthesisResponse("  just plain text  ")
	require.Equal(t, "just plain text", final)
	require.Empty(t, explanation)

	// JSON without the expected key also falls back to raw text.
	final, _ = parseSynthesisResponse(`{"answer": 1}`)
	require.Equal(t, `{"answer": 1}`, final)
}

func TestExtractJSON(t *testing.T) {
	require.Equal(t, `{"a": 1}`, extractJSON(`prefix {"a": 1} suffix`))
	require.Equal(t, `{"a": {"b": 2}}`, extractJSON(`{"a": {"b": 2}} trailing {`))
	require.Equal(t, `{"s": "brace } inside"}`, extractJSON(`{"s": "brace } inside"}`))
	require.Equal(t, `{"s": "esc \" }"}`, extractJSON(`{"s": "esc \" }"}`))
	require.Empty(t, extractJSON("no object here"))
	require.Empty(t, extractJSON(`{"unbalanced": `))
}

func TestBuildCitations(t *testing.T) {
	citations := buildCitations(`SELECT * FROM orders JOIN OrderDetails USING (OrderID)`, nil)
	require.Equal(t, []string{"Orders", "Order Details"}, citations)

	citations = buildCitations("", testChunks)
	require.Equal(t, []string{"product_policy::chunk1", "marketing_calendar::chunk0"}, citations)

	// Never nil, even with nothing to cite.
	citations = buildCitations("", nil)
	require.NotNil(t, citations)
	require.Empty(t, citations)
}

func TestStateApply(t *testing.T) {
	s := &State{}
	s.apply(Update{Strategy: StrategySQL})
	require.Equal(t, StrategySQL, s.Strategy)

	// Strategy is write-once.
	s.apply(Update{Strategy: StrategyRAG})
	require.Equal(t, StrategySQL, s.Strategy)

	q := "SELECT 1"
	errs := []string{"boom"}
	s.apply(Update{SQLQuery: &q, Errors: &errs, RepairDelta: 1})
	require.Equal(t, "SELECT 1", s.SQLQuery)
	require.Equal(t, []string{"boom"}, s.Errors)
	require.Equal(t, 1, s.RepairCount)

	empty := []string{}
	s.apply(Update{Errors: &empty, RepairDelta: 1})
	require.Empty(t, s.Errors)
	require.Equal(t, 2, s.RepairCount)

	// Nil fields leave state untouched.
	s.apply(Update{})
	require.Equal(t, "SELECT 1", s.SQLQuery)
	require.Equal(t, 2, s.RepairCount)
}

func TestRewriteDialect(t *testing.T) {
	require.Equal(t,
		"SELECT strftime('%Y', OrderDate), strftime('%m', OrderDate) FROM Orders",
		rewriteDialect("SELECT YEAR(OrderDate), MONTH(OrderDate) FROM Orders"))
	require.Equal(t,
		"WHERE strftime('%Y', o.OrderDate) = '1997'",
		rewriteDialect("WHERE year(o.OrderDate) = '1997'"))
	require.Equal(t, "SELECT 1", rewriteDialect("SELECT 1"))
}
