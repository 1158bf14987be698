// Package ai is the catalog assistant: a Gemini chat that may answer
// questions by running read-only SQL against the replica pool.
package ai

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker/v2"
	"google.golang.org/api/option"

	"github.com/01moynul/bookmarket-golang/internal/apperr"
	"github.com/01moynul/bookmarket-golang/internal/models"
)

const (
	toolRunSQL    = "run_readonly_sql"
	maxToolRounds = 5
	maxRows       = 200
	noResponse    = "No response."
)

// Reply is the assistant's answer and the tokens spent producing it.
type Reply struct {
	Text        string `json:"response"`
	TotalTokens int    `json:"tokens_used"`
}

// chat is the part of *genai.ChatSession the conversation loop needs.
type chat interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Assistant holds the Gemini client, the read-only pool the SQL tool runs
// against and the primary pool where chat history is written.
type Assistant struct {
	client    *genai.Client
	readOnly  *sql.DB
	db        *sql.DB
	model     string
	breaker   *gobreaker.CircuitBreaker[Reply]
	startChat func(role string) chat
}

// New initializes the Gemini client.
func New(ctx context.Context, apiKey, model string, readOnly, primary *sql.DB) (*Assistant, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	a := newAssistant(model, readOnly, primary)
	a.client = client
	a.startChat = a.geminiChat
	return a, nil
}

func newAssistant(model string, readOnly, primary *sql.DB) *Assistant {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Assistant{
		readOnly: readOnly,
		db:       primary,
		model:    model,
		breaker: gobreaker.NewCircuitBreaker[Reply](gobreaker.Settings{
			Name:        "gemini",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// Close releases the Gemini client.
func (a *Assistant) Close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

// Ask answers a question on behalf of a user and records the exchange.
// Failing to record history does not fail the request.
func (a *Assistant) Ask(ctx context.Context, userID int64, role, question string) (Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{}, apperr.BadRequest("message is required")
	}

	reply, err := a.breaker.Execute(func() (Reply, error) {
		return a.converse(ctx, role, question)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return Reply{}, apperr.Unavailable("assistant is temporarily unavailable", err)
	case err != nil:
		return Reply{}, apperr.Unavailable("assistant request failed", err)
	}

	_, dbErr := a.db.ExecContext(ctx, `
		INSERT INTO assistant_chat_history (user_id, user_role, question, answer, tokens_used)
		VALUES (?, ?, ?, ?, ?)`, userID, role, question, reply.Text, reply.TotalTokens)
	if dbErr != nil {
		slog.Warn("failed to save chat history", "user_id", userID, "error", dbErr)
	}
	return reply, nil
}

func (a *Assistant) geminiChat(role string) chat {
	model := a.client.GenerativeModel(a.model)
	model.Tools = []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        toolRunSQL,
			Description: "Executes a READ-ONLY MySQL query (a single SELECT) to answer questions.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query": {
						Type:        genai.TypeString,
						Description: "The MySQL SELECT query to execute.",
					},
				},
				Required: []string{"query"},
			},
		}},
	}}
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(fmt.Sprintf(`
			You are the bookstore assistant. Role: %s.
			Access: MySQL database (%s).
			Schema: %s
			Rules: one SELECT only. Ignore rows where deleted_at is set. Be concise.
		`, role, toolRunSQL, schemaFor(role)))},
	}
	return model.StartChat()
}

// converse runs one question through the model, answering tool calls until
// the model replies with text.
func (a *Assistant) converse(ctx context.Context, role, question string) (Reply, error) {
	cs := a.startChat(role)
	res, err := cs.SendMessage(ctx, genai.Text(question))
	if err != nil {
		return Reply{}, fmt.Errorf("error sending message: %w", err)
	}
	tokens := usage(res)

	for round := 0; ; round++ {
		call, text := inspect(res)
		if call == nil {
			if text == "" {
				text = noResponse
			}
			return Reply{Text: text, TotalTokens: tokens}, nil
		}
		if call.Name != toolRunSQL {
			return Reply{}, fmt.Errorf("unknown function: %s", call.Name)
		}
		if round == maxToolRounds {
			return Reply{}, fmt.Errorf("model requested more than %d queries", maxToolRounds)
		}

		query, _ := call.Args["query"].(string)
		slog.Info("assistant running SQL", "role", role, "query", query)
		result, sqlErr := a.runReadOnlyQuery(ctx, role, query)
		if sqlErr != nil {
			result = fmt.Sprintf("SQL Error: %v", sqlErr)
		}

		res, err = cs.SendMessage(ctx, genai.FunctionResponse{
			Name:     toolRunSQL,
			Response: map[string]any{"result": result},
		})
		if err != nil {
			return Reply{}, fmt.Errorf("tool response error: %w", err)
		}
		tokens += usage(res)
	}
}

func usage(res *genai.GenerateContentResponse) int {
	if res == nil || res.UsageMetadata == nil {
		return 0
	}
	return int(res.UsageMetadata.TotalTokenCount)
}

// inspect returns the first function call of the top candidate, or its text.
func inspect(res *genai.GenerateContentResponse) (*genai.FunctionCall, string) {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return nil, ""
	}
	var text strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.FunctionCall:
			return &p, ""
		case *genai.FunctionCall:
			return p, ""
		case genai.Text:
			text.WriteString(string(p))
		}
	}
	return nil, strings.TrimSpace(text.String())
}

var (
	writeKeywords  = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE|REPLACE|RENAME|GRANT|REVOKE|LOCK|CALL|HANDLER|INTO|SET|SLEEP|BENCHMARK|LOAD_FILE)\b`)
	secretNames    = regexp.MustCompile(`(?i)\b(password|refresh_tokens|assistant_chat_history)\b`)
	systemSchemas  = regexp.MustCompile("(?i)\\b(mysql|sys|information_schema|performance_schema)`?\\s*\\.")
	tableStatement = regexp.MustCompile(`(?i)\bTABLE\b`)
	privateTables  = regexp.MustCompile(`(?i)\b(users|orders|order_details|carts)\b`)
	usersTable     = regexp.MustCompile(`(?i)\busers\b`)
	leadingWord    = regexp.MustCompile(`(?i)^(SELECT|WITH)\b`)

	// A bare or qualified "*" in a select list. COUNT(*) does not match.
	starProjection = regexp.MustCompile(`(?i)(\bSELECT\s+((ALL|DISTINCT)\s+)?|,\s*|\.\s*)\*`)
)

// checkQuery accepts a single SELECT (or WITH ... SELECT) statement. Customers
// are limited to catalog tables. Queries touching users must name their
// columns so the password hash can never be selected implicitly.
func checkQuery(role, query string) (string, error) {
	q := strings.TrimSuffix(strings.TrimSpace(query), ";")
	switch {
	case q == "":
		return "", errors.New("empty query")
	case strings.Contains(q, ";"):
		return "", errors.New("only a single statement is allowed")
	case strings.Contains(q, "--"), strings.Contains(q, "/*"), strings.Contains(q, "#"):
		return "", errors.New("comments are not allowed")
	case !leadingWord.MatchString(q):
		return "", errors.New("only SELECT queries are allowed")
	case writeKeywords.MatchString(q):
		return "", errors.New("security violation: modify operations are not allowed")
	case secretNames.MatchString(q), systemSchemas.MatchString(q), tableStatement.MatchString(q):
		return "", errors.New("security violation: restricted table or column")
	case usersTable.MatchString(q) && starProjection.MatchString(q):
		return "", errors.New("security violation: list the users columns explicitly instead of *")
	case role != models.RoleAdmin && privateTables.MatchString(q):
		return "", errors.New("security violation: customer data is not available")
	}
	return q, nil
}

// runReadOnlyQuery runs the query in a read-only transaction and returns at
// most maxRows rows as JSON.
func (a *Assistant) runReadOnlyQuery(ctx context.Context, role, query string) (string, error) {
	q, err := checkQuery(role, query)
	if err != nil {
		return "", err
	}

	tx, err := a.readOnly.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return "", err
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, q)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return "", err
	}
	table := []map[string]any{}
	truncated := false
	for rows.Next() {
		if len(table) == maxRows {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		entry := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				entry[col] = string(b)
			} else {
				entry[col] = values[i]
			}
		}
		table = append(table, entry)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	out, err := json.Marshal(map[string]any{"rows": table, "truncated": truncated})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func schemaFor(role string) string {
	schema := `
	- categories (id, name, slug, parent_id)
	- books (id, category_id, title, author, price, image_url, summary, published_date, rating, created_at, deleted_at)
	- book_details (book_id, isbn, description, table_of_contents, form)
	- book_likes (user_id, book_id, created_at)
	- reviews (id, user_id, book_id, content, rating [1-5], created_at)
	- review_likes (user_id, review_id, created_at)
	`
	if role == models.RoleAdmin {
		schema += `- users (id, name, role [user, admin], created_at, deleted_at); always list users columns, never users.*
	- carts (id, user_id, book_id, quantity)
	- orders (id, user_id, delivery_info JSON {recipient, address, phone}, total_price, status [pending_payment, paid, preparing_shipment, shipping, delivered, cancelled], created_at)
	- order_details (id, order_id, book_id, quantity, price)
	`
	}
	return schema
}
