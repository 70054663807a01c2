package core

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kcglobed.com/finance-chatbot/internal/store"
)

func TestToolRegistry_Guards(t *testing.T) {
	tests := []struct {
		name    string
		call    ToolCall
		wantErr string
	}{
		{"unknown tool", ToolCall{Tool: "drop_everything", SQL: "SELECT 1"}, "Unknown tool: drop_everything"},
		{"missing sql", ToolCall{Tool: "query_courses"}, "Missing SQL"},
		{"blank sql", ToolCall{Tool: "query_courses", SQL: "   "}, "Missing SQL"},
		{"mutation", ToolCall{Tool: "query_courses", SQL: "DROP TABLE x"}, "Only SELECT queries are allowed."},
		{"wrong table", ToolCall{Tool: "query_courses", SQL: "SELECT * FROM wrong_table"}, "Query must use table courses_course."},
		{"stacked statements", ToolCall{Tool: "query_courses", SQL: "SELECT * FROM courses_course; DELETE FROM courses_course"}, "Only a single statement is allowed."},
		{"filter column not allowed", ToolCall{Tool: "query_topics", Filter: &ToolFilter{Column: "secret", Value: 1}}, "Column secret is not allowed for query_topics."},
		{"filter without value", ToolCall{Tool: "query_topics", Filter: &ToolFilter{Column: "id"}}, "Missing filter value."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeQuerier{}
			r := NewToolRegistry(db)

			res := r.Execute(context.Background(), tt.call)

			assert.False(t, res.OK())
			assert.Equal(t, tt.wantErr, res.Err)
			assert.Zero(t, db.calls.Load(), "guard failures must not reach the database")
		})
	}
}

func TestToolRegistry_PassesValidSelect(t *testing.T) {
	db := &fakeQuerier{rows: []map[string]any{{"name": "US CPA"}}}
	r := NewToolRegistry(db)

	res := r.Execute(context.Background(), ToolCall{Tool: "query_courses", SQL: "  select name from COURSES_COURSE;  "})

	require.True(t, res.OK(), res.Err)
	assert.Equal(t, "US CPA", res.Rows[0]["name"])
	assert.Equal(t, "select name from COURSES_COURSE", db.lastQuery())
}

func TestToolRegistry_DatabaseErrorIsMasked(t *testing.T) {
	db := &fakeQuerier{err: errors.New("no such column: secret_col")}
	r := NewToolRegistry(db)

	res := r.Execute(context.Background(), ToolCall{Tool: "query_courses", SQL: "SELECT secret_col FROM courses_course"})

	assert.Equal(t, "Unexpected database error.", res.Err)
	assert.NotContains(t, res.Err, "secret_col")
}

func TestToolRegistry_JoinRewrite(t *testing.T) {
	db := &fakeQuerier{}
	r := NewToolRegistry(db)

	res := r.Execute(context.Background(), ToolCall{
		Tool: "query_course_subjects",
		SQL:  "SELECT subject_id FROM courses_coursesubjects WHERE name = 'US CPA'",
	})
	require.True(t, res.OK(), res.Err)
	assert.Equal(t,
		"SELECT cs.id, cs.name, cs.description FROM courses_coursesubjects ccs JOIN courses_subjects cs ON cs.id = ccs.subject_id WHERE ccs.course_id IN (SELECT id FROM courses_course WHERE name = 'US CPA')",
		db.lastQuery())

	res = r.Execute(context.Background(), ToolCall{Tool: "query_subject_chapters", SQL: "SELECT * FROM courses_subjectchapters"})
	require.True(t, res.OK(), res.Err)
	assert.Contains(t, db.lastQuery(), "WHERE csc.subject_id IN (SELECT id FROM courses_subjects WHERE 1=1)")

	res = r.Execute(context.Background(), ToolCall{Tool: "query_subject_chapters", SQL: "SELECT * FROM courses_subjectchapters WHERE name = 'FAR' Order By id LIMIT 3"})
	require.True(t, res.OK(), res.Err)
	assert.True(t, strings.HasSuffix(db.lastQuery(), "(SELECT id FROM courses_subjects WHERE name = 'FAR')"), db.lastQuery())
}

func TestToolRegistry_QuestionSQLIsNotRewritten(t *testing.T) {
	db := &fakeQuerier{}
	r := NewToolRegistry(db)
	sql := "SELECT * FROM questions_testquestions WHERE id_number = 'KCG1' LIMIT 1"

	res := r.Execute(context.Background(), ToolCall{Tool: "query_questions", SQL: sql})

	require.True(t, res.OK(), res.Err)
	assert.Equal(t, sql, db.lastQuery())
}

func TestToolRegistry_JoinKeptWhenPresent(t *testing.T) {
	db := &fakeQuerier{}
	r := NewToolRegistry(db)
	sql := "SELECT s.name FROM courses_coursesubjects c JOIN courses_subjects s ON s.id = c.subject_id"

	res := r.Execute(context.Background(), ToolCall{Tool: "query_course_subjects", SQL: sql})

	require.True(t, res.OK(), res.Err)
	assert.Equal(t, sql, db.lastQuery())
}

func TestToolRegistry_FilterUsesBoundParameter(t *testing.T) {
	db := &fakeQuerier{}
	r := NewToolRegistry(db)
	value := "x' OR 1=1 --"

	res := r.Execute(context.Background(), ToolCall{Tool: "query_courses", Filter: &ToolFilter{Column: "name", Value: value}})

	require.True(t, res.OK(), res.Err)
	assert.Equal(t, `SELECT * FROM courses_course WHERE "name" = ? LIMIT 100`, db.lastQuery())
	assert.Equal(t, []any{value}, db.args[0])
}

func TestParseToolCall(t *testing.T) {
	call, err := ParseToolCall("```json\n{\"tool\": \"query_courses\", \"sql\": \"SELECT name FROM courses_course\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "query_courses", call.Tool)
	assert.Equal(t, "SELECT name FROM courses_course", call.SQL)

	_, err = ParseToolCall(`{"tool": "query_courses", "sql": `)
	assert.Error(t, err)

	_, err = ParseToolCall(`{"sql": "SELECT 1"}`)
	assert.Error(t, err)
}

func TestIsToolEnvelope(t *testing.T) {
	assert.True(t, IsToolEnvelope(`{"tool":"query_courses","sql":"SELECT 1"}`))
	assert.True(t, IsToolEnvelope("  \n{\"tool\": \"x\"}"))
	assert.True(t, IsToolEnvelope("```json\n{\"tool\": \"x\"}\n```"))
	assert.False(t, IsToolEnvelope("<p>We offer US CPA.</p>"))
	assert.False(t, IsToolEnvelope(`{"answer": "no tool here"}`))
}

func TestRenderToolContext_ListsEveryTool(t *testing.T) {
	ctx := NewToolRegistry(&fakeQuerier{}).RenderToolContext()
	for _, def := range catalogTools {
		assert.Contains(t, ctx, string(def.Name))
		assert.Contains(t, ctx, def.TargetTable)
	}
	assert.Contains(t, ctx, "mock_test_pattern")
}

// The canned templates must be valid SQLite against the catalog schema.
func TestToolRegistry_TemplatesRunOnCatalog(t *testing.T) {
	ctx := context.Background()
	catalog, err := store.NewCatalogStore(filepath.Join(t.TempDir(), "catalog.db"), false)
	require.NoError(t, err)
	defer catalog.Close()

	require.NoError(t, catalog.Exec(ctx, store.CatalogSchema))
	require.NoError(t, catalog.Exec(ctx, `
INSERT INTO courses_course (id, name) VALUES (1, 'US CPA'), (2, 'US CMA');
INSERT INTO courses_subjects (id, name, description) VALUES (10, 'FAR', 'Financial Accounting'), (11, 'AUD', 'Auditing'), (12, 'BEC', 'Business');
INSERT INTO courses_coursesubjects (course_id, subject_id, "order") VALUES (1, 10, 1), (1, 11, 2), (2, 12, 1);
INSERT INTO courses_chapters (id, name, no_of_videos) VALUES (100, 'Revenue Recognition', 4);
INSERT INTO courses_subjectchapters (subject_id, chapter_id) VALUES (10, 100);
INSERT INTO questions_testquestions (id, id_number, question_type, level, status) VALUES (7, 'KCGFARFSRPM0002', 'mcq', 'easy', 1);
INSERT INTO questions_questioncontents (test_question_id, question, solution_description) VALUES (7, 'What is ASC 606?', 'Revenue standard');
INSERT INTO questions_questionoptions (test_question_id, option) VALUES (7, 'A'), (7, 'B');
`))

	r := NewToolRegistry(catalog)

	res := r.Execute(ctx, ToolCall{Tool: "query_course_subjects", SQL: "SELECT * FROM courses_coursesubjects WHERE name = 'US CPA'"})
	require.True(t, res.OK(), res.Err)
	require.Len(t, res.Rows, 2)
	var names []any
	for _, row := range res.Rows {
		names = append(names, row["name"])
	}
	assert.ElementsMatch(t, []any{"FAR", "AUD"}, names)

	res = r.Execute(ctx, ToolCall{Tool: "query_subject_chapters", SQL: "SELECT * FROM courses_subjectchapters WHERE name = 'FAR'"})
	require.True(t, res.OK(), res.Err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Revenue Recognition", res.Rows[0]["name"])

	res = r.Execute(ctx, ToolCall{Tool: "query_questions", Filter: &ToolFilter{Column: "id_number", Value: "KCGFARFSRPM0002"}})
	require.True(t, res.OK(), res.Err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "What is ASC 606?", res.Rows[0]["question"])
	assert.Equal(t, "A | B", res.Rows[0]["options"])

	// question SQL runs as written, trailing clauses included
	for _, sql := range []string{
		"SELECT * FROM questions_testquestions WHERE id_number = 'KCGFARFSRPM0002' LIMIT 1",
		"SELECT * FROM questions_testquestions WHERE id_number = 'KCGFARFSRPM0002' ORDER BY id",
	} {
		res = r.Execute(ctx, ToolCall{Tool: "query_questions", SQL: sql})
		require.True(t, res.OK(), res.Err)
		require.Len(t, res.Rows, 1)
		assert.Equal(t, "KCGFARFSRPM0002", res.Rows[0]["id_number"])
	}

	res = r.Execute(ctx, ToolCall{Tool: "query_course_subjects", SQL: "SELECT * FROM courses_coursesubjects WHERE name = 'US CPA' ORDER BY id LIMIT 5"})
	require.True(t, res.OK(), res.Err)
	assert.Len(t, res.Rows, 2)

	res = r.Execute(ctx, ToolCall{Tool: "query_course_subjects", Filter: &ToolFilter{Column: "course_id", Value: 2}})
	require.True(t, res.OK(), res.Err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "BEC", res.Rows[0]["name"])

	res = r.Execute(ctx, ToolCall{Tool: "query_courses", SQL: "SELECT nope FROM courses_course"})
	assert.Equal(t, "Unexpected database error.", res.Err)
}
