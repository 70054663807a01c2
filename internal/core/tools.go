package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"strings"
)

// ToolName identifies one of the fixed catalog queries the model may request.
type ToolName string

const (
	ToolQueryCourses         ToolName = "query_courses"
	ToolQuerySubjects        ToolName = "query_subjects"
	ToolQueryCourseSubjects  ToolName = "query_course_subjects"
	ToolQueryChapters        ToolName = "query_chapters"
	ToolQuerySubjectChapters ToolName = "query_subject_chapters"
	ToolQueryTopics          ToolName = "query_topics"
	ToolQueryChapterTopics   ToolName = "query_chapter_topics"
	ToolQueryQuestions       ToolName = "query_questions"
)

// Tool error texts. They are fed to the fallback completion, never to the user.
const (
	errMissingSQL      = "Missing SQL"
	errSelectOnly      = "Only SELECT queries are allowed."
	errSingleStatement = "Only a single statement is allowed."
	errDatabase        = "Unexpected database error."
	errMissingValue    = "Missing filter value."
)

const maxFilterRows = 100

// JoinTemplate is the canned query a mapping tool runs so that names are
// returned instead of bare foreign keys.
type JoinTemplate struct {
	Table string
	// Select is everything before the WHERE keyword.
	Select string
	// Where wraps the caller's condition; it must contain exactly one %s.
	Where string
	// Alias qualifies structured filter columns.
	Alias  string
	Suffix string
}

func (j *JoinTemplate) rewrite(condition string) string {
	q := j.Select + " WHERE " + fmt.Sprintf(j.Where, condition)
	if j.Suffix != "" {
		q += " " + j.Suffix
	}
	return q
}

func (j *JoinTemplate) filtered(column string) string {
	q := fmt.Sprintf(`%s WHERE %s."%s" = ?`, j.Select, j.Alias, column)
	if j.Suffix != "" {
		q += " " + j.Suffix
	}
	return q
}

type ToolDefinition struct {
	Name           ToolName
	TargetTable    string
	AllowedColumns []string
	Description    string

	// RequiredJoin rewrites SQL that has no JOIN. Only mapping tools set it.
	RequiredJoin *JoinTemplate
	// FilterView, when set, is the query the structured filter form runs instead of the bare table.
	FilterView *JoinTemplate
}

// ToolFilter is the structured form of a tool call: one whitelisted column compared to one bound value.
type ToolFilter struct {
	Column string `json:"column"`
	Value  any    `json:"value"`
}

// ToolCall is the envelope the model emits to request a catalog query.
type ToolCall struct {
	Tool   string      `json:"tool"`
	SQL    string      `json:"sql,omitempty"`
	Filter *ToolFilter `json:"filter,omitempty"`
}

// ToolResult carries either rows or an error text. Tool errors are values
// because they drive the fallback completion rather than aborting the reply.
type ToolResult struct {
	Rows []map[string]any
	Err  string
}

func (r ToolResult) OK() bool { return r.Err == "" }

var catalogTools = []ToolDefinition{
	{
		Name:        ToolQueryCourses,
		TargetTable: "courses_course",
		Description: "Fetch course information",
		AllowedColumns: []string{
			"id", "name", "short_description", "description", "requirements",
			"duration", "price", "discount", "total_reviews", "total_video_duration",
			"total_questions", "avg_rating", "objectives_summary", "features",
			"status", "image", "banner_image", "created_at", "updated_at",
			"assessment_test_testlet", "assessment_test_each", "mock_test_pattern",
		},
	},
	{
		Name:        ToolQuerySubjects,
		TargetTable: "courses_subjects",
		Description: "Fetch subject information",
		AllowedColumns: []string{
			"id", "name", "description", "status", "created_at", "updated_at",
			"no_of_mcqs", "no_of_simulations", "no_of_videos", "no_of_videos_duration",
			"total_questions",
		},
	},
	{
		Name:           ToolQueryCourseSubjects,
		TargetTable:    "courses_coursesubjects",
		Description:    "Fetch the subjects of a course, always with subject names",
		AllowedColumns: []string{"id", "course_id", "subject_id", "order", "created_at"},
		RequiredJoin: &JoinTemplate{
			Table:  "courses_subjects",
			Select: "SELECT cs.id, cs.name, cs.description FROM courses_coursesubjects ccs JOIN courses_subjects cs ON cs.id = ccs.subject_id",
			Where:  "ccs.course_id IN (SELECT id FROM courses_course WHERE %s)",
			Alias:  "ccs",
		},
	},
	{
		Name:        ToolQueryChapters,
		TargetTable: "courses_chapters",
		Description: "Fetch chapter information",
		AllowedColumns: []string{
			"id", "name", "description", "no_of_videos", "no_of_videos_dur",
			"no_of_mcqs", "no_of_simulations", "total_questions", "status", "created_at", "updated_at",
		},
	},
	{
		Name:           ToolQuerySubjectChapters,
		TargetTable:    "courses_subjectchapters",
		Description:    "Fetch the chapters of a subject, always with chapter names",
		AllowedColumns: []string{"id", "subject_id", "chapter_id", "order", "created_at"},
		RequiredJoin: &JoinTemplate{
			Table:  "courses_chapters",
			Select: "SELECT ch.id, ch.name, ch.description, ch.no_of_videos, ch.no_of_mcqs, ch.no_of_simulations FROM courses_subjectchapters csc JOIN courses_chapters ch ON ch.id = csc.chapter_id",
			Where:  "csc.subject_id IN (SELECT id FROM courses_subjects WHERE %s)",
			Alias:  "csc",
		},
	},
	{
		Name:           ToolQueryTopics,
		TargetTable:    "courses_topics",
		Description:    "Fetch topics",
		AllowedColumns: []string{"id", "name", "description"},
	},
	{
		Name:           ToolQueryChapterTopics,
		TargetTable:    "courses_chaptertopics",
		Description:    "Fetch the mapping between chapters and topics",
		AllowedColumns: []string{"id", "chapter_id", "topic_id", "order", "created_at"},
	},
	{
		Name:        ToolQueryQuestions,
		TargetTable: "questions_testquestions",
		Description: "Fetch questions from the question bank with their options and solution",
		AllowedColumns: []string{
			"id", "id_number", "question_type", "level", "simulation_type",
			"chapter_id", "topic_id", "status", "created_at",
		},
		FilterView: &JoinTemplate{
			Table: "questions_questioncontents",
			Select: "SELECT questions_testquestions.id, questions_testquestions.id_number, questions_testquestions.question_type, " +
				"questions_testquestions.level, questions_testquestions.simulation_type, " +
				"questions_questioncontents.question, questions_questioncontents.solution_description, " +
				"(SELECT group_concat(qo.option, ' | ') FROM questions_questionoptions qo WHERE qo.test_question_id = questions_testquestions.id) AS options " +
				"FROM questions_testquestions JOIN questions_questioncontents ON questions_questioncontents.test_question_id = questions_testquestions.id",
			Alias:  "questions_testquestions",
			Suffix: "LIMIT 10",
		},
	},
}

// ToolRegistry validates model-issued tool calls and runs them against the catalog.
type ToolRegistry struct {
	db    SQLQuerier
	tools map[ToolName]ToolDefinition
	order []ToolName
}

func NewToolRegistry(db SQLQuerier) *ToolRegistry {
	r := &ToolRegistry{
		db:    db,
		tools: make(map[ToolName]ToolDefinition, len(catalogTools)),
	}
	for _, def := range catalogTools {
		r.tools[def.Name] = def
		r.order = append(r.order, def.Name)
	}
	return r
}

func (r *ToolRegistry) Lookup(name string) (ToolDefinition, bool) {
	def, ok := r.tools[ToolName(name)]
	return def, ok
}

// Execute validates call and runs it. Guard failures never reach the database.
func (r *ToolRegistry) Execute(ctx context.Context, call ToolCall) ToolResult {
	def, ok := r.Lookup(call.Tool)
	if !ok {
		return ToolResult{Err: "Unknown tool: " + call.Tool}
	}

	var (
		query string
		args  []any
	)
	if call.Filter != nil {
		q, errText := def.filterQuery(*call.Filter)
		if errText != "" {
			return ToolResult{Err: errText}
		}
		query, args = q, []any{call.Filter.Value}
	} else {
		q, errText := def.guardSQL(call.SQL)
		if errText != "" {
			return ToolResult{Err: errText}
		}
		query = q
	}

	rows, err := r.db.QueryRows(ctx, query, args...)
	if err != nil {
		log.Printf("Tool %s failed: %v", def.Name, err)
		return ToolResult{Err: errDatabase}
	}
	return ToolResult{Rows: rows}
}

// guardSQL applies the SELECT-only, target-table and single-statement checks,
// then rewrites mapping queries that lack a join.
func (d ToolDefinition) guardSQL(raw string) (string, string) {
	sql := strings.TrimSpace(raw)
	if sql == "" {
		return "", errMissingSQL
	}
	lower := strings.ToLower(sql)
	if !strings.HasPrefix(lower, "select") {
		return "", errSelectOnly
	}
	// Substring match only: a table name inside a comment or literal passes.
	if !strings.Contains(lower, d.TargetTable) {
		return "", fmt.Sprintf("Query must use table %s.", d.TargetTable)
	}
	sql = strings.TrimSpace(strings.TrimRight(sql, "; \t\r\n"))
	if strings.Contains(sql, ";") {
		return "", errSingleStatement
	}

	if d.RequiredJoin != nil && !strings.Contains(strings.ToLower(sql), "join") {
		rewritten := d.RequiredJoin.rewrite(whereCondition(sql))
		log.Printf("Tool %s: rewriting query to join %s", d.Name, d.RequiredJoin.Table)
		return rewritten, ""
	}
	return sql, ""
}

func (d ToolDefinition) filterQuery(f ToolFilter) (string, string) {
	if !slices.Contains(d.AllowedColumns, f.Column) {
		return "", fmt.Sprintf("Column %s is not allowed for %s.", f.Column, d.Name)
	}
	if f.Value == nil {
		return "", errMissingValue
	}
	if d.RequiredJoin != nil {
		return d.RequiredJoin.filtered(f.Column), ""
	}
	if d.FilterView != nil {
		return d.FilterView.filtered(f.Column), ""
	}
	return fmt.Sprintf(`SELECT * FROM %s WHERE "%s" = ? LIMIT %d`, d.TargetTable, f.Column, maxFilterRows), ""
}

// trailingClauses end a WHERE condition; they cannot be nested inside the join template.
var trailingClauses = []string{" group by ", " order by ", " limit ", " offset "}

// whereCondition returns the text after the first literal "WHERE" token, cut before any
// GROUP BY, ORDER BY, LIMIT or OFFSET, or 1=1 when the caller gave none.
func whereCondition(sql string) string {
	parts := strings.SplitN(sql, "WHERE", 3)
	if len(parts) < 2 {
		return "1=1"
	}
	cond := parts[1]
	lower := strings.ToLower(cond)
	for _, clause := range trailingClauses {
		if i := strings.Index(lower, clause); i >= 0 {
			cond, lower = cond[:i], lower[:i]
		}
	}
	cond = strings.TrimSpace(cond)
	if cond == "" {
		return "1=1"
	}
	return cond
}

// RenderToolContext describes every tool for the system prompt.
func (r *ToolRegistry) RenderToolContext() string {
	var b strings.Builder
	for _, name := range r.order {
		def := r.tools[name]
		fmt.Fprintf(&b, "- %s → SELECT from %q\n", def.Name, def.TargetTable)
		fmt.Fprintf(&b, "  %s\n", def.Description)
		fmt.Fprintf(&b, "  Allowed columns: %s\n", strings.Join(def.AllowedColumns, ", "))
		if def.RequiredJoin != nil {
			fmt.Fprintf(&b, "  Joined with %q automatically when the query has no JOIN, so names are returned instead of IDs\n", def.RequiredJoin.Table)
		}
		if def.FilterView != nil {
			fmt.Fprintf(&b, "  The filter form also returns %q content and options\n", def.FilterView.Table)
		}
	}
	b.WriteString("\nIf the user gives a question id_number (like KCGFARFSRPM0002), fetch the question with its solution_description.\n")
	b.WriteString("For a single exact-match lookup prefer the filter form: {\"tool\": \"<tool_name>\", \"filter\": {\"column\": \"<column>\", \"value\": <value>}}\n")
	return b.String()
}

// IsToolEnvelope reports whether a model reply claims to be a tool call.
func IsToolEnvelope(reply string) bool {
	s := unwrapCodeFence(reply)
	return strings.HasPrefix(s, "{") && strings.Contains(s, `"tool":`)
}

// ParseToolCall decodes a tool envelope, accepting JSON wrapped in a markdown code fence.
func ParseToolCall(reply string) (ToolCall, error) {
	var call ToolCall
	if err := json.Unmarshal([]byte(unwrapCodeFence(reply)), &call); err != nil {
		return ToolCall{}, fmt.Errorf("invalid tool envelope: %w", err)
	}
	if call.Tool == "" {
		return ToolCall{}, fmt.Errorf("tool envelope has no tool name")
	}
	return call, nil
}

func unwrapCodeFence(reply string) string {
	s := strings.TrimSpace(reply)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		return strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
