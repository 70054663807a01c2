package core

import (
	"fmt"
	"strings"
)

var availableTables = []string{
	"questions_questioncontents",
	"questions_questionoptions",
	"questions_testquestions",
	"courses_topics",
	"courses_chapters",
	"courses_subjects",
	"courses_subjectchapters",
	"courses_coursesubjects",
	"courses_chaptertopics",
	"courses_course",
}

const (
	renderRowsInstruction   = "Convert SQL query results into a clear natural language answer for the user. Always show subject names if available."
	toolFallbackInstruction = "You are a helpful finance LMS assistant. Database tool failed, but still answer naturally without mentioning failure."

	essayGraderInstruction = `You compare two essays and output ONLY JSON:
{"score": <number from 0 to 100, how closely the user essay matches the explanation essay>, "reason": "<detailed reasoning>"}
Do NOT output anything else.`
)

// buildSystemPrompt renders the persona, tool catalog, retrieved context and answer rules.
func buildSystemPrompt(toolContext, contextBlock string) string {
	if strings.TrimSpace(contextBlock) == "" {
		contextBlock = NoContextMarker
	}

	var b strings.Builder
	b.WriteString(`You are Kc GlobedBot, a knowledgeable finance assistant.
You specialize in US CPA, US CMA, US Taxation, Accounting and all finance-related topics.

Your main role:
- Always provide answers related to finance, accounting, taxation, courses, subjects, chapters and finance education.
- You are a retrieval-augmented assistant: when contextual knowledge is available, incorporate it naturally in your answers.

Tool usage:
If the user asks about courses, subjects, course-subject mappings, chapters, subject-chapter mappings, topics or questions,
you MUST respond with only a JSON tool call in this exact format:

{"tool": "<tool_name>", "sql": "SELECT ..."}

Available tools:
`)
	b.WriteString(toolContext)
	b.WriteString("\nAvailable tables:\n")
	for _, t := range availableTables {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	b.WriteString(`
Rules for tools:
- Only SELECT queries are allowed, one statement per call.
- Only allowed columns should be accessed.
- For course-subject queries, always return subject names instead of IDs.
- Never invent data; always fetch from the database when relevant.

Internal context (for grounding only, do NOT mention it explicitly in answers):
`)
	b.WriteString(contextBlock)
	b.WriteString(`

Rules:
- Always use the provided context as the primary source of truth.
- If context is available, ground your answer strictly in it. Do not invent details.
- If the context does not answer the question, politely say that the information is not available in the knowledge base.
- Only fall back to general knowledge if no context is provided at all, and never claim to have consulted external sources in that case.
- Never disclose internal errors, tools or failed lookups.

Style:
- Be descriptive and explanatory, like a finance instructor, with examples where they help.
- Keep all answers finance-focused. If the question is unrelated to finance, answer politely without unrelated topics.
- Respond in well-structured HTML with proper indentation. Sound authoritative, professional and finance-oriented.
`)
	return b.String()
}

func renderRowsMessages(userMessage, rowsJSON string) []Message {
	return []Message{
		{Role: RoleSystem, Content: renderRowsInstruction},
		{Role: RoleUser, Content: fmt.Sprintf("User asked: %q. SQL result: %s", userMessage, rowsJSON)},
	}
}

func toolFallbackMessages(userMessage string) []Message {
	return []Message{
		{Role: RoleSystem, Content: toolFallbackInstruction},
		{Role: RoleUser, Content: fmt.Sprintf("Original question: %q", userMessage)},
	}
}

func essayMessages(userInput, explanation string) []Message {
	return []Message{
		{Role: RoleSystem, Content: essayGraderInstruction},
		{Role: RoleUser, Content: fmt.Sprintf("Compare the following two essays:\n\nUser Input Essay:\n%s\n\nExplanation Essay:\n%s\n\nReturn ONLY JSON in the required format.", userInput, explanation)},
	}
}
