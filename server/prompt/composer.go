// Package prompt composes the system and user messages sent to the backend.
package prompt

import (
	"bytes"
	"text/template"

	"github.com/teilomillet/promptgate/server/catalog"
)

// Message roles understood by the backend.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is a single chat message in backend wire form.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// codeDirectives is appended to every language template. The language tag is the
// only interpolated value.
var codeDirectives = template.Must(template.New("code_directives").Parse(
	"{{.SystemPrompt}}\n\n" +
		"IMPORTANT: When providing code:\n" +
		"1. Always include complete, runnable examples\n" +
		"2. Add comments explaining complex logic\n" +
		"3. Suggest error handling and edge cases\n" +
		"4. Mention performance considerations when relevant\n" +
		"5. Provide alternative approaches if applicable\n" +
		"6. Format code blocks with ```{{.Language}} tags\n" +
		"Include any necessary imports or dependencies.",
))

// ComposeChat pairs the persona prompt with the user's message, unmodified.
func ComposeChat(persona catalog.Persona, userMessage string) []Message {
	return []Message{
		{Role: RoleSystem, Content: persona.SystemPrompt},
		{Role: RoleUser, Content: userMessage},
	}
}

// ComposeCode pairs the language template, extended with the formatting
// directives, with the user's prompt. The directives are a request to the
// backend; nothing downstream assumes they were followed.
func ComposeCode(tmpl catalog.LanguageTemplate, userPrompt, language string) []Message {
	var buf bytes.Buffer
	// Execution cannot fail: the template only reads two string fields.
	_ = codeDirectives.Execute(&buf, struct {
		SystemPrompt string
		Language     string
	}{tmpl.SystemPrompt, language})

	return []Message{
		{Role: RoleSystem, Content: buf.String()},
		{Role: RoleUser, Content: userPrompt},
	}
}
