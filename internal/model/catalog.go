package model

import "github.com/google/uuid"

// Style is a catalog entry carrying a reusable base prompt.
type Style struct {
	ID         uuid.UUID `json:"id"`
	Slug       string    `json:"slug"`
	Name       string    `json:"name"`
	BasePrompt string    `json:"base_prompt"`
}

// PromptTemplate is a catalog entry carrying reusable instruction text.
type PromptTemplate struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
}
