package models

// Context is a retrieved chunk paired with its similarity score, returned
// alongside an answer for provenance.
type Context struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// QueryResult is the outcome of one retrieval-augmented query: the generated
// answer plus the contexts it was grounded on, best match first.
type QueryResult struct {
	Answer   string    `json:"answer"`
	Contexts []Context `json:"contexts"`
}
