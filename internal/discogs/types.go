package discogs

// searchResponse is the /database/search payload.
type searchResponse struct {
	Pagination struct {
		Items int `json:"items"`
	} `json:"pagination"`
	Results []searchResult `json:"results"`
}

type searchResult struct {
	ID    int      `json:"id"`
	Type  string   `json:"type"`
	Title string   `json:"title"`
	URI   string   `json:"uri"`
	Genre []string `json:"genre"`
	Style []string `json:"style"`
}
