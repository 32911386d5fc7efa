package models

// NewsArticle is one externally sourced item for automated ingestion.
type NewsArticle struct {
	Title       string `json:"title" validate:"required_without=Description,max=1000"`
	Description string `json:"description,omitempty" validate:"max=4000"`
	URL         string `json:"url,omitempty" validate:"omitempty,url"`
	Source      struct {
		Name string `json:"name,omitempty"`
	} `json:"source"`
}

// NewsPostsRequest defines the body of the automated ingestion endpoint
type NewsPostsRequest struct {
	Articles []NewsArticle `json:"articles" validate:"required,min=1,max=2000,dive"`
}
